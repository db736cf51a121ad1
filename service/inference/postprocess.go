package inference

import (
	"sort"
	"strings"

	"github.com/khaledhikmat/vs-infer/model"
)

// Postprocessor filters or reorders predictions.
type Postprocessor func([]model.Prediction) []model.Prediction

// NewScoreFilter drops predictions below the confidence threshold.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []model.Prediction) []model.Prediction {
		out := make([]model.Prediction, 0, len(in))
		for _, p := range in {
			if p.Confidence >= conf {
				out = append(out, p)
			}
		}
		return out
	}
}

// NewLabelFilter keeps predictions whose label is in the list. An empty list
// does not filter.
func NewLabelFilter(labels []string) Postprocessor {
	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[strings.ToLower(l)] = true
	}
	return func(in []model.Prediction) []model.Prediction {
		if len(allowed) == 0 {
			return in
		}
		out := make([]model.Prediction, 0, len(in))
		for _, p := range in {
			if allowed[strings.ToLower(p.Label)] {
				out = append(out, p)
			}
		}
		return out
	}
}

// NewTopK sorts by descending confidence and keeps at most k predictions.
func NewTopK(k int) Postprocessor {
	return func(in []model.Prediction) []model.Prediction {
		out := make([]model.Prediction, len(in))
		copy(out, in)
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Confidence > out[j].Confidence
		})
		if k > 0 && len(out) > k {
			out = out[:k]
		}
		return out
	}
}

func Apply(in []model.Prediction, procs ...Postprocessor) []model.Prediction {
	for _, proc := range procs {
		in = proc(in)
	}
	return in
}
