package opencv

import (
	"context"
	"image"
	"log/slog"
	"math"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/inference"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

type classifier struct {
	*dnn
	params config.ModelParameters
	labels []string
}

// NewClassifier loads an ImageNet style classifier (e.g. MobileNetV2 ONNX).
func NewClassifier(params config.ModelParameters) (inference.Classifier, error) {
	if err := inference.CheckModel(params.ModelPath); err != nil {
		return nil, err
	}

	labels, err := inference.LoadLabels(params.LabelsPath)
	if err != nil {
		return nil, err
	}

	net, err := loadNet(params.ModelPath, params.ConfigPath)
	if err != nil {
		return nil, err
	}

	lgr.Logger.Info("classifier loaded",
		slog.String("model", params.ModelPath),
		slog.Int("labels", len(labels)),
	)

	return &classifier{
		dnn:    net,
		params: params,
		labels: labels,
	}, nil
}

func (c *classifier) Classify(ctx context.Context, frame *model.Frame, topK int) ([]model.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// MobileNet expects inputs scaled to [-1, 1]
	output, err := c.forward(frame, 1.0/127.5, image.Pt(c.params.InputWidth, c.params.InputHeight), gocv.NewScalar(127.5, 127.5, 127.5, 0), true)
	if err != nil {
		return nil, err
	}
	defer output.Close()

	scores, err := output.DataPtrFloat32()
	if err != nil {
		return nil, xerrors.Errorf("error reading classifier output: %w", err)
	}
	if len(scores) != len(c.labels) {
		return nil, xerrors.Errorf("classifier output has %d scores for %d labels", len(scores), len(c.labels))
	}

	probs := softmax(scores)
	preds := make([]model.Prediction, 0, len(probs))
	for i, p := range probs {
		preds = append(preds, model.Prediction{
			Label:      c.labels[i],
			Confidence: p,
		})
	}

	return inference.Apply(preds,
		inference.NewScoreFilter(float64(c.params.ConfidenceThreshold)),
		inference.NewTopK(topK),
	), nil
}

// softmax leaves outputs that already sum to one untouched.
func softmax(scores []float32) []float64 {
	out := make([]float64, len(scores))

	sum := 0.0
	isProb := true
	for _, s := range scores {
		if s < 0 || s > 1 {
			isProb = false
		}
		sum += float64(s)
	}
	if isProb && math.Abs(sum-1) < 1e-3 {
		for i, s := range scores {
			out[i] = float64(s)
		}
		return out
	}

	max := math.Inf(-1)
	for _, s := range scores {
		max = math.Max(max, float64(s))
	}
	sum = 0
	for i, s := range scores {
		out[i] = math.Exp(float64(s) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
