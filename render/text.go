package render

import (
	"fmt"
	"strings"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/posture"
)

const NoPredictions = "No predictions available"

// Classifications lists predictions one per line as "<label>  <pct>%".
func Classifications(preds []model.Prediction) string {
	if len(preds) == 0 {
		return NoPredictions
	}

	lines := make([]string, 0, len(preds))
	for _, p := range preds {
		lines = append(lines, fmt.Sprintf("%s  %.2f%%", p.Label, p.Confidence*100))
	}
	return strings.Join(lines, "\n")
}

// TrafficClasses are the vehicle labels the traffic view counts and draws.
var TrafficClasses = []string{"car", "truck", "motorcycle"}

// TrafficStats holds vehicle counts for a single frame.
type TrafficStats struct {
	Car        int `json:"car"`
	Truck      int `json:"truck"`
	Motorcycle int `json:"motorcycle"`
}

// CountTraffic counts vehicles in one frame's predictions. Counts never carry
// over from a previous frame.
func CountTraffic(preds []model.Prediction) TrafficStats {
	var s TrafficStats
	for _, p := range preds {
		switch strings.ToLower(p.Label) {
		case "car":
			s.Car++
		case "truck":
			s.Truck++
		case "motorcycle":
			s.Motorcycle++
		}
	}
	return s
}

func (s TrafficStats) Total() int {
	return s.Car + s.Truck + s.Motorcycle
}

func (s TrafficStats) String() string {
	return fmt.Sprintf("cars: %d  trucks: %d  motorcycles: %d", s.Car, s.Truck, s.Motorcycle)
}

// Feedback renders a posture analysis as a headline plus one line per
// message.
func Feedback(a posture.Analysis) string {
	head := "Needs attention"
	if a.IsGoodPosture {
		head = "Good"
	}

	var sb strings.Builder
	sb.WriteString(head)
	for _, msg := range a.Feedback {
		sb.WriteString("\n  - ")
		sb.WriteString(msg)
	}
	return sb.String()
}
