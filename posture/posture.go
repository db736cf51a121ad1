// Package posture scores a single body pose with threshold rules over
// keypoint heights.
package posture

import (
	"math"

	"github.com/khaledhikmat/vs-infer/model"
)

const (
	MsgShouldersNotLevel = "Your shoulders are not level. Try to keep them even."
	MsgHeadForward       = "Your head is too far forward. Try to keep your ears aligned with your shoulders."
	MsgHipsNotLevel      = "Your hips are not level. Try to keep them even."
	MsgKneesNotAligned   = "Your knees are not aligned. Ensure your knees are level."
	MsgNoPose            = "No pose detected. Please ensure you are fully visible to the camera."
	MsgGoodPosture       = "Good posture! Keep it up!"
)

// Options holds the heuristic thresholds, in pixels except MinConfidence.
type Options struct {
	MinConfidence float64
	MaxShoulderDy float64
	MaxNeckDy     float64
	MaxHipDy      float64
	MaxKneeDy     float64
}

func DefaultOptions() Options {
	return Options{
		MinConfidence: 0.5,
		MaxShoulderDy: 20,
		MaxNeckDy:     100,
		MaxHipDy:      20,
		MaxKneeDy:     20,
	}
}

type Analysis struct {
	Feedback      []string `json:"feedback"`
	IsGoodPosture bool     `json:"isGoodPosture"`
}

// Analyze applies the default thresholds.
func Analyze(keypoints []model.Keypoint) Analysis {
	return DefaultOptions().Analyze(keypoints)
}

// Analyze keeps keypoints strictly above MinConfidence and evaluates the
// upper body (shoulders, ears) and the lower body (hips, knees). A missing
// upper body always yields MsgNoPose. The lower body is only checked when
// all four of its keypoints are present.
func (o Options) Analyze(keypoints []model.Keypoint) Analysis {
	parts := Visible(keypoints, o.MinConfidence)

	feedback := []string{}
	good := true

	lShoulder, okLS := parts["leftShoulder"]
	rShoulder, okRS := parts["rightShoulder"]
	lEar, okLE := parts["leftEar"]
	_, okRE := parts["rightEar"]

	if okLS && okRS && okLE && okRE {
		if math.Abs(lShoulder.Y-rShoulder.Y) > o.MaxShoulderDy {
			feedback = append(feedback, MsgShouldersNotLevel)
			good = false
		}
		if math.Abs(lEar.Y-lShoulder.Y) > o.MaxNeckDy {
			feedback = append(feedback, MsgHeadForward)
			good = false
		}
	} else {
		feedback = append(feedback, MsgNoPose)
		good = false
	}

	lHip, okLH := parts["leftHip"]
	rHip, okRH := parts["rightHip"]
	lKnee, okLK := parts["leftKnee"]
	rKnee, okRK := parts["rightKnee"]

	if okLH && okRH && okLK && okRK {
		if math.Abs(lHip.Y-rHip.Y) > o.MaxHipDy {
			feedback = append(feedback, MsgHipsNotLevel)
			good = false
		}
		if math.Abs(lKnee.Y-rKnee.Y) > o.MaxKneeDy {
			feedback = append(feedback, MsgKneesNotAligned)
			good = false
		}
	}

	if good {
		feedback = append(feedback, MsgGoodPosture)
	}

	return Analysis{
		Feedback:      feedback,
		IsGoodPosture: good,
	}
}

// Visible indexes keypoints above the confidence threshold by part name. A
// later keypoint with the same part wins.
func Visible(keypoints []model.Keypoint, minConfidence float64) map[string]model.Keypoint {
	parts := make(map[string]model.Keypoint, len(keypoints))
	for _, kp := range keypoints {
		if kp.Confidence > minConfidence {
			parts[kp.Part] = kp
		}
	}
	return parts
}
