package inference

import (
	"context"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
)

// IService loads models. Load failures wrap model.ErrModelLoadFailure.
type IService interface {
	NewClassifier(params config.ModelParameters) (Classifier, error)
	NewDetector(params config.ModelParameters) (Detector, error)
	NewPoseEstimator(params config.ModelParameters) (PoseEstimator, error)
}

type Classifier interface {
	Classify(ctx context.Context, frame *model.Frame, topK int) ([]model.Prediction, error)
	Close() error
}

type Detector interface {
	Detect(ctx context.Context, frame *model.Frame) ([]model.Prediction, error)
	Close() error
}

// PoseEstimator returns one prediction per detected body, geometry in Keypoints.
type PoseEstimator interface {
	EstimatePose(ctx context.Context, frame *model.Frame) ([]model.Prediction, error)
	Close() error
}
