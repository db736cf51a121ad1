package opencv

import (
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/inference"
)

type models struct{}

// NewInference loads models with the OpenCV DNN module.
func NewInference() inference.IService {
	return models{}
}

func (models) NewClassifier(params config.ModelParameters) (inference.Classifier, error) {
	return NewClassifier(params)
}

func (models) NewDetector(params config.ModelParameters) (inference.Detector, error) {
	return NewYolo5Detector(params)
}

func (models) NewPoseEstimator(params config.ModelParameters) (inference.PoseEstimator, error) {
	return NewPoseEstimator(params)
}
