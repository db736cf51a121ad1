package inference

import (
	"context"
	"image"
	"sync"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
)

// Fake is a deterministic model used for demos and tests. It implements every
// capability interface.
type Fake struct {
	mu     sync.Mutex
	calls  int
	closed bool
	// Err, when set, is returned by every call.
	Err error
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) begin(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Err
}

func (f *Fake) Classify(ctx context.Context, frame *model.Frame, topK int) ([]model.Prediction, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}

	preds := []model.Prediction{
		{Label: "tabby cat", Confidence: 0.62},
		{Label: "tiger cat", Confidence: 0.21},
		{Label: "egyptian cat", Confidence: 0.09},
		{Label: "lynx", Confidence: 0.04},
		{Label: "remote control", Confidence: 0.02},
		{Label: "carton", Confidence: 0.01},
	}
	return Apply(preds, NewTopK(topK)), nil
}

func (f *Fake) Detect(ctx context.Context, frame *model.Frame) ([]model.Prediction, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}

	w, h := frame.Width, frame.Height
	box := func(x0, y0, x1, y1 float64) *image.Rectangle {
		r := image.Rect(int(x0*float64(w)), int(y0*float64(h)), int(x1*float64(w)), int(y1*float64(h)))
		return &r
	}

	return []model.Prediction{
		{Label: "car", Confidence: 0.91, Box: box(0.05, 0.50, 0.35, 0.80)},
		{Label: "car", Confidence: 0.77, Box: box(0.40, 0.55, 0.60, 0.75)},
		{Label: "truck", Confidence: 0.68, Box: box(0.65, 0.30, 0.95, 0.80)},
		{Label: "person", Confidence: 0.88, Box: box(0.45, 0.10, 0.50, 0.40)},
	}, nil
}

func (f *Fake) EstimatePose(ctx context.Context, frame *model.Frame) ([]model.Prediction, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}

	w, h := float64(frame.Width), float64(frame.Height)
	kp := func(part string, x, y float64) model.Keypoint {
		return model.Keypoint{Part: part, X: x * w, Y: y * h, Confidence: 0.9}
	}

	return []model.Prediction{
		{
			Label:      "person",
			Confidence: 0.9,
			Keypoints: []model.Keypoint{
				kp("nose", 0.50, 0.15),
				kp("leftEar", 0.54, 0.14),
				kp("rightEar", 0.46, 0.14),
				kp("leftShoulder", 0.60, 0.30),
				kp("rightShoulder", 0.40, 0.30),
				kp("leftHip", 0.57, 0.60),
				kp("rightHip", 0.43, 0.60),
				kp("leftKnee", 0.57, 0.80),
				kp("rightKnee", 0.43, 0.80),
			},
		},
	}, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeService struct {
	fake *Fake
}

// NewFakeService hands out f for every capability, ignoring the parameters.
func NewFakeService(f *Fake) IService {
	return &fakeService{fake: f}
}

func (svc *fakeService) NewClassifier(config.ModelParameters) (Classifier, error) {
	return svc.fake, nil
}

func (svc *fakeService) NewDetector(params config.ModelParameters) (Detector, error) {
	return &filteredDetector{Detector: svc.fake, labels: params.AllowedClasses}, nil
}

func (svc *fakeService) NewPoseEstimator(config.ModelParameters) (PoseEstimator, error) {
	return svc.fake, nil
}

// filteredDetector applies the allowed classes the way a real detector does.
type filteredDetector struct {
	Detector
	labels []string
}

func (d *filteredDetector) Detect(ctx context.Context, frame *model.Frame) ([]model.Prediction, error) {
	preds, err := d.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	return Apply(preds, NewLabelFilter(d.labels)), nil
}
