package opencv

import (
	"context"
	"image"
	"log/slog"
	"strings"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/inference"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

const yolo5NMSThreshold = 0.45

type yolo5Detector struct {
	*dnn
	params  config.ModelParameters
	labels  []string
	allowed map[string]bool
}

// NewYolo5Detector loads a YOLOv5 ONNX export and its class names.
func NewYolo5Detector(params config.ModelParameters) (inference.Detector, error) {
	if err := inference.CheckModel(params.ModelPath); err != nil {
		return nil, err
	}

	labels, err := inference.LoadLabels(params.LabelsPath)
	if err != nil {
		return nil, err
	}

	net, err := loadNet(params.ModelPath, "")
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{}
	for _, c := range params.AllowedClasses {
		allowed[strings.ToLower(c)] = true
	}

	lgr.Logger.Info("yolo5 detector loaded",
		slog.String("model", params.ModelPath),
		slog.Int("labels", len(labels)),
		slog.String("openCV", gocv.Version()),
	)

	return &yolo5Detector{
		dnn:     net,
		params:  params,
		labels:  labels,
		allowed: allowed,
	}, nil
}

func (d *yolo5Detector) Detect(ctx context.Context, frame *model.Frame) ([]model.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output, err := d.forward(frame, 1.0/255.0, image.Pt(d.params.InputWidth, d.params.InputHeight), gocv.NewScalar(0, 0, 0, 0), true)
	if err != nil {
		return nil, err
	}
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, xerrors.Errorf("unexpected DNN output dims: %v", dims)
	}

	reshaped := output.Reshape(1, dims[1])
	defer reshaped.Close()
	if reshaped.Empty() || reshaped.Rows() == 0 || reshaped.Cols() < 5 {
		return nil, xerrors.New("reshape failed or invalid dimensions")
	}

	xFactor := float32(frame.Width) / float32(d.params.InputWidth)
	yFactor := float32(frame.Height) / float32(d.params.InputHeight)

	var boxes []image.Rectangle
	var scores []float32
	var labels []string
	for i := 0; i < reshaped.Rows(); i++ {
		row := reshaped.RowRange(i, i+1)
		data, err := row.DataPtrFloat32()
		if err != nil || len(data) < 5 {
			row.Close()
			continue
		}

		label, conf, ok := d.bestClass(data)
		if !ok {
			row.Close()
			continue
		}

		cx, cy := data[0]*xFactor, data[1]*yFactor
		w, h := data[2]*xFactor, data[3]*yFactor
		row.Close()

		x, y := int(cx-w/2), int(cy-h/2)
		boxes = append(boxes, image.Rect(x, y, x+int(w), y+int(h)))
		scores = append(scores, conf)
		labels = append(labels, label)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.params.ConfidenceThreshold, yolo5NMSThreshold)
	preds := make([]model.Prediction, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		preds = append(preds, model.Prediction{
			Label:      labels[idx],
			Confidence: float64(scores[idx]),
			Box:        &box,
		})
	}

	if d.params.Logging {
		lgr.Logger.Debug("yolo5 detections",
			slog.Int("candidates", len(boxes)),
			slog.Int("kept", len(preds)),
		)
	}

	return preds, nil
}

// bestClass picks the most likely allowed class of a row. Rows whose object
// or final confidence is below the thresholds are ignored.
func (d *yolo5Detector) bestClass(data []float32) (string, float32, bool) {
	objectConfidence := data[4] // objectness
	if objectConfidence < d.params.ObjectConfidenceThreshold {
		return "", 0, false
	}

	classScores := data[5:]
	if len(classScores) != len(d.labels) {
		return "", 0, false
	}

	classID := -1
	classConfidence := float32(0.0)
	for j, score := range classScores {
		if len(d.allowed) > 0 && !d.allowed[strings.ToLower(d.labels[j])] {
			continue
		}
		if score > classConfidence {
			classConfidence = score
			classID = j
		}
	}

	finalConf := objectConfidence * classConfidence
	if classID == -1 || finalConf < d.params.ConfidenceThreshold {
		return "", 0, false
	}

	return d.labels[classID], finalConf, true
}
