package mode

import (
	"context"
	"fmt"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/render"
	"github.com/khaledhikmat/vs-infer/service/config"
)

const defaultTopK = 5

// Classifier labels an uploaded image once, or camera/video frames
// continuously, printing the top predictions.
func Classifier(canxCtx context.Context, svcs ServicesFactory, req Request) error {
	status := render.NewStatus(svcs.Out)
	params := svcs.CfgSvc.GetModelParameters(config.ClassifierName)

	status.Update("Loading model...")
	clf, err := svcs.InferenceSvc.NewClassifier(params)
	if err != nil {
		status.Error(err)
		procError(svcs.DataSvc, model.GenError("mode_classifier",
			err,
			map[string]interface{}{"model": params.ModelPath},
			"error loading classifier"))
		return err
	}

	topK := params.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	// Live streams repeat themselves, only print when the best guess changes
	printed := false
	last := ""

	return loop{
		name:   config.ClassifierName,
		policy: model.ParseErrorPolicy(params.ErrorPolicy),
		status: status,
		infer: func(ctx context.Context, frame *model.Frame) ([]model.Prediction, error) {
			return clf.Classify(ctx, frame, topK)
		},
		onResult: func(frame *model.Frame, preds []model.Prediction) {
			top := topLabel(preds)
			if printed && top == last {
				return
			}
			printed = true
			last = top
			fmt.Fprintf(svcs.Out, "frame %d\n%s\n", frame.Seq, render.Classifications(preds))
		},
		cleanup: func() {
			// Crucial to release the network
			clf.Close()
		},
	}.run(canxCtx, svcs, req)
}
