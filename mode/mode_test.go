package mode

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/pipeline"
	"github.com/khaledhikmat/vs-infer/posture"
	"github.com/khaledhikmat/vs-infer/render"
	"github.com/khaledhikmat/vs-infer/service/capture"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/data"
	"github.com/khaledhikmat/vs-infer/service/inference"
	"golang.org/x/xerrors"
)

// syncBuffer is written by the runner goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	svcs ServicesFactory
	fake *inference.Fake
	out  *syncBuffer
	dir  string
}

func newHarness(t *testing.T, videoFrames int) *harness {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"OUTPUT_FOLDER":          dir,
		"LOOP_FPS":               "1000",
		"MODE_MAX_SHUTDOWN_TIME": "2",
	}
	cfgSvc := config.NewEnvWithLookup(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	fake := inference.NewFake()
	out := &syncBuffer{}
	return &harness{
		svcs: ServicesFactory{
			CfgSvc:       cfgSvc,
			DataSvc:      data.NewFilesDB(cfgSvc),
			CaptureSvc:   capture.NewFake(64, 48, videoFrames),
			InferenceSvc: inference.NewFakeService(fake),
			Out:          out,
		},
		fake: fake,
		out:  out,
		dir:  dir,
	}
}

func pngInput(t *testing.T) pipeline.Input {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return pipeline.Input{Blob: &buf}
}

func runWithTimeout(t *testing.T, ctx context.Context, proc Processor, svcs ServicesFactory, req Request) error {
	t.Helper()
	result := make(chan error, 1)
	go func() {
		result <- proc(ctx, svcs, req)
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("processor did not return")
	}
	return nil
}

func TestClassifierUpload(t *testing.T) {
	h := newHarness(t, 0)

	err := runWithTimeout(t, context.Background(), Classifier, h.svcs, Request{
		Source:   model.Upload,
		Input:    pngInput(t),
		DeviceID: -1,
	})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}

	out := h.out.String()
	for _, want := range []string{"Image loaded", "frame 1", "tabby cat  62.00%", "lynx  4.00%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "carton") {
		t.Errorf("output holds more than the top 5:\n%s", out)
	}
	if got := h.fake.Calls(); got != 1 {
		t.Errorf("got %d inferences on a still image, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "runner-stats.json")); err != nil {
		t.Errorf("runner stats not stored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "session-stats.json")); err != nil {
		t.Errorf("session stats not stored: %v", err)
	}
}

func TestTrafficVideo(t *testing.T) {
	h := newHarness(t, 4)

	err := runWithTimeout(t, context.Background(), Traffic, h.svcs, Request{
		Source:   model.VideoFile,
		Input:    pipeline.Input{Path: "highway.mp4"},
		DeviceID: -1,
	})
	if err != nil {
		t.Fatalf("traffic: %v", err)
	}

	out := h.out.String()
	for _, want := range []string{"Video loaded", "cars: 2  trucks: 1  motorcycles: 0", "Video ended"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := h.fake.Calls(); got != 4 {
		t.Errorf("got %d detections, want 4", got)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "traffic.png")); err != nil {
		t.Errorf("annotated frame not saved: %v", err)
	}

	logged, err := os.ReadFile(filepath.Join(h.dir, "detections.log"))
	if err != nil {
		t.Fatalf("detection log: %v", err)
	}
	if strings.Contains(string(logged), "person") || !strings.Contains(string(logged), "highway.mp4") {
		t.Errorf("got detection log %s", logged)
	}
}

func TestTrafficHaltsOnDetectionError(t *testing.T) {
	h := newHarness(t, 10)
	h.fake.Err = errors.New("tensor shape mismatch")

	err := runWithTimeout(t, context.Background(), Traffic, h.svcs, Request{
		Source:   model.VideoFile,
		Input:    pipeline.Input{Path: "highway.mp4"},
		DeviceID: -1,
	})
	if !errors.Is(err, model.ErrInferenceFailure) {
		t.Fatalf("got %v, want ErrInferenceFailure", err)
	}
	if got := h.fake.Calls(); got != 1 {
		t.Errorf("got %d detections, want 1", got)
	}
	if out := h.out.String(); !strings.Contains(out, "Detection error") {
		t.Errorf("output missing detection error:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "errors.json")); err != nil {
		t.Errorf("error not stored: %v", err)
	}
}

func TestTrafficRejectsUpload(t *testing.T) {
	h := newHarness(t, 0)
	err := Traffic(context.Background(), h.svcs, Request{Source: model.Upload, Input: pngInput(t), DeviceID: -1})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestPostureLiveUntilCancelled(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for h.fake.Calls() < 3 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := runWithTimeout(t, ctx, Posture, h.svcs, Request{Source: model.LiveCamera, DeviceID: 2})
	if err != nil {
		t.Fatalf("posture: %v", err)
	}

	out := h.out.String()
	if !strings.Contains(out, "Camera active") || !strings.Contains(out, posture.MsgGoodPosture) {
		t.Errorf("got output:\n%s", out)
	}
	// Feedback is printed when it changes, not on every frame
	if got := strings.Count(out, posture.MsgGoodPosture); got != 1 {
		t.Errorf("got feedback printed %d times, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "posture.png")); err != nil {
		t.Errorf("annotated frame not saved: %v", err)
	}
}

type brokenModels struct{}

func (brokenModels) NewClassifier(params config.ModelParameters) (inference.Classifier, error) {
	return nil, xerrors.Errorf("%s: %w", params.ModelPath, model.ErrModelLoadFailure)
}

func (brokenModels) NewDetector(params config.ModelParameters) (inference.Detector, error) {
	return nil, xerrors.Errorf("%s: %w", params.ModelPath, model.ErrModelLoadFailure)
}

func (brokenModels) NewPoseEstimator(params config.ModelParameters) (inference.PoseEstimator, error) {
	return nil, xerrors.Errorf("%s: %w", params.ModelPath, model.ErrModelLoadFailure)
}

func TestModelLoadFailure(t *testing.T) {
	procs := map[string]Processor{
		"classifier": Classifier,
		"posture":    Posture,
		"traffic":    Traffic,
	}

	for name, proc := range procs {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 1)
			h.svcs.InferenceSvc = brokenModels{}

			err := proc(context.Background(), h.svcs, Request{Source: model.LiveCamera, DeviceID: -1})
			if !errors.Is(err, model.ErrModelLoadFailure) {
				t.Fatalf("got %v, want ErrModelLoadFailure", err)
			}
			if out := h.out.String(); !strings.Contains(out, "Error loading model") {
				t.Errorf("output missing model error:\n%s", out)
			}
		})
	}
}

type deniedCamera struct{}

func (deniedCamera) OpenCamera(capture.CameraConfig) (capture.Device, error) {
	return nil, errors.New("permission denied")
}

func (deniedCamera) OpenVideo(string) (capture.Device, error) {
	return nil, errors.New("no decoder")
}

func TestCameraUnavailable(t *testing.T) {
	h := newHarness(t, 0)
	h.svcs.CaptureSvc = deniedCamera{}

	err := Posture(context.Background(), h.svcs, Request{Source: model.LiveCamera, DeviceID: 0})
	if !errors.Is(err, model.ErrDeviceUnavailable) {
		t.Fatalf("got %v, want ErrDeviceUnavailable", err)
	}

	msg := h.out.String()
	if !strings.Contains(msg, "Error accessing camera") {
		t.Errorf("output missing camera error:\n%s", msg)
	}
	if h.fake.Calls() != 0 {
		t.Error("model ran without a source")
	}
}

// trackedCapture counts camera releases on top of the fake capture.
type trackedCapture struct {
	capture.IService
	mu     sync.Mutex
	opened int
	closed int
}

func (c *trackedCapture) OpenCamera(cfg capture.CameraConfig) (capture.Device, error) {
	d, err := c.IService.OpenCamera(cfg)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.opened++
	c.mu.Unlock()
	return &trackedDevice{Device: d, owner: c}, nil
}

func (c *trackedCapture) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.closed
}

type trackedDevice struct {
	capture.Device
	owner *trackedCapture
	once  sync.Once
}

func (d *trackedDevice) Close() error {
	d.once.Do(func() {
		d.owner.mu.Lock()
		d.owner.closed++
		d.owner.mu.Unlock()
	})
	return d.Device.Close()
}

func TestRunFailureReleasesCamera(t *testing.T) {
	h := newHarness(t, 0)
	tracked := &trackedCapture{IService: h.svcs.CaptureSvc}
	h.svcs.CaptureSvc = tracked

	// A loop without an inference function cannot start its runner
	err := loop{
		name:   config.PostureName,
		policy: model.Continue,
		status: render.NewStatus(h.out),
	}.run(context.Background(), h.svcs, Request{Source: model.LiveCamera, DeviceID: 0})
	if err == nil {
		t.Fatal("expected the runner to refuse to start")
	}

	opened, closed := tracked.counts()
	if opened != 1 || closed != 1 {
		t.Errorf("got camera opened %d closed %d, want 1 and 1", opened, closed)
	}
}

func TestNewOverlayKeepsBuiltinFaceOnBadFont(t *testing.T) {
	cfgSvc := config.NewEnvWithLookup(func(key string) (string, bool) {
		if key == "OVERLAY_FONT" {
			return filepath.Join(t.TempDir(), "missing.ttf"), true
		}
		return "", false
	})

	overlay := newOverlay(cfgSvc)
	if _, err := overlay.Draw(model.NewFrame(image.NewRGBA(image.Rect(0, 0, 20, 20)), 1), []model.Prediction{
		{Label: "car", Confidence: 0.7, Box: &image.Rectangle{Min: image.Pt(2, 12), Max: image.Pt(15, 18)}},
	}); err != nil {
		t.Fatalf("draw: %v", err)
	}
}
