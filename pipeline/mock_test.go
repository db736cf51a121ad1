package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/capture"
)

// eventLog records resource acquisitions and releases in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

// mockDevice is an in-memory capture handle that counts releases.
type mockDevice struct {
	mu     sync.Mutex
	name   string
	log    *eventLog
	limit  int
	read   int
	closes int
}

func (d *mockDevice) Read() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closes > 0 || (d.limit >= 0 && d.read >= d.limit) {
		return nil, capture.ErrEndOfStream
	}
	d.read++
	return testImage(4, 3), nil
}

func (d *mockDevice) Size() (int, int) { return 4, 3 }

func (d *mockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	d.log.add("close %s", d.name)
	return nil
}

func (d *mockDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

type mockCapture struct {
	mu          sync.Mutex
	log         *eventLog
	devices     []*mockDevice
	cameraErr   error
	videoFrames int
	// onOpenVideo observes the path while the decoder "opens" it
	onOpenVideo func(path string)
}

func newMockCapture() *mockCapture {
	return &mockCapture{
		log:         &eventLog{},
		videoFrames: 3,
	}
}

func (m *mockCapture) OpenCamera(cfg capture.CameraConfig) (capture.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cameraErr != nil {
		return nil, m.cameraErr
	}
	d := &mockDevice{name: fmt.Sprintf("camera-%d", cfg.DeviceID), log: m.log, limit: -1}
	m.devices = append(m.devices, d)
	m.log.add("open %s", d.name)
	return d, nil
}

func (m *mockCapture) OpenVideo(path string) (capture.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.onOpenVideo != nil {
		m.onOpenVideo(path)
	}
	d := &mockDevice{name: "video", log: m.log, limit: m.videoFrames}
	m.devices = append(m.devices, d)
	m.log.add("open %s", d.name)
	return d, nil
}

func (m *mockCapture) device(i int) *mockDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[i]
}

// scriptedSource hands out frames from a function; nil means "not yet".
type scriptedSource struct {
	mu     sync.Mutex
	calls  int
	frames int
	errors int
	next   func(call int) (*model.Frame, error)
}

func (s *scriptedSource) Start(context.Context) error { return nil }
func (s *scriptedSource) Stop() error                 { return nil }
func (s *scriptedSource) Mode() model.SourceMode      { return model.LiveCamera }
func (s *scriptedSource) Name() string                { return "scripted" }

func (s *scriptedSource) CurrentFrame() (*model.Frame, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	frame, err := s.next(call)

	s.mu.Lock()
	defer s.mu.Unlock()
	if frame != nil {
		s.frames++
	}
	if err != nil {
		s.errors++
	}
	return frame, err
}

func (s *scriptedSource) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SourceStats{Frames: s.frames, Errors: s.errors}
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// liveSource yields a new frame on every call.
func liveSource() *scriptedSource {
	return &scriptedSource{
		next: func(call int) (*model.Frame, error) {
			return model.NewFrame(testImage(4, 3), uint64(call)), nil
		},
	}
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func pngBlob(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(6, 5)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return &buf
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not stop, state %s", r.State())
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func capSvcConfig(id int) capture.CameraConfig {
	return capture.CameraConfig{DeviceID: id, Width: 4, Height: 3, FacingMode: "user"}
}
