package model

import (
	"fmt"
	"image"
	"strings"
	"time"

	gxerrors "github.com/mdobak/go-xerrors"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	message := fmt.Sprintf(messagef, args...)
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    message,
		StackTrace: gxerrors.Sprint(gxerrors.New(message)),
		Misc:       misc,
	}
}

// Frame is one captured visual sample. It must not be mutated after capture.
type Frame struct {
	Image     image.Image `json:"-"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewFrame(img image.Image, seq uint64) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Seq:       seq,
		Timestamp: time.Now(),
	}
}

type Keypoint struct {
	Part       string  `json:"part"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

type Prediction struct {
	Label      string           `json:"label"`
	Confidence float64          `json:"confidence"`
	Box        *image.Rectangle `json:"box,omitempty"`
	Keypoints  []Keypoint       `json:"keypoints,omitempty"`
}

type RunnerState int

const (
	Idle RunnerState = iota
	Running
	Stopping
)

func (s RunnerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("RunnerState(%d)", int(s))
}

type SourceMode int

const (
	Upload SourceMode = iota
	LiveCamera
	VideoFile
)

func (m SourceMode) String() string {
	switch m {
	case Upload:
		return "upload"
	case LiveCamera:
		return "live"
	case VideoFile:
		return "video"
	}
	return fmt.Sprintf("SourceMode(%d)", int(m))
}

func ParseSourceMode(s string) (SourceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload", "image":
		return Upload, nil
	case "live", "camera":
		return LiveCamera, nil
	case "video":
		return VideoFile, nil
	}
	return Upload, fmt.Errorf("unknown source mode %q", s)
}

// ErrorPolicy decides what a runner does after an inference failure.
type ErrorPolicy int

const (
	Continue ErrorPolicy = iota
	Halt
)

func (p ErrorPolicy) String() string {
	if p == Halt {
		return "halt"
	}
	return "continue"
}

func ParseErrorPolicy(s string) ErrorPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "halt") {
		return Halt
	}
	return Continue
}

type RunnerStats struct {
	Name         string  `json:"name"`
	Runner       string  `json:"runner"`
	Source       string  `json:"source"`
	Frames       int     `json:"frames"`
	Inferences   int     `json:"inferences"`
	Skipped      int     `json:"skipped"`
	Errors       int     `json:"errors"`
	SourceFrames int     `json:"sourceFrames"`
	SourceErrors int     `json:"sourceErrors"`
	Uptime       int64   `json:"uptime"`
	FPS          int     `json:"fps"`
	AvgProcTime  float64 `json:"avgProcTime"`
	Timestamp    int64   `json:"timestamp"`
}

type SessionStats struct {
	ID        string `json:"id"`
	Mode      string `json:"mode"`
	Switches  int    `json:"switches"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}
