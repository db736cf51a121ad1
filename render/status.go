package render

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/khaledhikmat/vs-infer/model"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	}
	return "info"
}

// Describe maps an error to a status line and severity by its kind.
func Describe(err error) (string, Severity) {
	switch {
	case err == nil:
		return "", SeverityInfo
	case errors.Is(err, model.ErrSourceExhausted):
		return "Video ended", SeverityInfo
	case errors.Is(err, model.ErrDeviceUnavailable):
		return "Error accessing camera: " + err.Error(), SeverityError
	case errors.Is(err, model.ErrModelLoadFailure):
		return "Error loading model: " + err.Error(), SeverityError
	case errors.Is(err, model.ErrInferenceFailure):
		return "Detection error: " + err.Error(), SeverityWarn
	}
	return "Error: " + err.Error(), SeverityError
}

// Status is a single-line terminal status indicator.
type Status struct {
	mu       sync.Mutex
	out      io.Writer
	message  string
	severity Severity
	colors   map[Severity]*color.Color
}

func NewStatus(out io.Writer) *Status {
	return &Status{
		out: out,
		colors: map[Severity]*color.Color{
			SeverityInfo:  color.New(color.FgGreen),
			SeverityWarn:  color.New(color.FgYellow),
			SeverityError: color.New(color.FgRed, color.Bold),
		},
	}
}

// Update shows an informational message.
func (s *Status) Update(message string) {
	s.set(message, SeverityInfo)
}

// Error shows err with a severity derived from its kind.
func (s *Status) Error(err error) {
	if err == nil {
		return
	}
	msg, sev := Describe(err)
	s.set(msg, sev)
}

func (s *Status) Current() (string, Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message, s.severity
}

func (s *Status) set(message string, sev Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.message = message
	s.severity = sev
	if s.out != nil {
		s.colors[sev].Fprintln(s.out, fmt.Sprintf("[%s] %s", sev, message))
	}
}
