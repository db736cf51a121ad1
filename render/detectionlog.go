package render

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/khaledhikmat/vs-infer/model"
	"github.com/natefinch/lumberjack"
	"golang.org/x/xerrors"
)

type detectionEntry struct {
	Time       string             `json:"time"`
	Source     string             `json:"source"`
	Frame      uint64             `json:"frame"`
	Detections []model.Prediction `json:"detections"`
}

// DetectionLog appends JSON lines describing detections to a rotating file.
// A label that was logged within the cooldown is not logged again.
type DetectionLog struct {
	mu       sync.Mutex
	w        io.WriteCloser
	clk      clock.Clock
	cooldown time.Duration
	allowed  map[string]bool
	lastSeen map[string]time.Time
}

// NewDetectionLog writes to filename, rotated at 10 MB with 5 compressed
// backups kept for 7 days.
func NewDetectionLog(filename string, cooldown time.Duration, labels ...string) *DetectionLog {
	return NewDetectionLogWriter(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	}, clock.New(), cooldown, labels...)
}

func NewDetectionLogWriter(w io.WriteCloser, clk clock.Clock, cooldown time.Duration, labels ...string) *DetectionLog {
	allowed := map[string]bool{}
	for _, l := range labels {
		allowed[strings.ToLower(l)] = true
	}
	return &DetectionLog{
		w:        w,
		clk:      clk,
		cooldown: cooldown,
		allowed:  allowed,
		lastSeen: map[string]time.Time{},
	}
}

// Log records the detections of one frame. It reports whether a line was
// written.
func (l *DetectionLog) Log(source string, frame *model.Frame, preds []model.Prediction) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	filtered := []model.Prediction{}
	for _, p := range preds {
		label := strings.ToLower(p.Label)
		if len(l.allowed) > 0 && !l.allowed[label] {
			continue
		}
		if last, ok := l.lastSeen[label]; ok && now.Sub(last) < l.cooldown {
			continue
		}
		filtered = append(filtered, p)
	}

	if len(filtered) == 0 {
		return false, nil
	}

	for _, p := range filtered {
		l.lastSeen[strings.ToLower(p.Label)] = now
	}

	entry := detectionEntry{
		Time:       now.Format(time.RFC3339),
		Source:     source,
		Detections: filtered,
	}
	if frame != nil {
		entry.Frame = frame.Seq
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, xerrors.Errorf("error marshaling detections: %w", err)
	}

	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return false, xerrors.Errorf("error writing detection log: %w", err)
	}
	return true, nil
}

func (l *DetectionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}
