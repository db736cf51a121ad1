package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler paces runner ticks. Next blocks until the next tick is due or
// ctx is done.
type Scheduler interface {
	Next(ctx context.Context) error
}

type intervalScheduler struct {
	clk      clock.Clock
	interval time.Duration
}

// NewIntervalScheduler ticks at most once per interval, the Go stand-in for a
// display refresh callback.
func NewIntervalScheduler(clk clock.Clock, interval time.Duration) Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &intervalScheduler{
		clk:      clk,
		interval: interval,
	}
}

// NewFPSScheduler ticks fps times per second.
func NewFPSScheduler(fps int) Scheduler {
	if fps <= 0 {
		fps = 60
	}
	return NewIntervalScheduler(clock.New(), time.Second/time.Duration(fps))
}

func (s *intervalScheduler) Next(ctx context.Context) error {
	if s.interval <= 0 {
		return ctx.Err()
	}

	timer := s.clk.Timer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type immediateScheduler struct{}

// Immediate ticks as soon as the previous iteration settles.
func Immediate() Scheduler {
	return immediateScheduler{}
}

func (immediateScheduler) Next(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}
