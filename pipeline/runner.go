package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/xerrors"
)

// InferFunc runs the model on one frame.
type InferFunc func(ctx context.Context, frame *model.Frame) ([]model.Prediction, error)

// ResultFunc consumes the predictions of one frame.
type ResultFunc func(frame *model.Frame, preds []model.Prediction)

type ErrorFunc func(err error)

type StatsFunc func(stats model.RunnerStats)

type RunnerOption func(*Runner)

func WithScheduler(s Scheduler) RunnerOption {
	return func(r *Runner) {
		r.sched = s
	}
}

func WithErrorPolicy(p model.ErrorPolicy) RunnerOption {
	return func(r *Runner) {
		r.policy = p
	}
}

func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = t
	}
}

// WithStats receives the loop statistics every time a loop ends.
func WithStats(fn StatsFunc) RunnerOption {
	return func(r *Runner) {
		r.onStats = fn
	}
}

func WithName(name string) RunnerOption {
	return func(r *Runner) {
		r.name = name
	}
}

// Runner drives the fetch-infer-render cycle over a FrameSource. Iterations
// never overlap: the next tick is scheduled only after the previous inference
// call settled. Cancellation is cooperative and checked at the top of every
// tick, an in-flight inference call is never preempted.
type Runner struct {
	id      string
	name    string
	sched   Scheduler
	policy  model.ErrorPolicy
	tracer  trace.Tracer
	onStats StatsFunc

	mu    sync.Mutex
	state model.RunnerState
	gen   uint64
	stop  chan struct{}
	done  chan struct{}
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		id:     uuid.NewString(),
		name:   "runner",
		sched:  NewFPSScheduler(60),
		policy: model.Continue,
		tracer: noop.NewTracerProvider().Tracer("vs-infer/pipeline"),
		state:  model.Idle,
	}

	for _, opt := range opts {
		opt(r)
	}

	closed := make(chan struct{})
	close(closed)
	r.done = closed

	return r
}

func (r *Runner) ID() string { return r.id }

func (r *Runner) State() model.RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed when the current (or last) loop has exited.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Start launches the loop. It fails with model.ErrRunnerBusy unless the
// runner is Idle, so there is never more than one active loop.
func (r *Runner) Start(ctx context.Context, src FrameSource, infer InferFunc, onResult ResultFunc, onError ErrorFunc) error {
	if src == nil {
		return model.ErrNoSource
	}
	if infer == nil {
		return xerrors.New("runner needs an inference function")
	}
	if onResult == nil {
		onResult = func(*model.Frame, []model.Prediction) {}
	}
	if onError == nil {
		onError = func(err error) {
			lgr.Logger.Error("runner error", slog.Any("error", err))
		}
	}

	r.mu.Lock()
	if r.state != model.Idle {
		state := r.state
		r.mu.Unlock()
		return xerrors.Errorf("runner %s is %s: %w", r.name, state, model.ErrRunnerBusy)
	}

	r.gen++
	gen := r.gen
	r.state = model.Running
	stop := make(chan struct{})
	done := make(chan struct{})
	r.stop = stop
	r.done = done
	r.mu.Unlock()

	lgr.Logger.Info("runner starting....",
		slog.String("runner", r.name),
		slog.String("runnerID", r.id),
		slog.String("source", src.Name()),
		slog.String("mode", src.Mode().String()),
		slog.String("policy", r.policy.String()),
	)

	go r.loop(ctx, gen, stop, done, src, infer, onResult, onError)
	return nil
}

// Stop asks the loop to halt. An in-flight inference call finishes but its
// result is dropped. Stop does not wait, see StopAndWait.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != model.Running {
		return
	}
	r.state = model.Stopping
	close(r.stop)
}

// StopAndWait stops the runner and blocks until it is Idle. A runner that
// already exited returns nil even when ctx is done.
func (r *Runner) StopAndWait(ctx context.Context) error {
	r.Stop()

	done := r.Done()
	select {
	case <-done:
		return nil
	default:
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// halt moves a loop that ends on its own into Stopping, so that Start stays
// rejected until the loop has fully exited.
func (r *Runner) halt(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen || r.state != model.Running {
		return
	}
	r.state = model.Stopping
	close(r.stop)
}

func (r *Runner) active(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen && r.state == model.Running
}

func (r *Runner) loop(ctx context.Context, gen uint64, stop, done chan struct{}, src FrameSource, infer InferFunc, onResult ResultFunc, onError ErrorFunc) {
	stats := model.RunnerStats{
		Name:   r.name,
		Runner: r.id,
		Source: src.Name(),
	}
	beginTime := time.Now()
	var totalInferenceTime time.Duration

	// The scheduler wait is the only place a stop interrupts
	waitCtx, cancelWait := context.WithCancel(ctx)
	go func() {
		select {
		case <-stop:
			cancelWait()
		case <-waitCtx.Done():
		}
	}()

	defer func() {
		cancelWait()

		r.mu.Lock()
		if r.gen == gen {
			r.state = model.Idle
		}
		r.mu.Unlock()

		uptime := time.Since(beginTime)
		stats.Uptime = int64(uptime.Seconds())
		if uptime > 0 {
			stats.FPS = int(float64(stats.Frames) / uptime.Seconds())
		}
		if stats.Inferences > 0 {
			stats.AvgProcTime = totalInferenceTime.Seconds() / float64(stats.Inferences)
		}
		stats.Timestamp = time.Now().Unix()

		lgr.Logger.Info("runner stopped",
			slog.String("runner", r.name),
			slog.Int("frames", stats.Frames),
			slog.Int("errors", stats.Errors),
		)

		srcStats := src.Stats()
		stats.SourceFrames = srcStats.Frames
		stats.SourceErrors = srcStats.Errors

		if r.onStats != nil {
			r.onStats(stats)
		}
		close(done)
	}()

	var lastSeq uint64
	inferred := false

	for {
		if err := r.sched.Next(waitCtx); err != nil {
			return
		}

		if !r.active(gen) || ctx.Err() != nil {
			return
		}

		frame, err := src.CurrentFrame()
		if err != nil {
			stats.Errors++
			r.halt(gen)
			onError(err)
			return
		}

		// No frame yet, or nothing new since the last inference
		if frame == nil || (inferred && frame.Seq == lastSeq) {
			stats.Skipped++
			continue
		}
		lastSeq = frame.Seq
		inferred = true
		stats.Frames++

		startInference := time.Now()
		preds, err := r.infer(ctx, src, infer, frame)
		totalInferenceTime += time.Since(startInference)

		if !r.active(gen) || ctx.Err() != nil {
			// Nothing settling after a stop is delivered, failures included
			if err != nil {
				stats.Errors++
				lgr.Logger.Warn("runner dropped inference error after stop",
					slog.String("runner", r.name),
					slog.Uint64("frame", frame.Seq),
					slog.Any("error", err),
				)
			}
			return
		}

		if err != nil {
			stats.Errors++
			if r.policy == model.Halt {
				r.halt(gen)
			}
			onError(fmt.Errorf("%w: frame %d: %w", model.ErrInferenceFailure, frame.Seq, err))
			if r.policy == model.Halt {
				return
			}
			continue
		}

		stats.Inferences++
		onResult(frame, preds)
	}
}

func (r *Runner) infer(ctx context.Context, src FrameSource, infer InferFunc, frame *model.Frame) (preds []model.Prediction, err error) {
	ctx, span := r.tracer.Start(ctx, "runner.infer", trace.WithAttributes(
		attribute.String("runner", r.name),
		attribute.String("source", src.Name()),
		attribute.Int64("frame.seq", int64(frame.Seq)),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err = xerrors.Errorf("recovered from panic: %v", rec)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(attribute.Int("predictions", len(preds)))
	}()

	return infer(ctx, frame)
}
