package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-notes/internal/wave"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// DefaultChunkFrames is one second of audio at the engine sample rate.
const DefaultChunkFrames = wave.SampleRate

var (
	ErrNotReady = errors.New("stt: no model ready")
	ErrBusy     = errors.New("stt: transcription already running")
)

// Status is the orchestrator lifecycle position.
type Status int

const (
	StatusIdle Status = iota
	StatusModelLoading
	StatusReady
	StatusTranscribing
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusModelLoading:
		return "model_loading"
	case StatusReady:
		return "ready"
	case StatusTranscribing:
		return "transcribing"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Callbacks receive run events on the run goroutine, in engine order.
// Segment times are relative to the start of the file, not the chunk.
// Exactly one of OnComplete, OnCancel or OnError ends a run; it is called
// after the final status is recorded, so it may call Finish or Initialize.
type Callbacks struct {
	OnProgress func(percent int)
	OnSegment  func(Segment)
	OnComplete func()
	OnCancel   func()
	OnError    func(error)
}

type Options struct {
	ChunkFrames  int
	ChunkTimeout time.Duration
	Logger       *slog.Logger
}

// Orchestrator feeds a waveform file to a Model one chunk at a time.
type Orchestrator struct {
	engine      Engine
	chunkFrames int
	timeout     time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer

	lifecycle sync.Mutex // serializes Initialize and Finish

	mu      sync.Mutex
	status  Status
	model   Model
	err     error
	done    chan struct{}
	closing bool // Start is refused while the model is being replaced

	cancel atomic.Bool

	chunks   metric.Int64Counter
	segments metric.Int64Counter
	runs     metric.Int64Counter
}

func NewOrchestrator(engine Engine, opts Options) *Orchestrator {
	if opts.ChunkFrames <= 0 {
		opts.ChunkFrames = DefaultChunkFrames
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		engine:      engine,
		chunkFrames: opts.ChunkFrames,
		timeout:     opts.ChunkTimeout,
		logger:      logger.With(slog.String("component", "stt-orchestrator")),
		tracer:      otel.Tracer("github.com/loqalabs/loqa-notes/stt"),
	}
	if err := o.initMetrics(otel.Meter("github.com/loqalabs/loqa-notes/stt")); err != nil {
		o.logger.Warn("failed to initialize metrics", slogError(err))
		_ = o.initMetrics(noop.NewMeterProvider().Meter(""))
	}
	return o
}

func (o *Orchestrator) initMetrics(meter metric.Meter) error {
	var err error
	if o.chunks, err = meter.Int64Counter("notes.stt.chunks", metric.WithDescription("Audio chunks submitted to the engine")); err != nil {
		return err
	}
	if o.segments, err = meter.Int64Counter("notes.stt.segments", metric.WithDescription("Segments produced by the engine")); err != nil {
		return err
	}
	o.runs, err = meter.Int64Counter("notes.stt.runs", metric.WithDescription("Finished transcription runs by status"))
	return err
}

// Status returns the current lifecycle position.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Err returns the reason for the last Failed transition.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Initialize loads modelPath, replacing any model loaded earlier.
func (o *Orchestrator) Initialize(ctx context.Context, modelPath string) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.drain()

	o.mu.Lock()
	prior := o.model
	o.model = nil
	o.status = StatusModelLoading
	o.err = nil
	o.closing = false
	o.mu.Unlock()

	if prior != nil {
		if err := prior.Release(); err != nil {
			o.logger.Warn("release previous model failed", slogError(err))
		}
	}

	model, err := o.engine.Load(ctx, modelPath)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.status = StatusFailed
		o.err = fmt.Errorf("%w: %s: %w", ErrModelLoad, modelPath, err)
		o.logger.Error("model load failed", slog.String("model", modelPath), slogError(err))
		return o.err
	}
	o.model = model
	o.status = StatusReady
	o.logger.Info("model ready", slog.String("model", modelPath))
	return nil
}

// Reset returns a finished orchestrator to Ready while keeping the loaded
// model. It is a no-op in any other state.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		if o.model != nil {
			o.status = StatusReady
			o.err = nil
		}
	}
}

// Start begins transcribing path in the background. It returns ErrBusy or
// ErrNotReady without touching the running state when a run cannot start.
func (o *Orchestrator) Start(ctx context.Context, path, language string, cb Callbacks) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.closing:
		return fmt.Errorf("%w: orchestrator is shutting down", ErrNotReady)
	case o.status == StatusReady:
	case o.status == StatusTranscribing:
		return ErrBusy
	default:
		return fmt.Errorf("%w: orchestrator is %s", ErrNotReady, o.status)
	}

	stream, err := wave.OpenStream(path, o.chunkFrames)
	if err != nil {
		o.status = StatusFailed
		o.err = err
		return err
	}
	total, err := wave.EstimateFrames(path)
	if err != nil {
		stream.Close()
		o.status = StatusFailed
		o.err = err
		return err
	}

	o.cancel.Store(false)
	o.status = StatusTranscribing
	o.err = nil
	done := make(chan struct{})
	o.done = done

	go o.run(ctx, o.model, stream, total, language, cb, done)
	return nil
}

// Stop asks the running transcription to end at the next chunk boundary.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == StatusTranscribing {
		o.cancel.Store(true)
	}
}

// Wait blocks until the current run, if any, has recorded its final status.
// The terminal callback may still be running when Wait returns.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Finish cancels any run and releases the model. It may be called any
// number of times.
func (o *Orchestrator) Finish() error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.drain()

	o.mu.Lock()
	model := o.model
	o.model = nil
	o.status = StatusIdle
	o.closing = false
	o.mu.Unlock()

	if model == nil {
		return nil
	}
	if err := model.Release(); err != nil {
		return fmt.Errorf("release model: %w", err)
	}
	return nil
}

// drain refuses new runs, cancels the current one and waits for it to
// settle. The caller clears closing once the model has been swapped out.
func (o *Orchestrator) drain() {
	o.mu.Lock()
	o.closing = true
	if o.status == StatusTranscribing {
		o.cancel.Store(true)
	}
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) run(ctx context.Context, model Model, stream *wave.Stream, total int64, language string, cb Callbacks, done chan struct{}) {
	status, err := o.process(ctx, model, stream, total, language, cb)
	close(done)

	switch status {
	case StatusCompleted:
		if cb.OnComplete != nil {
			cb.OnComplete()
		}
	case StatusCancelled:
		if cb.OnCancel != nil {
			cb.OnCancel()
		}
	case StatusFailed:
		if cb.OnError != nil {
			cb.OnError(err)
		}
	}
}

// process drives the chunk loop and records the final status before
// returning it.
func (o *Orchestrator) process(ctx context.Context, model Model, stream *wave.Stream, total int64, language string, cb Callbacks) (Status, error) {
	defer stream.Close()

	ctx, span := o.tracer.Start(ctx, "stt.run")
	defer span.End()

	started := time.Now()
	var framesDone int64
	last := -1
	report := func(percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		if percent > last {
			last = percent
			if cb.OnProgress != nil {
				cb.OnProgress(percent)
			}
		}
	}

	for {
		if o.cancel.Load() || ctx.Err() != nil {
			model.StopTranscription()
			o.transition(StatusCancelled, nil)
			o.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", StatusCancelled.String())))
			o.logger.Info("transcription cancelled", slog.Int64("frames", framesDone))
			return StatusCancelled, nil
		}

		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return o.fail(ctx, err)
		}

		offset := framesDone * 1000 / wave.SampleRate
		base := framesDone
		h := handlerFuncs{
			segment: func(s Segment) {
				s.StartMs += offset
				s.EndMs += offset
				o.segments.Add(ctx, 1)
				if cb.OnSegment != nil {
					cb.OnSegment(s)
				}
			},
			progress: func(p int) {
				if total > 0 {
					report(int((base + int64(p)*int64(chunk.Frames)/100) * 100 / total))
				}
			},
		}

		callCtx := ctx
		cancelCall := func() {}
		if o.timeout > 0 {
			callCtx, cancelCall = context.WithTimeout(ctx, o.timeout)
		}
		err = model.Transcribe(callCtx, chunk.Samples, language, h)
		cancelCall()
		if err != nil {
			return o.fail(ctx, fmt.Errorf("%w: chunk %d: %w", ErrEngine, chunk.Index, err))
		}
		o.chunks.Add(ctx, 1)

		framesDone += int64(chunk.Frames)
		if total > 0 {
			report(int(framesDone * 100 / total))
		}
	}

	report(100)
	o.transition(StatusCompleted, nil)
	o.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", StatusCompleted.String())))
	span.SetAttributes(attribute.Int64("frames", framesDone))
	o.logger.Info("transcription complete",
		slog.Int64("frames", framesDone),
		slog.Duration("elapsed", time.Since(started)))
	return StatusCompleted, nil
}

func (o *Orchestrator) fail(ctx context.Context, err error) (Status, error) {
	o.transition(StatusFailed, err)
	o.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", StatusFailed.String())))
	trace.SpanFromContext(ctx).RecordError(err)
	o.logger.Warn("transcription failed", slogError(err))
	return StatusFailed, err
}

func (o *Orchestrator) transition(status Status, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
	o.err = err
}
