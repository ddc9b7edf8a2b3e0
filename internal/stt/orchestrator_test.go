package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-notes/internal/wave"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeSilence(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := wave.EncodeFile(path, make([]int16, seconds*wave.SampleRate)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

type fakeEngine struct {
	model   *fakeModel
	loadErr error
}

func (e *fakeEngine) Load(context.Context, string) (Model, error) {
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	return e.model, nil
}

type fakeModel struct {
	inflight atomic.Int32
	overlap  atomic.Bool
	calls    atomic.Int32
	stopped  atomic.Int32
	released atomic.Int32

	hook   func(call int)
	failAt int
	block  bool
}

func (m *fakeModel) Transcribe(ctx context.Context, samples []float32, _ string, h Handler) error {
	if m.inflight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inflight.Add(-1)

	n := int(m.calls.Add(1))
	if m.hook != nil {
		m.hook(n)
	}
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if n == m.failAt {
		return errors.New("boom")
	}
	h.OnProgress(50)
	h.OnSegment(Segment{EndMs: int64(len(samples)) * 1000 / wave.SampleRate, Text: fmt.Sprintf("s%d", n)})
	h.OnProgress(100)
	h.OnComplete()
	return nil
}

func (m *fakeModel) StopTranscription() { m.stopped.Add(1) }

func (m *fakeModel) Release() error {
	m.released.Add(1)
	return nil
}

type recorder struct {
	mu        sync.Mutex
	progress  []int
	segments  []Segment
	completed int
	cancelled int
	errs      []error
	ended     chan struct{}
}

func (r *recorder) callbacks() Callbacks {
	r.ended = make(chan struct{})
	end := func(update func()) {
		r.mu.Lock()
		update()
		r.mu.Unlock()
		close(r.ended)
	}
	return Callbacks{
		OnProgress: func(p int) { r.mu.Lock(); r.progress = append(r.progress, p); r.mu.Unlock() },
		OnSegment:  func(s Segment) { r.mu.Lock(); r.segments = append(r.segments, s); r.mu.Unlock() },
		OnComplete: func() { end(func() { r.completed++ }) },
		OnCancel:   func() { end(func() { r.cancelled++ }) },
		OnError:    func(err error) { end(func() { r.errs = append(r.errs, err) }) },
	}
}

// wait blocks until the terminal callback has run.
func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not reach a terminal callback")
	}
}

func newReadyOrchestrator(t *testing.T, model *fakeModel, opts Options) *Orchestrator {
	t.Helper()
	opts.Logger = testLogger()
	o := NewOrchestrator(&fakeEngine{model: model}, opts)
	if err := o.Initialize(context.Background(), "model.bin"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if o.Status() != StatusReady {
		t.Fatalf("expected ready, got %s", o.Status())
	}
	t.Cleanup(func() { _ = o.Finish() })
	return o
}

func TestOrchestratorCompletesRun(t *testing.T) {
	model := &fakeModel{}
	o := newReadyOrchestrator(t, model, Options{ChunkFrames: wave.SampleRate})
	path := writeSilence(t, 3)

	rec := &recorder{}
	if err := o.Start(context.Background(), path, "en", rec.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.wait(t)

	if o.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", o.Status())
	}
	if rec.completed != 1 || rec.cancelled != 0 || len(rec.errs) != 0 {
		t.Fatalf("unexpected terminal callbacks: %+v", rec)
	}
	if len(rec.segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(rec.segments))
	}
	for i, seg := range rec.segments {
		wantStart := int64(i * 1000)
		if seg.StartMs != wantStart || seg.EndMs != wantStart+1000 {
			t.Fatalf("segment %d offsets = [%d,%d]", i, seg.StartMs, seg.EndMs)
		}
		if seg.Text != fmt.Sprintf("s%d", i+1) {
			t.Fatalf("segment %d text = %q", i, seg.Text)
		}
	}
	for i := 1; i < len(rec.progress); i++ {
		if rec.progress[i] <= rec.progress[i-1] {
			t.Fatalf("progress not increasing: %v", rec.progress)
		}
	}
	if last := rec.progress[len(rec.progress)-1]; last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
	if model.overlap.Load() {
		t.Fatalf("engine saw concurrent calls")
	}
}

func TestOrchestratorStopAtChunkBoundary(t *testing.T) {
	model := &fakeModel{}
	o := newReadyOrchestrator(t, model, Options{ChunkFrames: wave.SampleRate})
	model.hook = func(call int) {
		if call == 2 {
			o.Stop()
		}
	}
	path := writeSilence(t, 5)

	rec := &recorder{}
	if err := o.Start(context.Background(), path, "en", rec.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.wait(t)

	if o.Status() != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", o.Status())
	}
	if len(rec.segments) != 2 {
		t.Fatalf("expected 2 segments before stop, got %d", len(rec.segments))
	}
	if rec.cancelled != 1 || rec.completed != 0 {
		t.Fatalf("unexpected terminal callbacks: %+v", rec)
	}
	if model.stopped.Load() != 1 {
		t.Fatalf("expected StopTranscription once, got %d", model.stopped.Load())
	}
	if model.calls.Load() != 2 {
		t.Fatalf("expected no chunk submitted after stop, got %d calls", model.calls.Load())
	}
}

func TestOrchestratorRejectsReentrantStart(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	model := &fakeModel{}
	model.hook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	o := newReadyOrchestrator(t, model, Options{})
	path := writeSilence(t, 2)

	if err := o.Start(context.Background(), path, "en", Callbacks{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered

	if err := o.Start(context.Background(), path, "en", Callbacks{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if o.Status() != StatusTranscribing {
		t.Fatalf("second start changed status to %s", o.Status())
	}
	close(release)
	o.Wait()
	if o.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", o.Status())
	}
	if model.overlap.Load() {
		t.Fatalf("engine saw concurrent calls")
	}
}

func TestOrchestratorStartBeforeInitialize(t *testing.T) {
	o := NewOrchestrator(&fakeEngine{model: &fakeModel{}}, Options{Logger: testLogger()})
	err := o.Start(context.Background(), writeSilence(t, 1), "en", Callbacks{})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if o.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", o.Status())
	}
}

func TestOrchestratorMissingModel(t *testing.T) {
	o := NewOrchestrator(NewMockEngine(), Options{Logger: testLogger()})
	err := o.Initialize(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if o.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", o.Status())
	}
	if !errors.Is(o.Err(), ErrModelLoad) {
		t.Fatalf("Err() = %v", o.Err())
	}
}

func TestOrchestratorEngineFailure(t *testing.T) {
	model := &fakeModel{failAt: 2}
	o := newReadyOrchestrator(t, model, Options{})
	rec := &recorder{}
	if err := o.Start(context.Background(), writeSilence(t, 4), "en", rec.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.wait(t)

	if o.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", o.Status())
	}
	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], ErrEngine) {
		t.Fatalf("expected one ErrEngine, got %v", rec.errs)
	}
	if !errors.Is(o.Err(), ErrEngine) {
		t.Fatalf("Err() = %v", o.Err())
	}
	if model.calls.Load() != 2 {
		t.Fatalf("expected run to abort after failing chunk, got %d calls", model.calls.Load())
	}
	if rec.completed != 0 {
		t.Fatalf("failed run reported completion")
	}
}

func TestOrchestratorChunkTimeout(t *testing.T) {
	model := &fakeModel{block: true}
	o := newReadyOrchestrator(t, model, Options{ChunkTimeout: 20 * time.Millisecond})
	rec := &recorder{}
	if err := o.Start(context.Background(), writeSilence(t, 1), "en", rec.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.wait(t)
	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", rec.errs)
	}
}

func TestOrchestratorShortFile(t *testing.T) {
	o := newReadyOrchestrator(t, &fakeModel{}, Options{})
	path := filepath.Join(t.TempDir(), "short.wav")
	if err := os.WriteFile(path, make([]byte, 20), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := o.Start(context.Background(), path, "en", Callbacks{})
	if !errors.Is(err, wave.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if o.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", o.Status())
	}
}

func TestOrchestratorResetAndFinish(t *testing.T) {
	model := &fakeModel{}
	o := newReadyOrchestrator(t, model, Options{})
	path := writeSilence(t, 1)

	if err := o.Start(context.Background(), path, "en", Callbacks{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Wait()
	o.Reset()
	if o.Status() != StatusReady {
		t.Fatalf("expected ready after reset, got %s", o.Status())
	}
	if err := o.Start(context.Background(), path, "en", Callbacks{}); err != nil {
		t.Fatalf("second start: %v", err)
	}
	o.Wait()

	if err := o.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := o.Finish(); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if o.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", o.Status())
	}
	if model.released.Load() != 1 {
		t.Fatalf("expected model released once, got %d", model.released.Load())
	}
	o.Reset()
	if o.Status() != StatusIdle {
		t.Fatalf("reset without model changed status to %s", o.Status())
	}
}

func TestOrchestratorFinishFromTerminalCallback(t *testing.T) {
	cases := []struct {
		name   string
		model  *fakeModel
		status Status
	}{
		{name: "error", model: &fakeModel{failAt: 1}, status: StatusFailed},
		{name: "complete", model: &fakeModel{}, status: StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newReadyOrchestrator(t, tc.model, Options{})
			finished := make(chan error, 1)
			var seen Status
			teardown := func() {
				seen = o.Status()
				finished <- o.Finish()
			}
			cb := Callbacks{
				OnComplete: teardown,
				OnError:    func(error) { teardown() },
			}
			if err := o.Start(context.Background(), writeSilence(t, 2), "en", cb); err != nil {
				t.Fatalf("start: %v", err)
			}
			select {
			case err := <-finished:
				if err != nil {
					t.Fatalf("finish: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("Finish inside the terminal callback did not return")
			}
			if seen != tc.status {
				t.Fatalf("callback saw status %s, want %s", seen, tc.status)
			}
			if o.Status() != StatusIdle {
				t.Fatalf("expected idle after finish, got %s", o.Status())
			}
			if tc.model.released.Load() != 1 {
				t.Fatalf("expected model released once, got %d", tc.model.released.Load())
			}
		})
	}
}

func TestOrchestratorStartRefusedWhileFinishing(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	model := &fakeModel{}
	model.hook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	o := newReadyOrchestrator(t, model, Options{})
	path := writeSilence(t, 2)
	if err := o.Start(context.Background(), path, "en", Callbacks{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered

	finished := make(chan error, 1)
	go func() { finished <- o.Finish() }()

	deadline := time.Now().Add(2 * time.Second)
	for !o.cancel.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("Finish never requested cancellation")
		}
		time.Sleep(time.Millisecond)
	}

	// Leave the status a concurrent Reset would produce once the run settles.
	o.mu.Lock()
	o.status = StatusReady
	o.mu.Unlock()
	if err := o.Start(context.Background(), path, "en", Callbacks{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("start during finish returned %v, want ErrNotReady", err)
	}

	close(release)
	if err := <-finished; err != nil {
		t.Fatalf("finish: %v", err)
	}
	if o.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", o.Status())
	}
	if model.calls.Load() != 1 {
		t.Fatalf("a second run reached the engine: %d calls", model.calls.Load())
	}
	if model.released.Load() != 1 {
		t.Fatalf("expected model released once, got %d", model.released.Load())
	}
}
