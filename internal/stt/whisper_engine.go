//go:build whisper

package stt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperEngine runs whisper.cpp in-process. Build with -tags whisper and
// the whisper.cpp static library on the linker path.
type whisperEngine struct{}

func newWhisperEngine() (Engine, error) {
	return whisperEngine{}, nil
}

func (whisperEngine) Load(_ context.Context, modelPath string) (Model, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	return &whisperModel{model: model}, nil
}

type whisperModel struct {
	mu      sync.Mutex
	model   whisper.Model
	stopped atomic.Bool
}

func (m *whisperModel) Transcribe(ctx context.Context, samples []float32, language string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return fmt.Errorf("whisper model released")
	}
	m.stopped.Store(false)

	wctx, err := m.model.NewContext()
	if err != nil {
		return fmt.Errorf("whisper context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			return fmt.Errorf("whisper language %q: %w", language, err)
		}
	}

	keepGoing := func() bool {
		return ctx.Err() == nil && !m.stopped.Load()
	}
	onSegment := func(s whisper.Segment) {
		h.OnSegment(Segment{StartMs: s.Start.Milliseconds(), EndMs: s.End.Milliseconds(), Text: s.Text})
	}
	if err := wctx.Process(samples, keepGoing, onSegment, h.OnProgress); err != nil {
		return fmt.Errorf("whisper process: %w", err)
	}
	h.OnComplete()
	return nil
}

func (m *whisperModel) StopTranscription() {
	m.stopped.Store(true)
}

func (m *whisperModel) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return nil
	}
	err := m.model.Close()
	m.model = nil
	return err
}
