package stt

import (
	"context"
	"fmt"
	"os"
	"sync"
)

type mockEngine struct{}

// NewMockEngine returns an engine that emits one placeholder segment per
// submitted chunk.
func NewMockEngine() Engine {
	return mockEngine{}
}

func (mockEngine) Load(_ context.Context, modelPath string) (Model, error) {
	if modelPath != "" {
		if _, err := os.Stat(modelPath); err != nil {
			return nil, err
		}
	}
	return &mockModel{}, nil
}

type mockModel struct {
	mu     sync.Mutex
	chunks int
}

func (m *mockModel) Transcribe(ctx context.Context, samples []float32, language string, h Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	n := m.chunks
	m.chunks++
	m.mu.Unlock()

	h.OnProgress(0)
	if len(samples) > 0 {
		h.OnSegment(Segment{
			StartMs: 0,
			EndMs:   int64(len(samples)) * 1000 / 16000,
			Text:    fmt.Sprintf("[%s chunk %d: %d samples]", language, n, len(samples)),
		})
	}
	h.OnProgress(100)
	h.OnComplete()
	return nil
}

func (m *mockModel) StopTranscription() {}

func (m *mockModel) Release() error { return nil }
