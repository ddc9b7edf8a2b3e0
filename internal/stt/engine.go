package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-notes/internal/config"
)

var (
	// ErrModelLoad reports a missing or rejected model file.
	ErrModelLoad = errors.New("stt: model load failed")
	// ErrEngine reports a failure raised by the engine during inference.
	ErrEngine = errors.New("stt: engine failure")
)

// Segment is a span of recognized text. Timestamps are milliseconds.
type Segment struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

// Handler receives engine events synchronously, on the goroutine that called
// Transcribe.
type Handler interface {
	OnSegment(Segment)
	OnProgress(percent int)
	OnComplete()
}

// Engine creates inference contexts.
type Engine interface {
	Load(ctx context.Context, modelPath string) (Model, error)
}

// Model is a loaded inference context. It keeps running state across
// Transcribe calls, so callers must submit audio in order and never
// concurrently.
type Model interface {
	// Transcribe processes 16 kHz mono samples. Segment timestamps are
	// relative to the start of samples.
	Transcribe(ctx context.Context, samples []float32, language string, h Handler) error
	// StopTranscription abandons any running decode state.
	StopTranscription()
	Release() error
}

// NewEngine builds the engine selected by cfg.Engine.
func NewEngine(cfg config.STTConfig) (Engine, error) {
	switch cfg.Engine {
	case "mock", "":
		return NewMockEngine(), nil
	case "exec":
		return NewExecEngine(cfg)
	case "openai":
		return NewOpenAIEngine(cfg), nil
	case "whisper":
		return newWhisperEngine()
	default:
		return nil, fmt.Errorf("stt: unknown engine %q", cfg.Engine)
	}
}

type handlerFuncs struct {
	segment  func(Segment)
	progress func(int)
	complete func()
}

func (h handlerFuncs) OnSegment(s Segment) {
	if h.segment != nil {
		h.segment(s)
	}
}

func (h handlerFuncs) OnProgress(p int) {
	if h.progress != nil {
		h.progress(p)
	}
}

func (h handlerFuncs) OnComplete() {
	if h.complete != nil {
		h.complete()
	}
}
