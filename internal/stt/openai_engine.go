package stt

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/loqalabs/loqa-notes/internal/config"
	"github.com/loqalabs/loqa-notes/internal/wave"
	"github.com/sashabaranov/go-openai"
)

// openAIEngine uploads each chunk to an OpenAI-compatible transcription
// endpoint. The model path passed to Load is ignored; the remote model is
// taken from config.
type openAIEngine struct {
	client *openai.Client
	model  string
}

func NewOpenAIEngine(cfg config.STTConfig) Engine {
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	model := cfg.OpenAIModel
	if model == "" {
		model = openai.Whisper1
	}
	return &openAIEngine{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (e *openAIEngine) Load(context.Context, string) (Model, error) {
	return &openAIModel{client: e.client, model: e.model}, nil
}

type openAIModel struct {
	client *openai.Client
	model  string
}

func (m *openAIModel) Transcribe(ctx context.Context, samples []float32, language string, h Handler) error {
	file, err := os.CreateTemp("", "notes_openai_*.wav")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	if err := wave.Encode(file, wave.Quantize(samples)); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp wav: %w", err)
	}

	h.OnProgress(0)
	resp, err := m.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    m.model,
		FilePath: file.Name(),
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return fmt.Errorf("openai transcription: %w", err)
	}

	if len(resp.Segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		h.OnSegment(Segment{EndMs: int64(len(samples)) * 1000 / wave.SampleRate, Text: resp.Text})
	}
	for _, seg := range resp.Segments {
		h.OnSegment(Segment{
			StartMs: int64(math.Round(seg.Start * 1000)),
			EndMs:   int64(math.Round(seg.End * 1000)),
			Text:    seg.Text,
		})
	}
	h.OnProgress(100)
	h.OnComplete()
	return nil
}

func (m *openAIModel) StopTranscription() {}

func (m *openAIModel) Release() error { return nil }
