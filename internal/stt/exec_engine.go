package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-notes/internal/config"
	"github.com/loqalabs/loqa-notes/internal/wave"
	"github.com/mattn/go-shellwords"
)

// execEngine runs an external whisper-style CLI once per chunk. The command
// receives --audio <wav> [--model path] [--language code] and must print
// {"segments":[{"start_ms":..,"end_ms":..,"text":".."}]} on stdout.
type execEngine struct {
	cmd []string
}

type execResult struct {
	Segments []Segment `json:"segments"`
	Text     string    `json:"text"`
}

func NewExecEngine(cfg config.STTConfig) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execEngine{cmd: args}, nil
}

func (e *execEngine) Load(_ context.Context, modelPath string) (Model, error) {
	if modelPath != "" {
		if _, err := os.Stat(modelPath); err != nil {
			return nil, err
		}
	}
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return nil, fmt.Errorf("stt command not found: %w", err)
	}
	return &execModel{cmd: e.cmd, modelPath: modelPath}, nil
}

type execModel struct {
	cmd       []string
	modelPath string
	mu        sync.Mutex
	cancel    context.CancelFunc
}

func (m *execModel) Transcribe(ctx context.Context, samples []float32, language string, h Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
		cancel()
	}()

	file, err := os.CreateTemp("", "notes_stt_*.wav")
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

	args := append([]string{}, m.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if m.modelPath != "" {
		args = append(args, "--model", m.modelPath)
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	command := exec.CommandContext(ctx, m.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	h.OnProgress(0)
	if err := command.Run(); err != nil {
		return fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return fmt.Errorf("decode stt response: %w", err)
	}
	if len(resp.Segments) == 0 && resp.Text != "" {
		resp.Segments = []Segment{{EndMs: int64(len(samples)) * 1000 / wave.SampleRate, Text: resp.Text}}
	}
	for _, seg := range resp.Segments {
		h.OnSegment(seg)
	}
	h.OnProgress(100)
	h.OnComplete()
	return nil
}

// StopTranscription kills a command that is still running.
func (m *execModel) StopTranscription() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *execModel) Release() error { return nil }
