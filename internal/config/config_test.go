package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.STT.ChunkFrames != 16000 {
		t.Fatalf("expected one second chunks, got %d", cfg.STT.ChunkFrames)
	}
	if cfg.Playback.PollIntervalMS != 100 || cfg.Playback.EndThresholdMS != 300 {
		t.Fatalf("unexpected playback defaults %+v", cfg.Playback)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.yaml")
	data := []byte(`stt:
  engine: exec
  command: "whisper-cli --json"
  language: de
summary:
  compression_rate: 0.5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.STT.Engine != "exec" || cfg.STT.Command != "whisper-cli --json" || cfg.STT.Language != "de" {
		t.Fatalf("unexpected stt config %+v", cfg.STT)
	}
	if cfg.Summary.CompressionRate != 0.5 {
		t.Fatalf("expected compression rate 0.5, got %v", cfg.Summary.CompressionRate)
	}
	if cfg.Recording.TickIntervalMS != 1000 {
		t.Fatalf("expected untouched default tick interval")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NOTES_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("NOTES_BUS_USERNAME", "alice")
	t.Setenv("NOTES_BUS_PASSWORD", "secret")
	t.Setenv("NOTES_BUS_TLS_INSECURE", "true")
	t.Setenv("NOTES_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("NOTES_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("NOTES_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("NOTES_EVENT_STORE_MAX_RUNS", "123")
	t.Setenv("NOTES_STT_ENGINE", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("NOTES_STT_LANGUAGE", "fr")
	t.Setenv("NOTES_RECORDING_TICK_INTERVAL_MS", "250")
	t.Setenv("NOTES_SUMMARY_COMPRESSION_RATE", "0.25")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.MaxRuns != 123 {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.STT.Engine != "openai" || cfg.STT.OpenAIKey != "sk-test" || cfg.STT.Language != "fr" {
		t.Fatalf("expected stt overrides, got %+v", cfg.STT)
	}
	if cfg.Recording.TickIntervalMS != 250 {
		t.Fatalf("expected tick interval override")
	}
	if cfg.Summary.CompressionRate != 0.25 {
		t.Fatalf("expected compression rate override")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"exec without command", map[string]string{"NOTES_STT_ENGINE": "exec"}},
		{"unknown engine", map[string]string{"NOTES_STT_ENGINE": "vosk"}},
		{"openai without key", map[string]string{"NOTES_STT_ENGINE": "openai"}},
		{"rate above one", map[string]string{"NOTES_SUMMARY_COMPRESSION_RATE": "1.5"}},
		{"zero tick", map[string]string{"NOTES_RECORDING_TICK_INTERVAL_MS": "0"}},
		{"bad retention", map[string]string{"NOTES_EVENT_STORE_RETENTION_MODE": "forever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
