package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	Recording   RecordingConfig  `yaml:"recording"`
	Playback    PlaybackConfig   `yaml:"playback"`
	Summary     SummaryConfig    `yaml:"summary"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Engine        string `yaml:"engine"` // mock, exec, openai, whisper
	Command       string `yaml:"command"`
	ModelPath     string `yaml:"model_path"`
	Language      string `yaml:"language"`
	ChunkFrames   int    `yaml:"chunk_frames"`
	ChunkTimeout  int    `yaml:"chunk_timeout_ms"`
	OpenAIKey     string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
}

type RecordingConfig struct {
	OutputDir      string `yaml:"output_dir"`
	TickIntervalMS int    `yaml:"tick_interval_ms"`
}

type PlaybackConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	EndThresholdMS int `yaml:"end_threshold_ms"`
}

type SummaryConfig struct {
	Enabled         bool    `yaml:"enabled"`
	CompressionRate float64 `yaml:"compression_rate"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-notes",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/notes-runs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		STT: STTConfig{
			Enabled:      true,
			Engine:       "mock",
			Language:     "en",
			ChunkFrames:  16000,
			ChunkTimeout: 45000,
			OpenAIModel:  "whisper-1",
		},
		Recording: RecordingConfig{
			OutputDir:      "./recordings",
			TickIntervalMS: 1000,
		},
		Playback: PlaybackConfig{
			PollIntervalMS: 100,
			EndThresholdMS: 300,
		},
		Summary: SummaryConfig{
			Enabled:         true,
			CompressionRate: 0.3,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "NOTES_RUNTIME_NAME")
	overrideString(&cfg.Environment, "NOTES_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NOTES_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NOTES_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "NOTES_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NOTES_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NOTES_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "NOTES_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NOTES_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NOTES_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NOTES_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NOTES_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NOTES_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NOTES_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NOTES_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NOTES_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "NOTES_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "NOTES_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "NOTES_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "NOTES_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "NOTES_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.STT.Enabled, "NOTES_STT_ENABLED")
	overrideString(&cfg.STT.Engine, "NOTES_STT_ENGINE")
	overrideString(&cfg.STT.Command, "NOTES_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "NOTES_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "NOTES_STT_LANGUAGE")
	overrideInt(&cfg.STT.ChunkFrames, "NOTES_STT_CHUNK_FRAMES")
	overrideInt(&cfg.STT.ChunkTimeout, "NOTES_STT_CHUNK_TIMEOUT_MS")
	overrideString(&cfg.STT.OpenAIKey, "OPENAI_API_KEY")
	overrideString(&cfg.STT.OpenAIKey, "NOTES_STT_OPENAI_API_KEY")
	overrideString(&cfg.STT.OpenAIModel, "NOTES_STT_OPENAI_MODEL")
	overrideString(&cfg.STT.OpenAIBaseURL, "NOTES_STT_OPENAI_BASE_URL")
	overrideString(&cfg.Recording.OutputDir, "NOTES_RECORDING_OUTPUT_DIR")
	overrideInt(&cfg.Recording.TickIntervalMS, "NOTES_RECORDING_TICK_INTERVAL_MS")
	overrideInt(&cfg.Playback.PollIntervalMS, "NOTES_PLAYBACK_POLL_INTERVAL_MS")
	overrideInt(&cfg.Playback.EndThresholdMS, "NOTES_PLAYBACK_END_THRESHOLD_MS")
	overrideBool(&cfg.Summary.Enabled, "NOTES_SUMMARY_ENABLED")
	overrideFloat(&cfg.Summary.CompressionRate, "NOTES_SUMMARY_COMPRESSION_RATE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Engine {
		case "mock", "exec", "openai", "whisper":
		default:
			return errors.New("stt.engine must be one of mock|exec|openai|whisper")
		}
		if cfg.STT.Engine == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when engine=exec")
		}
		if cfg.STT.Engine == "openai" && cfg.STT.OpenAIKey == "" {
			return errors.New("stt.openai_api_key must be set when engine=openai")
		}
		if cfg.STT.Engine == "whisper" && cfg.STT.ModelPath == "" {
			return errors.New("stt.model_path must be set when engine=whisper")
		}
		if cfg.STT.ChunkFrames <= 0 {
			return errors.New("stt.chunk_frames must be positive")
		}
	}
	if cfg.Recording.TickIntervalMS <= 0 {
		return errors.New("recording.tick_interval_ms must be positive")
	}
	if cfg.Playback.PollIntervalMS <= 0 {
		return errors.New("playback.poll_interval_ms must be positive")
	}
	if cfg.Playback.EndThresholdMS < 0 {
		return errors.New("playback.end_threshold_ms must be >= 0")
	}
	if cfg.Summary.CompressionRate <= 0 || cfg.Summary.CompressionRate > 1 {
		return errors.New("summary.compression_rate must be in (0, 1]")
	}
	return nil
}
