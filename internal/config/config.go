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
	Transcript  TranscriptConfig `yaml:"transcript"`
	Speech      SpeechConfig     `yaml:"speech"`
	Detector    DetectorConfig   `yaml:"detector"`
	Generator   GeneratorConfig  `yaml:"generator"`
	Visual      VisualConfig     `yaml:"visual"`
	Deck        DeckConfig       `yaml:"deck"`
	Insert      InsertConfig     `yaml:"insert"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
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
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type TranscriptConfig struct {
	Mode             string  `yaml:"mode"` // mock, exec
	Command          string  `yaml:"command"`
	Language         string  `yaml:"language"`
	MinConfidence    float64 `yaml:"min_confidence"`
	RespawnBackoffMS int     `yaml:"respawn_backoff_ms"`
	RespawnMaxMS     int     `yaml:"respawn_max_ms"`
}

type SpeechConfig struct {
	WindowSegments  int `yaml:"window_segments"`
	WindowSeconds   int `yaml:"window_seconds"`
	MinTokenLength  int `yaml:"min_token_length"`
	SummaryBudgetMS int `yaml:"summary_budget_ms"`
}

type DetectorConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	SustainSegments     int     `yaml:"sustain_segments"`
	SustainWindowMS     int     `yaml:"sustain_window_ms"`
	CooldownMS          int     `yaml:"cooldown_ms"`
	MinSpeechSegments   int     `yaml:"min_speech_segments"`
}

type GeneratorConfig struct {
	Mode        string  `yaml:"mode"` // mock, gemini, ollama
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Endpoint    string  `yaml:"endpoint"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	MaxRetries  int     `yaml:"max_retries"`
}

type VisualConfig struct {
	Enabled           bool   `yaml:"enabled"`
	PexelsKey         string `yaml:"pexels_key"`
	NounProjectKey    string `yaml:"noun_project_key"`
	NounProjectSecret string `yaml:"noun_project_secret"`
	AssetDir          string `yaml:"asset_dir"`
	TimeoutMS         int    `yaml:"timeout_ms"`
}

type DeckConfig struct {
	Mode           string `yaml:"mode"` // mock, ws
	Endpoint       string `yaml:"endpoint"`
	RequestTimeout int    `yaml:"request_timeout_ms"`
}

type InsertConfig struct {
	MaxRetries     int  `yaml:"max_retries"`
	RetryBackoffMS int  `yaml:"retry_backoff_ms"`
	UpdateInPlace  bool `yaml:"update_in_place"`
}

func Default() Config {
	return Config{
		RuntimeName: "savi-runtime",
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
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/savi-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Transcript: TranscriptConfig{
			Mode:             "mock",
			Language:         "en",
			RespawnBackoffMS: 500,
			RespawnMaxMS:     10000,
		},
		Speech: SpeechConfig{
			WindowSegments:  10,
			WindowSeconds:   45,
			MinTokenLength:  3,
			SummaryBudgetMS: 100,
		},
		Detector: DetectorConfig{
			SimilarityThreshold: 0.4,
			SustainSegments:     2,
			SustainWindowMS:     20000,
			CooldownMS:          30000,
			MinSpeechSegments:   3,
		},
		Generator: GeneratorConfig{
			Mode:        "mock",
			Model:       "gemini-1.5-flash-latest",
			Endpoint:    "http://localhost:11434",
			MaxTokens:   512,
			Temperature: 0.7,
			TimeoutMS:   20000,
			MaxRetries:  2,
		},
		Visual: VisualConfig{
			Enabled:   true,
			AssetDir:  "./data/assets",
			TimeoutMS: 8000,
		},
		Deck: DeckConfig{
			Mode:           "mock",
			RequestTimeout: 5000,
		},
		Insert: InsertConfig{
			MaxRetries:     3,
			RetryBackoffMS: 500,
			UpdateInPlace:  true,
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
	overrideString(&cfg.RuntimeName, "SAVI_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SAVI_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SAVI_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SAVI_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SAVI_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SAVI_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SAVI_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "SAVI_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SAVI_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SAVI_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SAVI_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SAVI_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SAVI_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SAVI_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SAVI_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "SAVI_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SAVI_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SAVI_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "SAVI_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SAVI_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Transcript.Mode, "SAVI_TRANSCRIPT_MODE")
	overrideString(&cfg.Transcript.Command, "SAVI_TRANSCRIPT_COMMAND")
	overrideString(&cfg.Transcript.Language, "SAVI_TRANSCRIPT_LANGUAGE")
	overrideFloat(&cfg.Transcript.MinConfidence, "SAVI_TRANSCRIPT_MIN_CONFIDENCE")
	overrideInt(&cfg.Transcript.RespawnBackoffMS, "SAVI_TRANSCRIPT_RESPAWN_BACKOFF_MS")
	overrideInt(&cfg.Transcript.RespawnMaxMS, "SAVI_TRANSCRIPT_RESPAWN_MAX_MS")
	overrideInt(&cfg.Speech.WindowSegments, "SAVI_SPEECH_WINDOW_SEGMENTS")
	overrideInt(&cfg.Speech.WindowSeconds, "SAVI_SPEECH_WINDOW_SECONDS")
	overrideInt(&cfg.Speech.MinTokenLength, "SAVI_SPEECH_MIN_TOKEN_LENGTH")
	overrideFloat(&cfg.Detector.SimilarityThreshold, "SAVI_DETECTOR_SIMILARITY_THRESHOLD")
	overrideInt(&cfg.Detector.SustainSegments, "SAVI_DETECTOR_SUSTAIN_SEGMENTS")
	overrideInt(&cfg.Detector.SustainWindowMS, "SAVI_DETECTOR_SUSTAIN_WINDOW_MS")
	overrideInt(&cfg.Detector.CooldownMS, "SAVI_DETECTOR_COOLDOWN_MS")
	overrideInt(&cfg.Detector.MinSpeechSegments, "SAVI_DETECTOR_MIN_SPEECH_SEGMENTS")
	overrideString(&cfg.Generator.Mode, "SAVI_GENERATOR_MODE")
	overrideString(&cfg.Generator.APIKey, "SAVI_GENERATOR_API_KEY")
	overrideString(&cfg.Generator.Model, "SAVI_GENERATOR_MODEL")
	overrideString(&cfg.Generator.Endpoint, "SAVI_GENERATOR_ENDPOINT")
	overrideInt(&cfg.Generator.MaxTokens, "SAVI_GENERATOR_MAX_TOKENS")
	overrideFloat(&cfg.Generator.Temperature, "SAVI_GENERATOR_TEMPERATURE")
	overrideInt(&cfg.Generator.TimeoutMS, "SAVI_GENERATOR_TIMEOUT_MS")
	overrideInt(&cfg.Generator.MaxRetries, "SAVI_GENERATOR_MAX_RETRIES")
	overrideBool(&cfg.Visual.Enabled, "SAVI_VISUAL_ENABLED")
	overrideString(&cfg.Visual.PexelsKey, "SAVI_VISUAL_PEXELS_KEY")
	overrideString(&cfg.Visual.NounProjectKey, "SAVI_VISUAL_NOUN_PROJECT_KEY")
	overrideString(&cfg.Visual.NounProjectSecret, "SAVI_VISUAL_NOUN_PROJECT_SECRET")
	overrideString(&cfg.Visual.AssetDir, "SAVI_VISUAL_ASSET_DIR")
	overrideInt(&cfg.Visual.TimeoutMS, "SAVI_VISUAL_TIMEOUT_MS")
	overrideString(&cfg.Deck.Mode, "SAVI_DECK_MODE")
	overrideString(&cfg.Deck.Endpoint, "SAVI_DECK_ENDPOINT")
	overrideInt(&cfg.Deck.RequestTimeout, "SAVI_DECK_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Insert.MaxRetries, "SAVI_INSERT_MAX_RETRIES")
	overrideInt(&cfg.Insert.RetryBackoffMS, "SAVI_INSERT_RETRY_BACKOFF_MS")
	overrideBool(&cfg.Insert.UpdateInPlace, "SAVI_INSERT_UPDATE_IN_PLACE")
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
	switch cfg.Transcript.Mode {
	case "mock", "exec":
	default:
		return errors.New("transcript.mode must be one of mock|exec")
	}
	if cfg.Transcript.Mode == "exec" && cfg.Transcript.Command == "" {
		return errors.New("transcript.command must be set when mode=exec")
	}
	if cfg.Speech.WindowSegments <= 0 {
		return errors.New("speech.window_segments must be >= 1")
	}
	if cfg.Speech.WindowSeconds <= 0 {
		return errors.New("speech.window_seconds must be >= 1")
	}
	if cfg.Detector.SimilarityThreshold <= 0 || cfg.Detector.SimilarityThreshold >= 1 {
		return errors.New("detector.similarity_threshold must be between 0 and 1 exclusive")
	}
	if cfg.Detector.SustainSegments < 1 {
		return errors.New("detector.sustain_segments must be >= 1")
	}
	if cfg.Detector.CooldownMS <= 0 {
		return errors.New("detector.cooldown_ms must be positive")
	}
	switch cfg.Generator.Mode {
	case "mock", "gemini", "ollama":
	default:
		return errors.New("generator.mode must be one of mock|gemini|ollama")
	}
	if cfg.Generator.Mode == "gemini" && cfg.Generator.APIKey == "" {
		return errors.New("generator.api_key must be set when mode=gemini")
	}
	if cfg.Generator.Mode == "ollama" && cfg.Generator.Endpoint == "" {
		return errors.New("generator.endpoint must be set when mode=ollama")
	}
	if cfg.Generator.TimeoutMS <= 0 {
		return errors.New("generator.timeout_ms must be positive")
	}
	if cfg.Generator.MaxRetries < 0 {
		return errors.New("generator.max_retries must be >= 0")
	}
	if cfg.Visual.Enabled {
		if cfg.Visual.AssetDir == "" {
			return errors.New("visual.asset_dir must not be empty when visuals are enabled")
		}
		if cfg.Visual.TimeoutMS <= 0 {
			return errors.New("visual.timeout_ms must be positive when visuals are enabled")
		}
	}
	switch cfg.Deck.Mode {
	case "mock", "ws":
	default:
		return errors.New("deck.mode must be one of mock|ws")
	}
	if cfg.Deck.Mode == "ws" && cfg.Deck.Endpoint == "" {
		return errors.New("deck.endpoint must be set when mode=ws")
	}
	if cfg.Deck.RequestTimeout <= 0 {
		return errors.New("deck.request_timeout_ms must be positive")
	}
	if cfg.Insert.MaxRetries < 0 {
		return errors.New("insert.max_retries must be >= 0")
	}
	return nil
}
