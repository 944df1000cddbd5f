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

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type EngineConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, wyoming
	Command    string `yaml:"command"`
	Endpoint   string `yaml:"endpoint"`
	ModelPath  string `yaml:"model_path"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Workers    int    `yaml:"workers"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type EmotionsConfig struct {
	Path string `yaml:"path"`
}

type OutputConfig struct {
	Format     string  `yaml:"format"` // mp3, wav, ogg
	Normalize  bool    `yaml:"normalize"`
	TargetLUFS float64 `yaml:"target_lufs"`
	TruePeak   float64 `yaml:"true_peak"`
	LRA        float64 `yaml:"lra"`
	FFmpegPath string  `yaml:"ffmpeg_path"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	History     HistoryConfig   `yaml:"history"`
	Engine      EngineConfig    `yaml:"engine"`
	Emotions    EmotionsConfig  `yaml:"emotions"`
	Output      OutputConfig    `yaml:"output"`
}

func Default() Config {
	return Config{
		RuntimeName: "intone",
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
		History: HistoryConfig{
			Path:          "./data/intone-runs.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Engine: EngineConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
			Workers:    1,
			TimeoutMS:  120000,
		},
		Emotions: EmotionsConfig{
			Path: "",
		},
		Output: OutputConfig{
			Format:     "mp3",
			Normalize:  true,
			TargetLUFS: -16.0,
			TruePeak:   -1.5,
			LRA:        11.0,
			FFmpegPath: "ffmpeg",
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
	overrideString(&cfg.RuntimeName, "INTONE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "INTONE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "INTONE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "INTONE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "INTONE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "INTONE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "INTONE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "INTONE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "INTONE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "INTONE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "INTONE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "INTONE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "INTONE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "INTONE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "INTONE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "INTONE_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "INTONE_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "INTONE_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRuns, "INTONE_HISTORY_MAX_RUNS")
	overrideBool(&cfg.History.VacuumOnStart, "INTONE_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Engine.Mode, "INTONE_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "INTONE_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Endpoint, "INTONE_ENGINE_ENDPOINT")
	overrideString(&cfg.Engine.ModelPath, "INTONE_ENGINE_MODEL_PATH")
	overrideInt(&cfg.Engine.SampleRate, "INTONE_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.Channels, "INTONE_ENGINE_CHANNELS")
	overrideInt(&cfg.Engine.Workers, "INTONE_ENGINE_WORKERS")
	overrideInt(&cfg.Engine.TimeoutMS, "INTONE_ENGINE_TIMEOUT_MS")
	overrideString(&cfg.Emotions.Path, "INTONE_EMOTIONS_PATH")
	overrideString(&cfg.Output.Format, "INTONE_OUTPUT_FORMAT")
	overrideBool(&cfg.Output.Normalize, "INTONE_OUTPUT_NORMALIZE")
	overrideFloat(&cfg.Output.TargetLUFS, "INTONE_OUTPUT_TARGET_LUFS")
	overrideFloat(&cfg.Output.TruePeak, "INTONE_OUTPUT_TRUE_PEAK")
	overrideFloat(&cfg.Output.LRA, "INTONE_OUTPUT_LRA")
	overrideString(&cfg.Output.FFmpegPath, "INTONE_OUTPUT_FFMPEG_PATH")
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
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec", "wyoming":
	default:
		return errors.New("engine.mode must be one of mock|exec|wyoming")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.Mode == "wyoming" && cfg.Engine.Endpoint == "" {
		return errors.New("engine.endpoint must be set when mode=wyoming")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.Channels <= 0 {
		return errors.New("engine.channels must be positive")
	}
	if cfg.Engine.Workers <= 0 {
		return errors.New("engine.workers must be >= 1")
	}
	switch cfg.Output.Format {
	case "mp3", "wav", "ogg":
	default:
		return errors.New("output.format must be one of mp3|wav|ogg")
	}
	if cfg.Output.TargetLUFS >= 0 {
		return errors.New("output.target_lufs must be negative")
	}
	if cfg.Output.FFmpegPath == "" {
		return errors.New("output.ffmpeg_path must not be empty")
	}
	return nil
}
