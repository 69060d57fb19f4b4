package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StorageConfig struct {
	DataDir         string `yaml:"data_dir"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
	MusicAssetPath  string `yaml:"music_asset_path"`
	RetainArtifacts bool   `yaml:"retain_artifacts"`
}

type ExtractorConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type ScriptGenConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type SynthConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	VoiceIDs   Voices `yaml:"voices"`
}

type Voices struct {
	MaleA   string `yaml:"male_a"`
	MaleB   string `yaml:"male_b"`
	FemaleA string `yaml:"female_a"`
	FemaleB string `yaml:"female_b"`
}

// ForPair resolves a voice pair into (host A, host B) voice ids.
func (v Voices) ForPair(pair string) (string, string) {
	switch pair {
	case "MM":
		return v.MaleA, v.MaleB
	case "FF":
		return v.FemaleA, v.FemaleB
	default: // FM
		return v.FemaleA, v.MaleB
	}
}

type MixerConfig struct {
	GapMS        int     `yaml:"gap_ms"`
	IntroMusicMS int     `yaml:"intro_music_ms"`
	MusicGainDB  float64 `yaml:"music_gain_db"`
	MusicDuckDB  float64 `yaml:"music_duck_db"`
}

type QuizConfig struct {
	PointsPerCorrect int `yaml:"points_per_correct"`
}

type LeaderboardConfig struct {
	Path string `yaml:"path"`
}

type ChatConfig struct {
	ContextBudget   int    `yaml:"context_budget_bytes"`
	MaxHistoryTurns int    `yaml:"max_history_turns"`
	FallbackReply   string `yaml:"fallback_reply"`
	TimeoutMS       int    `yaml:"timeout_ms"`
}

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Storage     StorageConfig     `yaml:"storage"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	ScriptGen   ScriptGenConfig   `yaml:"scriptgen"`
	Synth       SynthConfig       `yaml:"synth"`
	Mixer       MixerConfig       `yaml:"mixer"`
	Quiz        QuizConfig        `yaml:"quiz"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Chat        ChatConfig        `yaml:"chat"`
}

func Default() Config {
	return Config{
		ServiceName: "papercastd",
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
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Storage: StorageConfig{
			DataDir:         "./data",
			MaxUploadMB:     50,
			RetainArtifacts: true,
		},
		Extractor: ExtractorConfig{
			Mode:      "mock",
			TimeoutMS: 60000,
		},
		ScriptGen: ScriptGenConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   4096,
			Temperature: 0.7,
			TimeoutMS:   120000,
		},
		Synth: SynthConfig{
			Mode:       "mock",
			SampleRate: 22050,
			TimeoutMS:  45000,
			VoiceIDs: Voices{
				MaleA:   "voice-male-a",
				MaleB:   "voice-male-b",
				FemaleA: "voice-female-a",
				FemaleB: "voice-female-b",
			},
		},
		Mixer: MixerConfig{
			GapMS:        600,
			IntroMusicMS: 4000,
			MusicGainDB:  -24,
			MusicDuckDB:  -32,
		},
		Quiz: QuizConfig{
			PointsPerCorrect: 10,
		},
		Leaderboard: LeaderboardConfig{
			Path: "./data/leaderboard.db",
		},
		Chat: ChatConfig{
			ContextBudget:   3000,
			MaxHistoryTurns: 8,
			FallbackReply:   "Sorry, I could not reach the study assistant. Please try again.",
			TimeoutMS:       30000,
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
	overrideString(&cfg.ServiceName, "PAPERCAST_SERVICE_NAME")
	overrideString(&cfg.Environment, "PAPERCAST_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PAPERCAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PAPERCAST_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PAPERCAST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PAPERCAST_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PAPERCAST_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "PAPERCAST_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "PAPERCAST_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PAPERCAST_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PAPERCAST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PAPERCAST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PAPERCAST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PAPERCAST_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "PAPERCAST_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Storage.DataDir, "PAPERCAST_STORAGE_DATA_DIR")
	overrideInt(&cfg.Storage.MaxUploadMB, "PAPERCAST_STORAGE_MAX_UPLOAD_MB")
	overrideString(&cfg.Storage.MusicAssetPath, "PAPERCAST_STORAGE_MUSIC_ASSET_PATH")
	overrideBool(&cfg.Storage.RetainArtifacts, "PAPERCAST_STORAGE_RETAIN_ARTIFACTS")
	overrideString(&cfg.Extractor.Mode, "PAPERCAST_EXTRACTOR_MODE")
	overrideString(&cfg.Extractor.Command, "PAPERCAST_EXTRACTOR_COMMAND")
	overrideInt(&cfg.Extractor.TimeoutMS, "PAPERCAST_EXTRACTOR_TIMEOUT_MS")
	overrideString(&cfg.ScriptGen.Mode, "PAPERCAST_SCRIPTGEN_MODE")
	overrideString(&cfg.ScriptGen.Endpoint, "PAPERCAST_SCRIPTGEN_ENDPOINT")
	overrideString(&cfg.ScriptGen.Model, "PAPERCAST_SCRIPTGEN_MODEL")
	overrideInt(&cfg.ScriptGen.MaxTokens, "PAPERCAST_SCRIPTGEN_MAX_TOKENS")
	overrideFloat(&cfg.ScriptGen.Temperature, "PAPERCAST_SCRIPTGEN_TEMPERATURE")
	overrideInt(&cfg.ScriptGen.TimeoutMS, "PAPERCAST_SCRIPTGEN_TIMEOUT_MS")
	overrideString(&cfg.Synth.Mode, "PAPERCAST_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "PAPERCAST_SYNTH_COMMAND")
	overrideInt(&cfg.Synth.SampleRate, "PAPERCAST_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.TimeoutMS, "PAPERCAST_SYNTH_TIMEOUT_MS")
	overrideString(&cfg.Synth.VoiceIDs.MaleA, "PAPERCAST_SYNTH_VOICE_MALE_A")
	overrideString(&cfg.Synth.VoiceIDs.MaleB, "PAPERCAST_SYNTH_VOICE_MALE_B")
	overrideString(&cfg.Synth.VoiceIDs.FemaleA, "PAPERCAST_SYNTH_VOICE_FEMALE_A")
	overrideString(&cfg.Synth.VoiceIDs.FemaleB, "PAPERCAST_SYNTH_VOICE_FEMALE_B")
	overrideInt(&cfg.Mixer.GapMS, "PAPERCAST_MIXER_GAP_MS")
	overrideInt(&cfg.Mixer.IntroMusicMS, "PAPERCAST_MIXER_INTRO_MUSIC_MS")
	overrideFloat(&cfg.Mixer.MusicGainDB, "PAPERCAST_MIXER_MUSIC_GAIN_DB")
	overrideFloat(&cfg.Mixer.MusicDuckDB, "PAPERCAST_MIXER_MUSIC_DUCK_DB")
	overrideInt(&cfg.Quiz.PointsPerCorrect, "PAPERCAST_QUIZ_POINTS_PER_CORRECT")
	overrideString(&cfg.Leaderboard.Path, "PAPERCAST_LEADERBOARD_PATH")
	overrideInt(&cfg.Chat.ContextBudget, "PAPERCAST_CHAT_CONTEXT_BUDGET_BYTES")
	overrideInt(&cfg.Chat.MaxHistoryTurns, "PAPERCAST_CHAT_MAX_HISTORY_TURNS")
	overrideString(&cfg.Chat.FallbackReply, "PAPERCAST_CHAT_FALLBACK_REPLY")
	overrideInt(&cfg.Chat.TimeoutMS, "PAPERCAST_CHAT_TIMEOUT_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Storage.DataDir == "" {
		return errors.New("storage.data_dir must not be empty")
	}
	if cfg.Storage.MaxUploadMB <= 0 {
		return errors.New("storage.max_upload_mb must be positive")
	}
	switch cfg.Extractor.Mode {
	case "mock", "exec":
	default:
		return errors.New("extractor.mode must be one of mock|exec")
	}
	if cfg.Extractor.Mode == "exec" && cfg.Extractor.Command == "" {
		return errors.New("extractor.command must be set when mode=exec")
	}
	switch cfg.ScriptGen.Mode {
	case "mock", "ollama":
	default:
		return errors.New("scriptgen.mode must be one of mock|ollama")
	}
	if cfg.ScriptGen.Mode == "ollama" && cfg.ScriptGen.Endpoint == "" {
		return errors.New("scriptgen.endpoint must be set when mode=ollama")
	}
	if cfg.ScriptGen.MaxTokens < 0 {
		return errors.New("scriptgen.max_tokens must be >= 0")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Mixer.GapMS < 0 {
		return errors.New("mixer.gap_ms must be >= 0")
	}
	if cfg.Mixer.IntroMusicMS < 0 {
		return errors.New("mixer.intro_music_ms must be >= 0")
	}
	if cfg.Quiz.PointsPerCorrect <= 0 {
		return errors.New("quiz.points_per_correct must be positive")
	}
	if cfg.Leaderboard.Path == "" {
		return errors.New("leaderboard.path must not be empty")
	}
	if cfg.Chat.ContextBudget <= 0 {
		return errors.New("chat.context_budget_bytes must be positive")
	}
	if cfg.Chat.MaxHistoryTurns < 0 {
		return errors.New("chat.max_history_turns must be >= 0")
	}
	return nil
}
