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

type TimelineConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type ChatConfig struct {
	Mode        string  `yaml:"mode"`
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type EmbeddingConfig struct {
	Mode      string `yaml:"mode"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	CachePath string `yaml:"cache_path"`
}

type TTSConfig struct {
	Mode        string `yaml:"mode"`
	Command     string `yaml:"command"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	VoiceMale   string `yaml:"voice_male"`
	VoiceFemale string `yaml:"voice_female"`
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
}

type RetrievalConfig struct {
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	TopK         int     `yaml:"top_k"`
	Threshold    float64 `yaml:"threshold"`
}

type SearchConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ResultLimit int    `yaml:"result_limit"`
	PageLimit   int    `yaml:"page_limit"`
	UserAgent   string `yaml:"user_agent"`
}

type DialogueConfig struct {
	TargetDurationSeconds int `yaml:"target_duration_seconds"`
	// AvgSecondsPerTurn feeds the duration estimate; it is a heuristic
	// constant, not measured audio length.
	AvgSecondsPerTurn int `yaml:"avg_seconds_per_turn"`
	MaxRounds         int `yaml:"max_rounds"`
	TokenBudget       int `yaml:"token_budget"`
	DeadlineSeconds   int `yaml:"deadline_seconds"`
}

type FilesConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

type AudioConfig struct {
	Dir              string `yaml:"dir"`
	PublicPrefix     string `yaml:"public_prefix"`
	PaceMS           int    `yaml:"pace_ms"`
	MaxAgeSeconds    int    `yaml:"max_age_seconds"`
	CleanupIntervalS int    `yaml:"cleanup_interval_seconds"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Timeline    TimelineConfig  `yaml:"timeline"`
	Chat        ChatConfig      `yaml:"chat"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	TTS         TTSConfig       `yaml:"tts"`
	Retrieval   RetrievalConfig `yaml:"retrieval"`
	Search      SearchConfig    `yaml:"search"`
	Dialogue    DialogueConfig  `yaml:"dialogue"`
	Files       FilesConfig     `yaml:"files"`
	Audio       AudioConfig     `yaml:"audio"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-cast",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Timeline: TimelineConfig{
			Path:          "./data/cast-timeline.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Chat: ChatConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Embedding: EmbeddingConfig{
			Mode:      "mock",
			Endpoint:  "http://localhost:11434",
			Model:     "text-embedding-ada-002",
			CachePath: "./data/embeddings.db",
		},
		TTS: TTSConfig{
			Mode:        "mock",
			Model:       "tts-1",
			VoiceMale:   "onyx",
			VoiceFemale: "alloy",
			SampleRate:  22050,
			Channels:    1,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         5,
			Threshold:    0.7,
		},
		Search: SearchConfig{
			Enabled:     true,
			Endpoint:    "https://www.google.com/search",
			ResultLimit: 5,
			PageLimit:   3,
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Dialogue: DialogueConfig{
			TargetDurationSeconds: 480,
			AvgSecondsPerTurn:     45,
			MaxRounds:             8,
			TokenBudget:           4096,
		},
		Files: FilesConfig{
			UploadDir: "./data/uploads",
		},
		Audio: AudioConfig{
			Dir:              "./data/audio",
			PublicPrefix:     "/audio",
			PaceMS:           100,
			MaxAgeSeconds:    86400,
			CleanupIntervalS: 3600,
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
	overrideString(&cfg.RuntimeName, "CAST_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CAST_RUNTIME_ENVIRONMENT")

	overrideString(&cfg.HTTP.Bind, "CAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CAST_HTTP_PORT")

	overrideString(&cfg.Telemetry.LogLevel, "CAST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CAST_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CAST_TELEMETRY_OTLP_INSECURE")

	overrideBool(&cfg.Bus.Embedded, "CAST_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CAST_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CAST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CAST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CAST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CAST_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CAST_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CAST_BUS_CONNECT_TIMEOUT_MS")

	overrideString(&cfg.Timeline.Path, "CAST_TIMELINE_PATH")
	overrideString(&cfg.Timeline.RetentionMode, "CAST_TIMELINE_RETENTION_MODE")
	overrideInt(&cfg.Timeline.RetentionDays, "CAST_TIMELINE_RETENTION_DAYS")
	overrideInt(&cfg.Timeline.MaxSessions, "CAST_TIMELINE_MAX_SESSIONS")
	overrideBool(&cfg.Timeline.VacuumOnStart, "CAST_TIMELINE_VACUUM_ON_START")

	overrideString(&cfg.Chat.Mode, "CAST_CHAT_MODE")
	overrideString(&cfg.Chat.Endpoint, "CAST_CHAT_ENDPOINT")
	overrideString(&cfg.Chat.Model, "CAST_CHAT_MODEL")
	overrideString(&cfg.Chat.APIKey, "CAST_CHAT_API_KEY")
	overrideInt(&cfg.Chat.MaxTokens, "CAST_CHAT_MAX_TOKENS")
	overrideFloat(&cfg.Chat.Temperature, "CAST_CHAT_TEMPERATURE")

	overrideString(&cfg.Embedding.Mode, "CAST_EMBEDDING_MODE")
	overrideString(&cfg.Embedding.Endpoint, "CAST_EMBEDDING_ENDPOINT")
	overrideString(&cfg.Embedding.Model, "CAST_EMBEDDING_MODEL")
	overrideString(&cfg.Embedding.APIKey, "CAST_EMBEDDING_API_KEY")
	overrideString(&cfg.Embedding.CachePath, "CAST_EMBEDDING_CACHE_PATH")

	overrideString(&cfg.TTS.Mode, "CAST_TTS_MODE")
	overrideString(&cfg.TTS.Command, "CAST_TTS_COMMAND")
	overrideString(&cfg.TTS.Model, "CAST_TTS_MODEL")
	overrideString(&cfg.TTS.APIKey, "CAST_TTS_API_KEY")
	overrideString(&cfg.TTS.VoiceMale, "CAST_TTS_VOICE_MALE")
	overrideString(&cfg.TTS.VoiceFemale, "CAST_TTS_VOICE_FEMALE")
	overrideInt(&cfg.TTS.SampleRate, "CAST_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "CAST_TTS_CHANNELS")

	overrideInt(&cfg.Retrieval.ChunkSize, "CAST_RETRIEVAL_CHUNK_SIZE")
	overrideInt(&cfg.Retrieval.ChunkOverlap, "CAST_RETRIEVAL_CHUNK_OVERLAP")
	overrideInt(&cfg.Retrieval.TopK, "CAST_RETRIEVAL_TOP_K")
	overrideFloat(&cfg.Retrieval.Threshold, "CAST_RETRIEVAL_THRESHOLD")

	overrideBool(&cfg.Search.Enabled, "CAST_SEARCH_ENABLED")
	overrideString(&cfg.Search.Endpoint, "CAST_SEARCH_ENDPOINT")
	overrideInt(&cfg.Search.ResultLimit, "CAST_SEARCH_RESULT_LIMIT")
	overrideInt(&cfg.Search.PageLimit, "CAST_SEARCH_PAGE_LIMIT")
	overrideString(&cfg.Search.UserAgent, "CAST_SEARCH_USER_AGENT")

	overrideInt(&cfg.Dialogue.TargetDurationSeconds, "CAST_DIALOGUE_TARGET_DURATION_SECONDS")
	overrideInt(&cfg.Dialogue.AvgSecondsPerTurn, "CAST_DIALOGUE_AVG_SECONDS_PER_TURN")
	overrideInt(&cfg.Dialogue.MaxRounds, "CAST_DIALOGUE_MAX_ROUNDS")
	overrideInt(&cfg.Dialogue.TokenBudget, "CAST_DIALOGUE_TOKEN_BUDGET")
	overrideInt(&cfg.Dialogue.DeadlineSeconds, "CAST_DIALOGUE_DEADLINE_SECONDS")

	overrideString(&cfg.Files.UploadDir, "CAST_FILES_UPLOAD_DIR")

	overrideString(&cfg.Audio.Dir, "CAST_AUDIO_DIR")
	overrideString(&cfg.Audio.PublicPrefix, "CAST_AUDIO_PUBLIC_PREFIX")
	overrideInt(&cfg.Audio.PaceMS, "CAST_AUDIO_PACE_MS")
	overrideInt(&cfg.Audio.MaxAgeSeconds, "CAST_AUDIO_MAX_AGE_SECONDS")
	overrideInt(&cfg.Audio.CleanupIntervalS, "CAST_AUDIO_CLEANUP_INTERVAL_SECONDS")
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
		trimmed := make([]string, 0, len(parts))
		for _, part := range parts {
			if s := strings.TrimSpace(part); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
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
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Timeline.Path == "" {
		return errors.New("timeline.path must not be empty")
	}
	switch cfg.Timeline.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("timeline.retention_mode must be one of ephemeral, session, persistent")
	}
	if cfg.Timeline.RetentionDays < 0 {
		return errors.New("timeline.retention_days must be >= 0")
	}
	switch cfg.Chat.Mode {
	case "mock", "ollama", "openai":
	default:
		return errors.New("chat.mode must be one of mock, ollama, openai")
	}
	if cfg.Chat.Mode == "ollama" && cfg.Chat.Endpoint == "" {
		return errors.New("chat.endpoint must be set when chat.mode is ollama")
	}
	if cfg.Chat.Model == "" {
		return errors.New("chat.model must not be empty")
	}
	if cfg.Chat.MaxTokens < 0 {
		return errors.New("chat.max_tokens must be >= 0")
	}
	switch cfg.Embedding.Mode {
	case "mock", "ollama", "openai":
	default:
		return errors.New("embedding.mode must be one of mock, ollama, openai")
	}
	if cfg.Embedding.Mode == "ollama" && cfg.Embedding.Endpoint == "" {
		return errors.New("embedding.endpoint must be set when embedding.mode is ollama")
	}
	if cfg.Embedding.CachePath == "" {
		return errors.New("embedding.cache_path must not be empty")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec", "openai":
	default:
		return errors.New("tts.mode must be one of mock, exec, openai")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when tts.mode is exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.TTS.VoiceMale == "" || cfg.TTS.VoiceFemale == "" {
		return errors.New("tts.voice_male and tts.voice_female must not be empty")
	}
	if cfg.Retrieval.ChunkSize <= 0 {
		return errors.New("retrieval.chunk_size must be positive")
	}
	if cfg.Retrieval.ChunkOverlap < 0 || cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
		return errors.New("retrieval.chunk_overlap must be >= 0 and smaller than chunk_size")
	}
	if cfg.Retrieval.TopK <= 0 {
		return errors.New("retrieval.top_k must be positive")
	}
	if cfg.Retrieval.Threshold < 0 || cfg.Retrieval.Threshold > 1 {
		return errors.New("retrieval.threshold must be within [0, 1]")
	}
	if cfg.Search.Enabled {
		if cfg.Search.Endpoint == "" {
			return errors.New("search.endpoint must not be empty when search is enabled")
		}
		if cfg.Search.ResultLimit <= 0 {
			return errors.New("search.result_limit must be positive")
		}
		if cfg.Search.PageLimit <= 0 {
			return errors.New("search.page_limit must be positive")
		}
	}
	if cfg.Dialogue.TargetDurationSeconds <= 0 {
		return errors.New("dialogue.target_duration_seconds must be positive")
	}
	if cfg.Dialogue.AvgSecondsPerTurn <= 0 {
		return errors.New("dialogue.avg_seconds_per_turn must be positive")
	}
	if cfg.Dialogue.MaxRounds <= 0 {
		return errors.New("dialogue.max_rounds must be positive")
	}
	if cfg.Dialogue.TokenBudget <= 0 {
		return errors.New("dialogue.token_budget must be positive")
	}
	if cfg.Dialogue.DeadlineSeconds < 0 {
		return errors.New("dialogue.deadline_seconds must be >= 0")
	}
	if cfg.Files.UploadDir == "" {
		return errors.New("files.upload_dir must not be empty")
	}
	if cfg.Audio.Dir == "" {
		return errors.New("audio.dir must not be empty")
	}
	if !strings.HasPrefix(cfg.Audio.PublicPrefix, "/") {
		return errors.New("audio.public_prefix must start with /")
	}
	if cfg.Audio.PaceMS < 0 {
		return errors.New("audio.pace_ms must be >= 0")
	}
	return nil
}
