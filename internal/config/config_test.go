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
	if cfg.Retrieval.ChunkSize != 1000 || cfg.Retrieval.ChunkOverlap != 200 {
		t.Fatalf("unexpected chunking defaults: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.Threshold != 0.7 {
		t.Fatalf("unexpected ranking defaults: %+v", cfg.Retrieval)
	}
	if cfg.Dialogue.TargetDurationSeconds != 480 {
		t.Fatalf("expected 8 minute default target, got %d", cfg.Dialogue.TargetDurationSeconds)
	}
	if cfg.TTS.VoiceMale != "onyx" || cfg.TTS.VoiceFemale != "alloy" {
		t.Fatalf("unexpected default voices: %+v", cfg.TTS)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cast.yaml")
	data := []byte(`
runtime_name: cast-test
http:
  port: 9100
chat:
  mode: ollama
  endpoint: http://ollama:11434
  model: llama3.2
dialogue:
  target_duration_seconds: 120
  max_rounds: 3
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "cast-test" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.HTTP.Port != 9100 {
		t.Fatalf("expected port 9100, got %d", cfg.HTTP.Port)
	}
	if cfg.Chat.Mode != "ollama" || cfg.Chat.Model != "llama3.2" {
		t.Fatalf("unexpected chat config: %+v", cfg.Chat)
	}
	if cfg.Dialogue.TargetDurationSeconds != 120 || cfg.Dialogue.MaxRounds != 3 {
		t.Fatalf("unexpected dialogue config: %+v", cfg.Dialogue)
	}
	// Untouched sections keep defaults.
	if cfg.Retrieval.ChunkSize != 1000 {
		t.Fatalf("expected chunk size default, got %d", cfg.Retrieval.ChunkSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAST_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("CAST_BUS_USERNAME", "alice")
	t.Setenv("CAST_BUS_PASSWORD", "secret")
	t.Setenv("CAST_CHAT_MODE", "openai")
	t.Setenv("CAST_CHAT_API_KEY", "sk-test")
	t.Setenv("CAST_CHAT_TEMPERATURE", "0.2")
	t.Setenv("CAST_RETRIEVAL_TOP_K", "7")
	t.Setenv("CAST_RETRIEVAL_THRESHOLD", "0.5")
	t.Setenv("CAST_DIALOGUE_DEADLINE_SECONDS", "90")
	t.Setenv("CAST_TIMELINE_RETENTION_MODE", "persistent")
	t.Setenv("CAST_AUDIO_MAX_AGE_SECONDS", "120")

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
	if cfg.Chat.Mode != "openai" || cfg.Chat.APIKey != "sk-test" {
		t.Fatalf("expected chat override, got %+v", cfg.Chat)
	}
	if cfg.Chat.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", cfg.Chat.Temperature)
	}
	if cfg.Retrieval.TopK != 7 || cfg.Retrieval.Threshold != 0.5 {
		t.Fatalf("expected retrieval override, got %+v", cfg.Retrieval)
	}
	if cfg.Dialogue.DeadlineSeconds != 90 {
		t.Fatalf("expected deadline override, got %d", cfg.Dialogue.DeadlineSeconds)
	}
	if cfg.Timeline.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
	if cfg.Audio.MaxAgeSeconds != 120 {
		t.Fatalf("expected audio max age override, got %d", cfg.Audio.MaxAgeSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad chat mode", func(c *Config) { c.Chat.Mode = "bard" }},
		{"bad tts mode", func(c *Config) { c.TTS.Mode = "festival" }},
		{"exec without command", func(c *Config) { c.TTS.Mode = "exec"; c.TTS.Command = "" }},
		{"overlap too large", func(c *Config) { c.Retrieval.ChunkOverlap = c.Retrieval.ChunkSize }},
		{"threshold out of range", func(c *Config) { c.Retrieval.Threshold = 1.5 }},
		{"zero target duration", func(c *Config) { c.Dialogue.TargetDurationSeconds = 0 }},
		{"zero token budget", func(c *Config) { c.Dialogue.TokenBudget = 0 }},
		{"bad retention mode", func(c *Config) { c.Timeline.RetentionMode = "forever" }},
		{"relative audio prefix", func(c *Config) { c.Audio.PublicPrefix = "audio" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
