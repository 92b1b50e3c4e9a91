package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestLoad_FileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casenotes.yaml")
	content := `
server:
  addr: ":9090"
database:
  path: /var/lib/casenotes/notes.db
alerts:
  base_url: https://alerts.example.org
  timeout: 3s
events:
  sink: webhook
  webhook_url: https://hooks.example.org/casenotes
  batch_size: 25
  max_attempts: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Database.Path != "/var/lib/casenotes/notes.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Alerts.Timeout != 3*time.Second {
		t.Errorf("Alerts.Timeout = %v, want 3s", cfg.Alerts.Timeout)
	}
	if cfg.Alerts.MaxRetries != 2 {
		t.Errorf("Alerts.MaxRetries = %d, want default 2", cfg.Alerts.MaxRetries)
	}
	if cfg.Events.Sink != SinkWebhook || cfg.Events.BatchSize != 25 || cfg.Events.MaxAttempts != 5 {
		t.Errorf("Events = %+v", cfg.Events)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default json", cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CASENOTES_SERVER_ADDR":          ":7070",
		"CASENOTES_LOG_FORMAT":           "text",
		"CASENOTES_USERS_MAX_RETRIES":    "5",
		"CASENOTES_EVENTS_POLL_INTERVAL": "250ms",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv failed: %v", err)
	}

	if cfg.Server.Addr != ":7070" {
		t.Errorf("Server.Addr = %q, want :7070", cfg.Server.Addr)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
	if cfg.Users.MaxRetries != 5 {
		t.Errorf("Users.MaxRetries = %d, want 5", cfg.Users.MaxRetries)
	}
	if cfg.Events.PollInterval != 250*time.Millisecond {
		t.Errorf("Events.PollInterval = %v, want 250ms", cfg.Events.PollInterval)
	}
}

func TestApplyEnv_RejectsBadValues(t *testing.T) {
	lookup := func(key string) (string, bool) {
		switch key {
		case "CASENOTES_ALERTS_TIMEOUT":
			return "soon", true
		case "CASENOTES_EVENTS_BATCH_SIZE":
			return "many", true
		}
		return "", false
	}

	err := Default().applyEnv(lookup)
	if err == nil {
		t.Fatal("expected error for malformed variables")
	}
	for _, key := range []string{"CASENOTES_ALERTS_TIMEOUT", "CASENOTES_EVENTS_BATCH_SIZE"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "webhook sink without url",
			mutate: func(c *Config) { c.Events.Sink = SinkWebhook },
			want:   "events.webhook_url",
		},
		{
			name:   "unknown sink",
			mutate: func(c *Config) { c.Events.Sink = "kafka" },
			want:   "events.sink",
		},
		{
			name:   "zero alerts timeout",
			mutate: func(c *Config) { c.Alerts.Timeout = 0 },
			want:   "alerts.timeout",
		},
		{
			name:   "negative user retries",
			mutate: func(c *Config) { c.Users.MaxRetries = -1 },
			want:   "users.max_retries",
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			want:   "log.format",
		},
		{
			name:   "negative event attempts",
			mutate: func(c *Config) { c.Events.MaxAttempts = -1 },
			want:   "events.max_attempts",
		},
		{
			name:   "empty database path",
			mutate: func(c *Config) { c.Database.Path = "" },
			want:   "database.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}
