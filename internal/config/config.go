// Package config loads the service configuration from a YAML file overlaid
// by CASENOTES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "casenotes.yaml"

// Event sink kinds.
const (
	SinkLog     = "log"
	SinkWebhook = "webhook"
)

// Config represents the full service configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Log            LogConfig            `yaml:"log"`
	Alerts         ClientConfig         `yaml:"alerts"`
	Users          ClientConfig         `yaml:"users"`
	Events         EventsConfig         `yaml:"events"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// ClientConfig configures an HTTP collaborator.
type ClientConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type EventsConfig struct {
	Sink              string        `yaml:"sink"` // log or webhook
	WebhookURL        string        `yaml:"webhook_url"`
	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
	WebhookMaxRetries int           `yaml:"webhook_max_retries"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	BatchSize         int           `yaml:"batch_size"`

	// MaxAttempts dead-letters an event after this many failed deliveries.
	// Zero retries forever.
	MaxAttempts int `yaml:"max_attempts"`
}

type ReconciliationConfig struct {
	// Timeout bounds the collaborator calls of one reconciliation.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file or variable overrides a field.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "data/casenotes.db"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Alerts: ClientConfig{
			BaseURL:    "http://localhost:8081",
			Timeout:    5 * time.Second,
			MaxRetries: 2,
		},
		Users: ClientConfig{
			BaseURL:    "http://localhost:8082",
			Timeout:    5 * time.Second,
			MaxRetries: 2,
		},
		Events: EventsConfig{
			Sink:              SinkLog,
			WebhookTimeout:    5 * time.Second,
			WebhookMaxRetries: 3,
			PollInterval:      2 * time.Second,
			BatchSize:         100,
			MaxAttempts:       20,
		},
		Reconciliation: ReconciliationConfig{Timeout: 30 * time.Second},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error when path is the default path.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CASENOTES_<SECTION>_<FIELD> variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("CASENOTES_" + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		if v, ok := lookup("CASENOTES_" + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid CASENOTES_%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		if v, ok := lookup("CASENOTES_" + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid CASENOTES_%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("SERVER_ADDR", &c.Server.Addr)
	str("DATABASE_PATH", &c.Database.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("ALERTS_BASE_URL", &c.Alerts.BaseURL)
	str("USERS_BASE_URL", &c.Users.BaseURL)
	str("EVENTS_SINK", &c.Events.Sink)
	str("EVENTS_WEBHOOK_URL", &c.Events.WebhookURL)

	return errors.Join(
		duration("ALERTS_TIMEOUT", &c.Alerts.Timeout),
		integer("ALERTS_MAX_RETRIES", &c.Alerts.MaxRetries),
		duration("USERS_TIMEOUT", &c.Users.Timeout),
		integer("USERS_MAX_RETRIES", &c.Users.MaxRetries),
		duration("EVENTS_WEBHOOK_TIMEOUT", &c.Events.WebhookTimeout),
		integer("EVENTS_WEBHOOK_MAX_RETRIES", &c.Events.WebhookMaxRetries),
		duration("EVENTS_POLL_INTERVAL", &c.Events.PollInterval),
		integer("EVENTS_BATCH_SIZE", &c.Events.BatchSize),
		integer("EVENTS_MAX_ATTEMPTS", &c.Events.MaxAttempts),
		duration("RECONCILIATION_TIMEOUT", &c.Reconciliation.Timeout),
	)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []error

	if c.Database.Path == "" {
		problems = append(problems, errors.New("database.path is required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	for name, client := range map[string]ClientConfig{"alerts": c.Alerts, "users": c.Users} {
		if client.BaseURL == "" {
			problems = append(problems, fmt.Errorf("%s.base_url is required", name))
		}
		if client.Timeout <= 0 {
			problems = append(problems, fmt.Errorf("%s.timeout must be positive", name))
		}
		if client.MaxRetries < 0 {
			problems = append(problems, fmt.Errorf("%s.max_retries must not be negative", name))
		}
	}
	switch c.Events.Sink {
	case SinkLog:
	case SinkWebhook:
		if c.Events.WebhookURL == "" {
			problems = append(problems, errors.New("events.webhook_url is required for the webhook sink"))
		}
		if c.Events.WebhookTimeout <= 0 {
			problems = append(problems, errors.New("events.webhook_timeout must be positive"))
		}
		if c.Events.WebhookMaxRetries < 0 {
			problems = append(problems, errors.New("events.webhook_max_retries must not be negative"))
		}
	default:
		problems = append(problems, fmt.Errorf("events.sink must be log or webhook, got %q", c.Events.Sink))
	}
	if c.Events.PollInterval <= 0 {
		problems = append(problems, errors.New("events.poll_interval must be positive"))
	}
	if c.Events.BatchSize <= 0 {
		problems = append(problems, errors.New("events.batch_size must be positive"))
	}
	if c.Events.MaxAttempts < 0 {
		problems = append(problems, errors.New("events.max_attempts must not be negative"))
	}
	if c.Reconciliation.Timeout <= 0 {
		problems = append(problems, errors.New("reconciliation.timeout must be positive"))
	}

	return errors.Join(problems...)
}
