package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Insight     InsightConfig   `toml:"insight"`
	Webhook     WebhookConfig   `toml:"webhook"`
	Poller      PollerConfig    `toml:"poller"`
	Reconcile   ReconcileConfig `toml:"reconcile"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// InsightConfig configures the external analysis service client
type InsightConfig struct {
	BaseURL          string        `toml:"base_url"`          // Insight engine API base URL
	APIKey           string        `toml:"api_key"`           // Bearer token for outbound calls
	RequestTimeout   time.Duration `toml:"request_timeout"`   // Per-call timeout (default: 30s)
	RateLimit        int           `toml:"rate_limit"`        // Requests per second (default: 10)
	BreakerThreshold int           `toml:"breaker_threshold"` // Consecutive failures before the breaker opens (default: 5)
	BreakerCooldown  time.Duration `toml:"breaker_cooldown"`  // Open-state cool-down before a probe is allowed (default: 60s)
}

// WebhookConfig configures inbound webhook verification
type WebhookConfig struct {
	SharedSecret string        `toml:"shared_secret"` // HMAC signing secret shared with the insight engine
	MaxAge       time.Duration `toml:"max_age"`       // Replay window for the timestamp header (default: 300s)
}

// PollerConfig configures the status poller and retry behavior
type PollerConfig struct {
	PollInterval  time.Duration `toml:"poll_interval"`  // Dispatcher scan interval (default: 1s)
	Concurrency   int           `toml:"concurrency"`    // Number of concurrent poll workers
	MaxRetries    int           `toml:"max_retries"`    // Retryable-failure budget before FAILED is terminal
	MaxJobAge     time.Duration `toml:"max_job_age"`    // Absolute age ceiling before TIMEOUT (default: 24h)
	SweepSchedule string        `toml:"sweep_schedule"` // Cron schedule for the timeout/lease sweep
}

// ReconcileConfig configures the finalization critical section
type ReconcileConfig struct {
	LockLease time.Duration `toml:"lock_lease"` // Distributed lock lease (default: 300s)
}

// WebSocketConfig contains configuration for WebSocket event streaming
type WebSocketConfig struct {
	AllowedEvents []string `toml:"allowed_events"` // Whitelist of event names to broadcast. Empty allows all.
	EventsPerSec  float64  `toml:"events_per_sec"` // Per-connection send rate limit
	EventBurst    int      `toml:"event_burst"`    // Per-connection burst allowance
}

// NewDefaultConfig returns a config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/concilio",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
		Insight: InsightConfig{
			BaseURL:          "https://api.insight.example.com",
			RequestTimeout:   30 * time.Second,
			RateLimit:        10,
			BreakerThreshold: 5,
			BreakerCooldown:  60 * time.Second,
		},
		Webhook: WebhookConfig{
			MaxAge: 300 * time.Second,
		},
		Poller: PollerConfig{
			PollInterval:  1 * time.Second,
			Concurrency:   4,
			MaxRetries:    3,
			MaxJobAge:     24 * time.Hour,
			SweepSchedule: "*/5 * * * *", // Every 5 minutes
		},
		Reconcile: ReconcileConfig{
			LockLease: 300 * time.Second,
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			EventsPerSec:  20,
			EventBurst:    40,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Load .env into the process environment if present (ignored when missing)
	_ = godotenv.Load()

	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CONCILIO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CONCILIO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CONCILIO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("CONCILIO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("CONCILIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CONCILIO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if baseURL := os.Getenv("CONCILIO_INSIGHT_BASE_URL"); baseURL != "" {
		config.Insight.BaseURL = baseURL
	}
	if apiKey := os.Getenv("CONCILIO_INSIGHT_API_KEY"); apiKey != "" {
		config.Insight.APIKey = apiKey
	}
	if timeout := os.Getenv("CONCILIO_INSIGHT_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Insight.RequestTimeout = d
		}
	}

	if secret := os.Getenv("CONCILIO_WEBHOOK_SECRET"); secret != "" {
		config.Webhook.SharedSecret = secret
	}
	if maxAge := os.Getenv("CONCILIO_WEBHOOK_MAX_AGE"); maxAge != "" {
		if d, err := time.ParseDuration(maxAge); err == nil {
			config.Webhook.MaxAge = d
		}
	}

	if interval := os.Getenv("CONCILIO_POLLER_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Poller.PollInterval = d
		}
	}
	if concurrency := os.Getenv("CONCILIO_POLLER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Poller.Concurrency = c
		}
	}
	if maxAge := os.Getenv("CONCILIO_POLLER_MAX_JOB_AGE"); maxAge != "" {
		if d, err := time.ParseDuration(maxAge); err == nil {
			config.Poller.MaxJobAge = d
		}
	}

	if lease := os.Getenv("CONCILIO_RECONCILE_LOCK_LEASE"); lease != "" {
		if d, err := time.ParseDuration(lease); err == nil {
			config.Reconcile.LockLease = d
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
