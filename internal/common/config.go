package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Queue       QueueConfig   `toml:"queue"`
	Storage     StorageConfig `toml:"storage"`
	Crawler     CrawlerConfig `toml:"crawler"`
	Output      OutputConfig  `toml:"output"`
	Jobs        JobsConfig    `toml:"jobs"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port   int    `toml:"port"`
	Host   string `toml:"host"`
	APIKey string `toml:"api_key"` // Optional X-API-Key auth; empty disables auth
}

// QueueConfig controls worker polling and retry behavior
type QueueConfig struct {
	Concurrency     int    `toml:"concurrency"`       // Parallel task slots (WORKER_CONCURRENCY)
	PollIntervalMs  int    `toml:"poll_interval_ms"`  // Initial poll interval
	MaxPollMs       int    `toml:"max_poll_ms"`       // Adaptive poll interval ceiling
	JobTimeoutMs    int    `toml:"job_timeout_ms"`    // Stuck-job threshold
	BackoffDelayMs  int    `toml:"backoff_delay_ms"`  // Base retry delay
	MaxAttempts     int    `toml:"max_attempts"`      // Queue-level retry budget per entry
	CleanupAge      string `toml:"cleanup_age"`       // Terminal rows older than this are purged at startup
	MaintenanceCron string `toml:"maintenance_cron"`  // Cron spec for periodic stuck-reset/cleanup; empty disables
}

type StorageConfig struct {
	QueuePath string `toml:"queue_path"` // Badger directory for queue entries
	JobsPath  string `toml:"jobs_path"`  // Badger directory for job records
	CrawlRoot string `toml:"crawl_root"` // Transient per-task crawl storage root
}

// CrawlerConfig contains browser-driven crawl settings
type CrawlerConfig struct {
	UserAgent              string        `toml:"user_agent"`
	Headless               bool          `toml:"headless"`
	NoSandbox              bool          `toml:"no_sandbox"`
	MaxConcurrency         int           `toml:"max_concurrency"`           // Page workers per crawl session
	RequestDelay           time.Duration `toml:"request_delay"`             // Minimum delay between page loads in a session
	NavigationTimeout      time.Duration `toml:"navigation_timeout"`        // Per-page navigation budget
	WaitForSelectorTimeout time.Duration `toml:"wait_for_selector_timeout"` // Default selector wait, overridable per task
}

// OutputConfig holds process-wide crawl output limits
type OutputConfig struct {
	Dir             string `toml:"dir"`                // Job artifact directory
	MaxPagesToCrawl string `toml:"max_pages_to_crawl"` // Positive integer or "unlimited"
	MaxTokens       string `toml:"max_tokens"`         // Positive integer or "unlimited"
}

// JobsConfig contains configuration for job definition files
type JobsConfig struct {
	DefinitionsDir string `toml:"definitions_dir"` // Directory containing job definition TOML files
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "trace", "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the built-in defaults, prior to file/env/flag overrides
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 3000,
			Host: "0.0.0.0",
		},
		Queue: QueueConfig{
			Concurrency:     2,
			PollIntervalMs:  1000,
			MaxPollMs:       10000,
			JobTimeoutMs:    1800000,
			BackoffDelayMs:  5000,
			MaxAttempts:     3,
			CleanupAge:      "168h",
			MaintenanceCron: "@hourly",
		},
		Storage: StorageConfig{
			QueuePath: "./data/queue.db",
			JobsPath:  "./data/jobs.db",
			CrawlRoot: "./storage/jobs",
		},
		Crawler: CrawlerConfig{
			UserAgent:              "context-crawler/1.0",
			Headless:               true,
			NoSandbox:              true,
			MaxConcurrency:         2,
			RequestDelay:           100 * time.Millisecond,
			NavigationTimeout:      30 * time.Second,
			WaitForSelectorTimeout: 5 * time.Second,
		},
		Output: OutputConfig{
			Dir:             "./output/jobs",
			MaxPagesToCrawl: "unlimited",
			MaxTokens:       "unlimited",
		},
		Jobs: JobsConfig{
			DefinitionsDir: "./jobs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// Load reads configuration from a single optional file
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later config files override earlier ones; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
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
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Queue.PollIntervalMs = n
		}
	}
	if v := os.Getenv("MAX_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Queue.MaxPollMs = n
		}
	}
	if v := os.Getenv("JOB_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Queue.JobTimeoutMs = n
		}
	}
	if v := os.Getenv("BACKOFF_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Queue.BackoffDelayMs = n
		}
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Server.Port = n
		}
	}
	if v := os.Getenv("API_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		config.Server.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
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

// PollInterval returns the initial poll interval as a duration
func (q *QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

// MaxPollInterval returns the adaptive poll ceiling as a duration
func (q *QueueConfig) MaxPollInterval() time.Duration {
	return time.Duration(q.MaxPollMs) * time.Millisecond
}

// JobTimeout returns the stuck-job threshold as a duration
func (q *QueueConfig) JobTimeout() time.Duration {
	return time.Duration(q.JobTimeoutMs) * time.Millisecond
}

// BackoffDelay returns the base retry delay as a duration
func (q *QueueConfig) BackoffDelay() time.Duration {
	return time.Duration(q.BackoffDelayMs) * time.Millisecond
}

// CleanupAgeDuration parses the cleanup age, falling back to 7 days
func (q *QueueConfig) CleanupAgeDuration() time.Duration {
	d, err := time.ParseDuration(q.CleanupAge)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}
