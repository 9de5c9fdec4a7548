// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DIP       DIPConfig       `mapstructure:"dip"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DIPConfig controls access to the DIP API.
type DIPConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	PageSize          int     `mapstructure:"page_size"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// ChallengeConfig governs bot-challenge solving and cookie caching.
type ChallengeConfig struct {
	CookiePath          string `mapstructure:"cookie_path"`
	CookieTTLSeconds    int    `mapstructure:"cookie_ttl_seconds"`
	SolveTimeoutSeconds int    `mapstructure:"solve_timeout_seconds"`
	MaxSolveAttempts    int    `mapstructure:"max_solve_attempts"`
	Headless            bool   `mapstructure:"headless"`
}

// FetchConfig bounds orchestrator runs.
type FetchConfig struct {
	StateDir string `mapstructure:"state_dir"`
	LockDir  string `mapstructure:"lock_dir"`
	MaxPages int    `mapstructure:"max_pages"`
	MaxItems int    `mapstructure:"max_items"`
}

// DBConfig controls the Postgres connection pool.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// StorageConfig selects and configures the raw page sink.
type StorageConfig struct {
	// Provider is "local" or "gcs".
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublishConfig holds Pub/Sub settings for page-committed events.
type PublishConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// EmbeddingConfig controls embedding computation and search.
type EmbeddingConfig struct {
	// Provider is "local" or "http".
	Provider       string `mapstructure:"provider"`
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	Version        string `mapstructure:"version"`
	Dimension      int    `mapstructure:"dimension"`
	MaxChars       int    `mapstructure:"max_chars"`
	BatchLimit     int    `mapstructure:"batch_limit"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dip.base_url", "https://search.dip.bundestag.de/api/v1")
	v.SetDefault("dip.page_size", 100)
	v.SetDefault("dip.user_agent", "crawlify/0.1")
	v.SetDefault("dip.timeout_seconds", 20)
	v.SetDefault("dip.requests_per_second", 2.0)
	v.SetDefault("dip.max_retries", 5)
	v.SetDefault("challenge.cookie_path", "state/challenge_cookies.json")
	v.SetDefault("challenge.cookie_ttl_seconds", 3600)
	v.SetDefault("challenge.solve_timeout_seconds", 60)
	v.SetDefault("challenge.max_solve_attempts", 1)
	v.SetDefault("challenge.headless", true)
	v.SetDefault("fetch.state_dir", "state")
	v.SetDefault("fetch.lock_dir", "state/locks")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "data/raw")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.version", "v1")
	v.SetDefault("embedding.dimension", 256)
	v.SetDefault("embedding.max_chars", 8000)
	v.SetDefault("embedding.batch_limit", 1000)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DIP.BaseURL == "" {
		return fmt.Errorf("dip.base_url is required")
	}
	if c.DIP.PageSize <= 0 {
		return fmt.Errorf("dip.page_size must be > 0")
	}
	if c.DIP.RequestsPerSecond <= 0 {
		return fmt.Errorf("dip.requests_per_second must be > 0")
	}
	if c.Challenge.CookieTTLSeconds <= 0 {
		return fmt.Errorf("challenge.cookie_ttl_seconds must be > 0")
	}
	if c.Challenge.MaxSolveAttempts <= 0 {
		return fmt.Errorf("challenge.max_solve_attempts must be > 0")
	}
	switch c.Storage.Provider {
	case "local", "gcs":
	default:
		return fmt.Errorf("storage.provider must be local or gcs, got %q", c.Storage.Provider)
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
	}
	switch c.Embedding.Provider {
	case "local", "http":
	default:
		return fmt.Errorf("embedding.provider must be local or http, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "http" && c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint is required for the http provider")
	}
	if c.Publish.Enabled && (c.Publish.ProjectID == "" || c.Publish.TopicName == "") {
		return fmt.Errorf("publish.project_id and publish.topic_name are required when publishing is enabled")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}
