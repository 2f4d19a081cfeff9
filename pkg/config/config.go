package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for velocityiq-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys, tokens) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional dashboard cache)
	Redis RedisConfig `yaml:"redis"`

	// Forecaster holds the remote inference endpoint configuration
	Forecaster ForecasterConfig `yaml:"forecaster"`

	// Thresholds holds overrides for the rule-engine constants
	Thresholds ThresholdsConfig `yaml:"thresholds"`

	// Scheduler configuration for periodic forecast runs
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Kafka configuration (optional alert event publishing)
	Kafka KafkaConfig `yaml:"kafka"`

	// Insights configuration (optional LLM ops digest)
	Insights InsightsConfig `yaml:"insights"`

	// Dashboard API tuning
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without the hosted auth provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
// URL takes precedence when set (hosted Postgres products hand out a single DSN);
// otherwise the connection string is composed from the individual fields.
type DatabaseConfig struct {
	URL            string `yaml:"-" env:"DATABASE_URL"` // Secret - not in YAML
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"velocityiq"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"velocityiq"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis cache configuration.
// The cache is optional: an empty Host disables it entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ForecasterConfig holds the remote time-series inference endpoint configuration.
type ForecasterConfig struct {
	// EndpointURL is the inference endpoint invocation URL. Empty disables
	// the forecast pipeline (the dashboard still serves stored data).
	EndpointURL string `yaml:"endpoint_url" env:"FORECAST_ENDPOINT_URL" env-default:""`

	// APIToken is attached as a bearer token when set.
	APIToken string `yaml:"-" env:"FORECAST_API_TOKEN"` // Secret - not in YAML

	// ModelVersion is recorded on every stored forecast row.
	ModelVersion string `yaml:"model_version" env:"FORECAST_MODEL_VERSION" env-default:"chronos-bolt-small"`

	TimeoutSeconds int       `yaml:"timeout_seconds" env:"FORECAST_TIMEOUT_SECONDS" env-default:"120"`
	PredictionDays int       `yaml:"prediction_days" env:"FORECAST_PREDICTION_DAYS" env-default:"14"`
	QuantileLevels []float64 `yaml:"quantile_levels" env:"FORECAST_QUANTILE_LEVELS" env-default:"0.1,0.25,0.5,0.75,0.9"`
	Freq           string    `yaml:"freq" env:"FORECAST_FREQ" env-default:"D"`

	// MaxBatchSize caps the batch_size parameter sent to the endpoint.
	MaxBatchSize int `yaml:"max_batch_size" env:"FORECAST_MAX_BATCH_SIZE" env-default:"32"`

	// HistoryDays is how far back the transaction ledger is scanned for
	// the demand series; MinHistoryPoints pads shorter series.
	HistoryDays      int `yaml:"history_days" env:"FORECAST_HISTORY_DAYS" env-default:"90"`
	MinHistoryPoints int `yaml:"min_history_points" env:"FORECAST_MIN_HISTORY_POINTS" env-default:"5"`

	// Retry policy for endpoint calls.
	MaxAttempts           int `yaml:"max_attempts" env:"FORECAST_MAX_ATTEMPTS" env-default:"3"`
	BackoffInitialSeconds int `yaml:"backoff_initial_seconds" env:"FORECAST_BACKOFF_INITIAL_SECONDS" env-default:"2"`
	BackoffMaxSeconds     int `yaml:"backoff_max_seconds" env:"FORECAST_BACKOFF_MAX_SECONDS" env-default:"30"`
}

// ThresholdsConfig holds optional overrides for the rule-engine constants.
// Nil pointers fall back to the defaults in pkg/stock so the alert engine and
// the dashboard display can never disagree about what "significant" means.
type ThresholdsConfig struct {
	MonitorBufferPct    *float64 `yaml:"monitor_buffer_pct" env:"THRESHOLD_MONITOR_BUFFER_PCT"`
	ReorderDays         *float64 `yaml:"reorder_days" env:"THRESHOLD_REORDER_DAYS"`
	LowStockDays        *float64 `yaml:"low_stock_days" env:"THRESHOLD_LOW_STOCK_DAYS"`
	SpikeThresholdPct   *float64 `yaml:"spike_threshold_pct" env:"THRESHOLD_SPIKE_PCT"`
	MaxLeadTimeDays     *int     `yaml:"max_lead_time_days" env:"THRESHOLD_MAX_LEAD_TIME_DAYS"`
	MinReliabilityScore *float64 `yaml:"min_reliability_score" env:"THRESHOLD_MIN_RELIABILITY"`
	AnomalyTolerancePct *float64 `yaml:"anomaly_tolerance_pct" env:"THRESHOLD_ANOMALY_TOLERANCE_PCT"`
	MaxInvalidShare     *float64 `yaml:"max_invalid_share" env:"THRESHOLD_MAX_INVALID_SHARE"`
}

// SchedulerConfig controls the periodic forecast pipeline runner.
type SchedulerConfig struct {
	// IntervalMinutes between runs. 0 disables scheduled runs (the
	// /api/forecast/run endpoint still works).
	IntervalMinutes int `yaml:"interval_minutes" env:"SCHEDULER_INTERVAL_MINUTES" env-default:"360"`
}

// KafkaConfig holds the optional alert event publisher configuration.
// Empty Brokers disables publishing.
type KafkaConfig struct {
	BrokersStr string   `yaml:"brokers" env:"KAFKA_BROKERS" env-default:""`
	Brokers    []string `yaml:"-"`
	Topic      string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"velocityiq.alerts"`
}

// InsightsConfig holds the optional LLM ops-digest configuration.
// Empty APIKey disables the insights endpoint.
type InsightsConfig struct {
	APIKey  string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML
	Model   string `yaml:"model" env:"INSIGHTS_MODEL" env-default:"gpt-4o-mini"`
	BaseURL string `yaml:"base_url" env:"INSIGHTS_BASE_URL" env-default:""`
}

// DashboardConfig tunes the read API.
type DashboardConfig struct {
	AlertLimit      int    `yaml:"alert_limit" env:"DASHBOARD_ALERT_LIMIT" env-default:"20"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" env:"DASHBOARD_CACHE_TTL_SECONDS" env-default:"30"`
	AllowedOrigins  string `yaml:"allowed_origins" env:"DASHBOARD_ALLOWED_ORIGINS" env-default:"*"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml does not exist (hosted deployments configure everything via
// environment), configuration is read from the environment alone. The version
// parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Kafka.Brokers = splitAndTrim(c.Kafka.BrokersStr)
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection string.
// DATABASE_URL wins when set; otherwise the string is composed from parts.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// PipelineEnabled reports whether the forecast pipeline can run.
func (c *ForecasterConfig) PipelineEnabled() bool {
	return c.EndpointURL != ""
}

// PublishingEnabled reports whether alert events are published to Kafka.
func (c *KafkaConfig) PublishingEnabled() bool {
	return len(c.Brokers) > 0
}

// DigestEnabled reports whether the LLM ops digest is available.
func (c *InsightsConfig) DigestEnabled() bool {
	return c.APIKey != ""
}
