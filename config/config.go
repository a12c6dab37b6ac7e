package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	History       HistoryConfig
	Selector      SelectorConfig
	Prober        ProberConfig
	Failover      FailoverConfig
	Alerts        AlertsConfig
	Export        ExportConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over
// individual fields. When neither DATABASE_URL nor DB_HOST is set the core
// runs in-memory only: the registry and history keep state in process and
// nothing survives a restart.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// HistoryConfig holds performance history store configuration
type HistoryConfig struct {
	// RingCapacity bounds the in-memory samples kept per provider;
	// older samples remain queryable through durable storage.
	RingCapacity int
	BucketWidth  time.Duration
}

// SelectorConfig holds optimization selector configuration
type SelectorConfig struct {
	DefaultMode      string // fastest | cheapest | balanced
	HealthWindow     time.Duration
	HealthMinSamples int // most recent N samples considered
	HealthyThreshold float64
}

// ProberConfig holds health prober configuration
type ProberConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Message  string // synthetic probe prompt
}

// FailoverConfig holds failover executor configuration
type FailoverConfig struct {
	AttemptTimeout time.Duration
}

// AlertsConfig holds alert engine configuration
type AlertsConfig struct {
	EvaluationSchedule string // cron expression
	DefaultCooldown    time.Duration
	WebhookURL         string
	WebhookTimeout     time.Duration
	RecentLimit        int
}

// ExportConfig holds export/reporting configuration
type ExportConfig struct {
	MaxDays       int
	Retention     time.Duration
	PruneSchedule string // cron expression
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env if present (no error when missing)
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8090),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		History: HistoryConfig{
			RingCapacity: getEnvAsInt("HISTORY_RING_CAPACITY", 10000),
			BucketWidth:  getEnvAsDuration("HISTORY_BUCKET_WIDTH", 15*time.Minute),
		},
		Selector: SelectorConfig{
			DefaultMode:      getEnv("OPTIMIZATION_MODE", "balanced"),
			HealthWindow:     getEnvAsDuration("HEALTH_WINDOW", 10*time.Minute),
			HealthMinSamples: getEnvAsInt("HEALTH_RECENT_SAMPLES", 20),
			HealthyThreshold: getEnvAsFloat("HEALTHY_SUCCESS_THRESHOLD", 0.5),
		},
		Prober: ProberConfig{
			Interval: getEnvAsDuration("PROBE_INTERVAL", 60*time.Second),
			Timeout:  getEnvAsDuration("PROBE_TIMEOUT", 10*time.Second),
			Message:  getEnv("PROBE_MESSAGE", "ping"),
		},
		Failover: FailoverConfig{
			AttemptTimeout: getEnvAsDuration("FAILOVER_ATTEMPT_TIMEOUT", 30*time.Second),
		},
		Alerts: AlertsConfig{
			EvaluationSchedule: getEnv("ALERT_EVALUATION_SCHEDULE", "* * * * *"),
			DefaultCooldown:    getEnvAsDuration("ALERT_DEFAULT_COOLDOWN", 15*time.Minute),
			WebhookURL:         getEnv("ALERT_WEBHOOK_URL", ""),
			WebhookTimeout:     getEnvAsDuration("ALERT_WEBHOOK_TIMEOUT", 10*time.Second),
			RecentLimit:        getEnvAsInt("ALERT_RECENT_LIMIT", 500),
		},
		Export: ExportConfig{
			MaxDays:       getEnvAsInt("EXPORT_MAX_DAYS", 90),
			Retention:     getEnvAsDuration("SAMPLE_RETENTION", 90*24*time.Hour),
			PruneSchedule: getEnv("SAMPLE_PRUNE_SCHEDULE", "30 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Selector.DefaultMode {
	case "fastest", "cheapest", "balanced":
	default:
		return fmt.Errorf("invalid optimization mode: %s", c.Selector.DefaultMode)
	}

	if c.History.RingCapacity <= 0 {
		return fmt.Errorf("history ring capacity must be positive")
	}
	if c.History.BucketWidth <= 0 {
		return fmt.Errorf("history bucket width must be positive")
	}
	if c.Selector.HealthyThreshold < 0 || c.Selector.HealthyThreshold > 1 {
		return fmt.Errorf("healthy success threshold must be within [0,1]")
	}
	if c.Prober.Interval <= 0 || c.Prober.Timeout <= 0 {
		return fmt.Errorf("prober interval and timeout must be positive")
	}
	if c.Failover.AttemptTimeout <= 0 {
		return fmt.Errorf("failover attempt timeout must be positive")
	}
	if c.Export.MaxDays <= 0 {
		return fmt.Errorf("export max days must be positive")
	}
	// Raw samples must stay queryable for the longest export window
	if c.Export.Retention < time.Duration(c.Export.MaxDays)*24*time.Hour {
		return fmt.Errorf("sample retention %s is shorter than the %d-day export window",
			c.Export.Retention, c.Export.MaxDays)
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Persistent reports whether a durable database is configured.
func (c *DatabaseConfig) Persistent() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "monitor"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "monitor"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
