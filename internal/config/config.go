package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Rental     RentalConfig     `yaml:"rental"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Host              string  `yaml:"host"`
	Port              int     `yaml:"port"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // "postgres" or "memory"
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Database      string `yaml:"database"`
	SSLMode       string `yaml:"ssl_mode"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	LockTimeoutMs int    `yaml:"lock_timeout_ms"`
	RunMigrations bool   `yaml:"run_migrations"`
}

// RedisConfig contains the settings cache connection. An empty Addr selects
// the in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig contains the kiosk event broker settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables hardware ingestion
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// RentalConfig contains lifecycle policy. Values also present in the
// app_config table are overridden at runtime through the settings store.
type RentalConfig struct {
	MinBatteryLevel           int    `yaml:"min_battery_level"`
	CancellationWindowMinutes int    `yaml:"cancellation_window_minutes"`
	MaxExtensions             int    `yaml:"max_extensions"`
	AbandonmentHours          int    `yaml:"abandonment_hours"`
	AbandonmentPenalty        string `yaml:"abandonment_penalty"`
	CompletionBonusPoints     string `yaml:"completion_bonus_points"`
	StalePendingMinutes       int    `yaml:"stale_pending_minutes"`
	DueReminderMinutes        int    `yaml:"due_reminder_minutes"`
	MaxConflictRetries        int    `yaml:"max_conflict_retries"`
	SettingsCacheTTLSeconds   int    `yaml:"settings_cache_ttl_seconds"`
}

// ReconcilerConfig contains sweep sizing
type ReconcilerConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	Reconcile      string `yaml:"reconcile"`
	IntegrityCheck string `yaml:"integrity_check"`
	DueReminders   string `yaml:"due_reminders"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a configuration from YAML bytes, applying env overrides and defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// MQTT
	if val := os.Getenv("MQTT_BROKER"); val != "" {
		c.MQTT.Broker = val
	}
	if val := os.Getenv("MQTT_USERNAME"); val != "" {
		c.MQTT.Username = val
	}
	if val := os.Getenv("MQTT_PASSWORD"); val != "" {
		c.MQTT.Password = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RequestsPerSecond <= 0 {
		c.Server.RequestsPerSecond = 20
	}
	if c.Server.Burst <= 0 {
		c.Server.Burst = 40
	}

	// Database validation
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.LockTimeoutMs <= 0 {
		c.Database.LockTimeoutMs = 2000
	}

	// MQTT defaults
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "kiosks/+/events"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "chargeshare-backend"
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS: %d", c.MQTT.QoS)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Rental defaults
	r := &c.Rental
	if r.MinBatteryLevel <= 0 {
		r.MinBatteryLevel = 20
	}
	if r.MinBatteryLevel > 100 {
		return fmt.Errorf("invalid min battery level: %d", r.MinBatteryLevel)
	}
	if r.CancellationWindowMinutes <= 0 {
		r.CancellationWindowMinutes = 5
	}
	if r.MaxExtensions <= 0 {
		r.MaxExtensions = 3
	}
	if r.AbandonmentHours <= 0 {
		r.AbandonmentHours = 24
	}
	if r.AbandonmentPenalty == "" {
		r.AbandonmentPenalty = "1000"
	}
	if _, err := decimal.NewFromString(r.AbandonmentPenalty); err != nil {
		return fmt.Errorf("invalid abandonment penalty %q: %w", r.AbandonmentPenalty, err)
	}
	if r.CompletionBonusPoints == "" {
		r.CompletionBonusPoints = "5"
	}
	if _, err := decimal.NewFromString(r.CompletionBonusPoints); err != nil {
		return fmt.Errorf("invalid completion bonus %q: %w", r.CompletionBonusPoints, err)
	}
	if r.StalePendingMinutes <= 0 {
		r.StalePendingMinutes = 15
	}
	if r.DueReminderMinutes <= 0 {
		r.DueReminderMinutes = 10
	}
	if r.MaxConflictRetries <= 0 {
		r.MaxConflictRetries = 3
	}
	if r.SettingsCacheTTLSeconds <= 0 {
		r.SettingsCacheTTLSeconds = 30
	}

	if c.Reconciler.BatchSize <= 0 {
		c.Reconciler.BatchSize = 200
	}

	// Scheduler defaults
	if c.Scheduler.Reconcile == "" {
		c.Scheduler.Reconcile = "0 * * * * *" // every minute
	}
	if c.Scheduler.IntegrityCheck == "" {
		c.Scheduler.IntegrityCheck = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.DueReminders == "" {
		c.Scheduler.DueReminders = "30 * * * * *" // every minute, offset from reconcile
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LockTimeout returns the store row-lock wait limit
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Database.LockTimeoutMs) * time.Millisecond
}

// SettingsCacheTTL returns how long settings reads may be served from cache
func (c *Config) SettingsCacheTTL() time.Duration {
	return time.Duration(c.Rental.SettingsCacheTTLSeconds) * time.Second
}

// Penalty returns the configured abandonment penalty as a decimal
func (r RentalConfig) Penalty() decimal.Decimal {
	return decimal.RequireFromString(r.AbandonmentPenalty)
}

// CompletionBonus returns the configured on-time bonus as a decimal
func (r RentalConfig) CompletionBonus() decimal.Decimal {
	return decimal.RequireFromString(r.CompletionBonusPoints)
}
