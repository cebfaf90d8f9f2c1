package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/postgres"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/redis"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/scheduler"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// FileEnv names the variable that points to an optional YAML overlay.
const FileEnv = "GYMSTATS_CONFIG"

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig `yaml:"app"`

	// PostgreSQL, used by the worker and by the CLI when DATABASE_URL is set.
	Database postgres.Config `yaml:"database"`

	// Embedded store for local use.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Statistics cache. Empty address disables it.
	Redis redis.Config `yaml:"redis"`

	// Statistics tuning
	Stats StatsConfig `yaml:"stats"`

	// Scheduler
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Observability
	Observability ObservabilityConfig `yaml:"observability"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `yaml:"name" validate:"required"`
	Environment Environment `yaml:"environment" validate:"oneof=development staging production"`
	Debug       bool        `yaml:"debug"`
	Version     string      `yaml:"version"`

	// Timezone for interval boundaries of scheduled snapshots (default: UTC)
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// SQLiteConfig holds the embedded store settings.
type SQLiteConfig struct {
	// Path of the database file, ":memory:" for a throwaway store.
	Path string `yaml:"path"`
}

// StatsConfig tunes the statistics.
type StatsConfig struct {
	// MaxPValue is the significance cut-off of over-representation results.
	MaxPValue float64 `yaml:"max_p_value" validate:"gt=0,lte=1"`

	// TopK is the number of values kept per facet.
	TopK int `yaml:"top_k" validate:"min=1"`

	// DefaultScale is the fallback grade scale key.
	DefaultScale string `yaml:"default_scale" validate:"required"`

	// GradeScalesFile overlays the built-in scales when set.
	GradeScalesFile string `yaml:"grade_scales_file"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	// Enable/disable scheduler
	Enabled bool `yaml:"enabled"`

	// SnapshotInterval is the period between two snapshot runs.
	SnapshotInterval time.Duration `yaml:"snapshot_interval" validate:"min=0"`

	// SnapshotCron replaces SnapshotInterval when set, e.g. "5 0 * * *".
	SnapshotCron string `yaml:"snapshot_cron"`

	// SnapshotIntervals lists the interval kinds refreshed by each run.
	SnapshotIntervals []string `yaml:"snapshot_intervals" validate:"dive,oneof=week month year"`

	// LockTTL bounds how long one worker holds the snapshot lock.
	LockTTL time.Duration `yaml:"lock_ttl" validate:"min=0"`

	// Concurrency
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" validate:"min=1"`
	JobTimeout        time.Duration `yaml:"job_timeout" validate:"min=0"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error fatal"`
	LogFormat string `yaml:"log_format" validate:"oneof=json text"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port" validate:"min=1,max=65535"`
}

// Load loads configuration from environment variables, then overlays the
// YAML file named by GYMSTATS_CONFIG when it is set.
func Load() (*Config, error) {
	cfg := &Config{}

	// Load App config
	cfg.App = loadAppConfig()

	// Load Database config
	cfg.Database = loadDatabaseConfig()

	// Load SQLite config
	cfg.SQLite = SQLiteConfig{Path: getEnv("SQLITE_PATH", "gymstats.db")}

	// Load Redis config
	cfg.Redis = loadRedisConfig()

	// Load Stats config
	cfg.Stats = loadStatsConfig()

	// Load Scheduler config
	cfg.Scheduler = loadSchedulerConfig()

	// Load Observability config
	cfg.Observability = loadObservabilityConfig()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		loc = time.UTC
	}
	cfg.App.Location = loc

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// overlay decodes the YAML file over the values already loaded. Keys absent
// from the file keep their environment value.
func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "gymstats-hub"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        getEnv("APP_TIMEZONE", "UTC"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() postgres.Config {
	def := postgres.DefaultConfig()

	return postgres.Config{
		URL:               getEnv("DATABASE_URL", ""),
		Host:              getEnv("DB_HOST", def.Host),
		Port:              getEnvInt("DB_PORT", def.Port),
		Database:          getEnv("DB_NAME", def.Database),
		User:              getEnv("DB_USER", def.User),
		Password:          getEnv("DB_PASSWORD", ""),
		SSLMode:           getEnv("DB_SSLMODE", def.SSLMode),
		MaxConns:          int32(getEnvInt("DB_MAX_CONNS", int(def.MaxConns))),
		MinConns:          int32(getEnvInt("DB_MIN_CONNS", int(def.MinConns))),
		MaxConnLifetime:   getEnvDuration("DB_CONN_MAX_LIFETIME", def.MaxConnLifetime),
		MaxConnIdleTime:   getEnvDuration("DB_CONN_MAX_IDLE_TIME", def.MaxConnIdleTime),
		HealthCheckPeriod: getEnvDuration("DB_HEALTH_CHECK_PERIOD", def.HealthCheckPeriod),
		ConnectTimeout:    getEnvDuration("DB_CONNECT_TIMEOUT", def.ConnectTimeout),
	}
}

func loadRedisConfig() redis.Config {
	def := redis.DefaultConfig()

	return redis.Config{
		Addr:         getEnv("REDIS_ADDR", ""),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", def.PoolSize),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", def.DialTimeout),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", def.ReadTimeout),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", def.WriteTimeout),
		KeyPrefix:    getEnv("REDIS_KEY_PREFIX", def.KeyPrefix),
		TTL:          getEnvDuration("REDIS_TTL", def.TTL),
	}
}

func loadStatsConfig() StatsConfig {
	return StatsConfig{
		MaxPValue:       getEnvFloat("STATS_MAX_P_VALUE", 0.4),
		TopK:            getEnvInt("STATS_TOP_K", 3),
		DefaultScale:    getEnv("STATS_DEFAULT_SCALE", "@default"),
		GradeScalesFile: getEnv("GRADE_SCALES_FILE", ""),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           getEnvBool("SCHEDULER_ENABLED", true),
		SnapshotInterval:  getEnvDuration("SCHEDULER_SNAPSHOT_INTERVAL", time.Hour),
		SnapshotCron:      getEnv("SCHEDULER_SNAPSHOT_CRON", ""),
		SnapshotIntervals: getEnvStringSlice("SCHEDULER_SNAPSHOT_INTERVALS", []string{"week", "month", "year"}),
		LockTTL:           getEnvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
		MaxConcurrentJobs: getEnvInt("SCHEDULER_MAX_CONCURRENT", 5),
		JobTimeout:        getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsPort:    getEnvInt("METRICS_PORT", 9090),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed on %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	// PostgreSQL is required in production
	if c.App.Environment == EnvProduction && c.Database.URL == "" && c.Database.Host == "" {
		errs = append(errs, "DATABASE_URL or DB_HOST is required in production")
	}

	if c.Scheduler.Enabled && c.Scheduler.SnapshotCron == "" && c.Scheduler.SnapshotInterval <= 0 {
		errs = append(errs, "SCHEDULER_SNAPSHOT_INTERVAL must be positive when the scheduler is enabled")
	}

	if c.Scheduler.SnapshotCron != "" {
		if _, err := scheduler.ParseCron(c.Scheduler.SnapshotCron); err != nil {
			errs = append(errs, "SCHEDULER_SNAPSHOT_CRON: "+err.Error())
		}
	}

	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		errs = append(errs, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		result = append(result, p)
	}
	return result
}
