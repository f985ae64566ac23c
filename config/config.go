package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"

	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// MaxExpiresHours bounds share lifetimes to a century.
const MaxExpiresHours = 100 * 365 * 24

type Config struct {
	HTTPAddr         string
	LogLevel         slog.Level
	LogFormat        string
	CORSAllowOrigins []string
	ShutdownTimeout  time.Duration

	DBDriver string
	DBHost   string
	DBPort   string
	DBUser   string
	DBPass   string
	DBName   string
	DBPath   string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	CacheBackend string
	CacheTTL     time.Duration
	CacheSize    int

	RabbitMQURL              string
	RabbitMQPrefetch         int
	CleanupEnabled           bool
	CleanupWorkerConcurrency int
	CleanupRate              float64
	CleanupBurst             int
	CleanupRetryMax          int
	CleanupRetryDelays       []time.Duration
	ReclaimExpired           bool

	MaxUploadBytes      int64
	DefaultMaxDownloads int
	DefaultExpiresHours int
	AccessKeyLength     int

	Storage StorageConfig
}

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// rabbitURLFromEnv prefers RABBITMQ_URL and otherwise assembles one from parts.
func rabbitURLFromEnv() string {
	if raw := getEnv("RABBITMQ_URL", ""); raw != "" {
		return raw
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/%s",
		url.PathEscape(getEnv("RABBITMQ_USER", "guest")),
		url.PathEscape(getEnv("RABBITMQ_PASSWORD", "guest")),
		getEnv("RABBITMQ_HOST", "localhost"),
		getEnv("RABBITMQ_PORT", "5672"),
		url.PathEscape(getEnv("RABBITMQ_VHOST", "/")),
	)
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg := &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
		LogLevel:         level,
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "json")),
		CORSAllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", nil),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", DriverMySQL)),
		DBHost:   getEnv("DB_HOST", "localhost"),
		DBPort:   getEnv("DB_PORT", "3306"),
		DBUser:   getEnv("DB_USER", "root"),
		DBPass:   getEnv("DB_PASS", "root"),
		DBName:   getEnv("DB_NAME", "file_share"),
		DBPath:   getEnv("DB_PATH", "fileshare.db"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", CacheNone)),
		CacheTTL:     getEnvDuration("CACHE_TTL", 30*time.Second),
		CacheSize:    getEnvInt("CACHE_SIZE", 1024),

		RabbitMQURL:              rabbitURLFromEnv(),
		RabbitMQPrefetch:         getEnvInt("RABBITMQ_PREFETCH", 8),
		CleanupEnabled:           getEnvBool("CLEANUP_ENABLED", false),
		CleanupWorkerConcurrency: getEnvInt("CLEANUP_WORKER_CONCURRENCY", 4),
		CleanupRate:              getEnvFloat("CLEANUP_RATE", 10),
		CleanupBurst:             getEnvInt("CLEANUP_BURST", 4),
		CleanupRetryMax:          getEnvInt("CLEANUP_RETRY_MAX", 5),
		CleanupRetryDelays: getEnvDurationList(
			"CLEANUP_RETRY_DELAYS",
			[]time.Duration{10 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute},
		),
		ReclaimExpired: getEnvBool("RECLAIM_EXPIRED", false),

		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		DefaultMaxDownloads: getEnvInt("DEFAULT_MAX_DOWNLOADS", 10),
		DefaultExpiresHours: getEnvInt("DEFAULT_EXPIRES_HOURS", 24),
		AccessKeyLength:     getEnvInt("ACCESS_KEY_LENGTH", 12),

		Storage: loadStorageConfig(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverSQLite, DriverBolt:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", c.DBDriver))
	}
	switch c.CacheBackend {
	case CacheRedis, CacheMemory, CacheNone:
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND: unsupported backend %q", c.CacheBackend))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unsupported format %q", c.LogFormat))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES: must be > 0"))
	}
	if c.DefaultMaxDownloads <= 0 {
		errs = append(errs, errors.New("DEFAULT_MAX_DOWNLOADS: must be > 0"))
	}
	if c.DefaultExpiresHours < 0 || c.DefaultExpiresHours > MaxExpiresHours {
		errs = append(errs, fmt.Errorf("DEFAULT_EXPIRES_HOURS: must be between 0 and %d", MaxExpiresHours))
	}
	if c.AccessKeyLength < 8 {
		errs = append(errs, errors.New("ACCESS_KEY_LENGTH: must be >= 8"))
	}
	if c.ReclaimExpired && c.CacheBackend != CacheRedis {
		errs = append(errs, errors.New("RECLAIM_EXPIRED: requires CACHE_BACKEND=redis"))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// DefaultExpiry returns the expiry applied when an upload does not choose one.
// Zero means uploads never expire by default.
func (c *Config) DefaultExpiry() time.Duration {
	return time.Duration(c.DefaultExpiresHours) * time.Hour
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", level)
	}
}
