package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port               string
	AllowOrigins       string
	JWTSecret          string
	TokenTTL           time.Duration
	DBDriver           string
	DatabaseURL        string
	AdminUsername      string
	AdminPassword      string
	HeartbeatInterval  time.Duration
	EventsDefaultLimit int
	EventsMaxLimit     int
	LogLevel           string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func Load() *Config {
	driver := strings.ToLower(getenv("DB_DRIVER", "postgres"))
	return &Config{
		Port:               getenv("PORT", "8080"),
		AllowOrigins:       getenv("ALLOW_ORIGINS", "*"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           time.Duration(atoi("TOKEN_TTL_HOURS", 24)) * time.Hour,
		DBDriver:           driver,
		DatabaseURL:        getenv("DATABASE_URL", defaultDSN(driver)),
		AdminUsername:      getenv("ADMIN_USERNAME", "admin"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		HeartbeatInterval:  time.Duration(atoi("HEARTBEAT_INTERVAL_SECONDS", 30)) * time.Second,
		EventsDefaultLimit: atoi("EVENTS_DEFAULT_LIMIT", 100),
		EventsMaxLimit:     atoi("EVENTS_MAX_LIMIT", 1000),
		LogLevel:           getenv("LOG_LEVEL", "info"),
	}
}

// defaultDSN assembles a DSN from the discrete DB_* variables. Only postgres
// has a usable default; other drivers must set DATABASE_URL.
func defaultDSN(driver string) string {
	if driver != "postgres" {
		return ""
	}
	if os.Getenv("DB_HOST") == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"), getenv("DB_PORT", "5432"),
		os.Getenv("DB_NAME"), getenv("DB_SSLMODE", "disable"),
	)
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AdminPassword == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD is required"))
	}
	switch c.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL (or DB_HOST for postgres) is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_HOURS must be positive"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL_SECONDS must be positive"))
	}
	if c.EventsDefaultLimit <= 0 || c.EventsMaxLimit < c.EventsDefaultLimit {
		errs = append(errs, errors.New("EVENTS_DEFAULT_LIMIT must be positive and not exceed EVENTS_MAX_LIMIT"))
	}
	return errors.Join(errs...)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
