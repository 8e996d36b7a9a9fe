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

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port     string
	LogLevel string

	// Persistence
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	StoreTable     string
	DBQueryTimeout time.Duration

	// World rules
	ZonesPath          string
	WindJitterDeg      float64
	HoldCapacity       int
	DiscoveryRadiusM   float64
	InteractionRadiusM float64
	DefaultLat         float64
	DefaultLng         float64

	// Per-actor sessions
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	// Reverse geocoding
	NamingURL             string
	NamingUserAgent       string
	NamingTimeout         time.Duration
	NamingRetryMax        int
	NamingRetryBackoff    time.Duration
	NamingBreakerFailures int
	NamingBreakerReset    time.Duration
	NamingCacheSize       int
}

func Load() Config {
	return Config{
		Port:                  getEnv("PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		StoreDriver:           strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		SQLitePath:            getEnv("SQLITE_PATH", "geodrop.db"),
		StoreTable:            getEnv("STORE_TABLE", "world_objects"),
		DBQueryTimeout:        getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		ZonesPath:             getEnv("ZONES_PATH", ""),
		WindJitterDeg:         getEnvFloat("WIND_JITTER_DEG", 0.005),
		HoldCapacity:          getEnvInt("HOLD_CAPACITY", 15),
		DiscoveryRadiusM:      getEnvFloat("DISCOVERY_RADIUS_M", 1000),
		InteractionRadiusM:    getEnvFloat("INTERACTION_RADIUS_M", 50),
		DefaultLat:            getEnvFloat("DEFAULT_LAT", 35.6812),
		DefaultLng:            getEnvFloat("DEFAULT_LNG", 139.7671),
		SessionIdleTimeout:    getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval:  getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		NamingURL:             getEnv("NAMING_URL", ""),
		NamingUserAgent:       getEnv("NAMING_USER_AGENT", "geodrop/1.0"),
		NamingTimeout:         getEnvDuration("NAMING_TIMEOUT", 3*time.Second),
		NamingRetryMax:        getEnvInt("NAMING_RETRY_MAX", 2),
		NamingRetryBackoff:    getEnvDuration("NAMING_RETRY_BACKOFF", 200*time.Millisecond),
		NamingBreakerFailures: getEnvInt("NAMING_BREAKER_FAILURES", 5),
		NamingBreakerReset:    getEnvDuration("NAMING_BREAKER_RESET", 30*time.Second),
		NamingCacheSize:       getEnvInt("NAMING_CACHE_SIZE", 4096),
	}
}

// Validate checks rules that span more than one variable.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of memory, postgres, sqlite", c.StoreDriver))
	}
	if c.HoldCapacity <= 0 {
		errs = append(errs, fmt.Errorf("HOLD_CAPACITY must be positive, got %d", c.HoldCapacity))
	}
	if c.InteractionRadiusM <= 0 || c.DiscoveryRadiusM < c.InteractionRadiusM {
		errs = append(errs, fmt.Errorf("radii must satisfy DISCOVERY_RADIUS_M (%g) >= INTERACTION_RADIUS_M (%g) > 0",
			c.DiscoveryRadiusM, c.InteractionRadiusM))
	}
	if c.WindJitterDeg < 0 {
		errs = append(errs, fmt.Errorf("WIND_JITTER_DEG must not be negative, got %g", c.WindJitterDeg))
	}
	if c.DefaultLat < -90 || c.DefaultLat > 90 || c.DefaultLng < -180 || c.DefaultLng > 180 {
		errs = append(errs, fmt.Errorf("DEFAULT_LAT/DEFAULT_LNG out of range: %g, %g", c.DefaultLat, c.DefaultLng))
	}
	if c.SessionIdleTimeout <= 0 || c.SessionSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT (%s) and SESSION_SWEEP_INTERVAL (%s) must be positive",
			c.SessionIdleTimeout, c.SessionSweepInterval))
	}
	if c.NamingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("NAMING_TIMEOUT must be positive, got %s", c.NamingTimeout))
	}
	if c.NamingRetryMax < 0 {
		errs = append(errs, fmt.Errorf("NAMING_RETRY_MAX must not be negative, got %d", c.NamingRetryMax))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
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

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return f
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
