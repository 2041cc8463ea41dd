// Package config assembles routemq's environment-sourced configuration,
// following the VeRJiL template's internal/config pattern: grouped
// sub-structs, getEnv-style helpers with defaults, and a single Load
// entry point that reads a .env file (if present) once at process start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level, fully-populated configuration for every
// routemq run mode (--run and --queue-work share it; each reads only the
// sections it needs).
type Config struct {
	Broker      BrokerConfig
	Queue       QueueConfig
	MemoryStore MemoryStoreConfig
	Relational  RelationalConfig
	Logging     LoggingConfig
}

// BrokerConfig configures the MQTT connection shared by the main session
// and every worker process (spec §6).
type BrokerConfig struct {
	Driver         string
	Host           string
	Port           string
	ClientIDPrefix string
	Username       string
	Password       string
	ShareGroup     string
}

// QueueConfig selects and tunes the active job queue connection (spec §6
// "--queue-work [--queue][--connection]...").
type QueueConfig struct {
	Connection string
	Queue      string
	MaxJobs    int
	MaxTime    time.Duration
	Sleep      time.Duration
	Timeout    time.Duration
}

// MemoryStoreConfig configures the Redis-backed queue driver (spec §4.9).
type MemoryStoreConfig struct {
	Host               string
	Port               string
	Password           string
	DB                 int
	StaleCheckInterval time.Duration
	MinStaleThreshold  time.Duration
}

// RelationalConfig configures the Postgres-backed queue driver (spec §4.9).
type RelationalConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// LoggingConfig configures the structured logger every subsystem shares.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads a .env file if one is present (a missing file is not an
// error — routemq falls back to whatever is already in the process
// environment), then assembles Config from environment variables with
// defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("routemq/config: loading .env: %w", err)
		}
	}

	cfg := &Config{
		Broker: BrokerConfig{
			Driver:         getEnv("ROUTEMQ_BROKER_DRIVER", "paho"),
			Host:           getEnv("ROUTEMQ_BROKER_HOST", "localhost"),
			Port:           getEnv("ROUTEMQ_BROKER_PORT", "1883"),
			ClientIDPrefix: getEnv("ROUTEMQ_BROKER_CLIENT_ID_PREFIX", "routemq"),
			Username:       getEnv("ROUTEMQ_BROKER_USERNAME", ""),
			Password:       getEnv("ROUTEMQ_BROKER_PASSWORD", ""),
			ShareGroup:     getEnv("ROUTEMQ_BROKER_SHARE_GROUP", "routemq"),
		},
		Queue: QueueConfig{
			Connection: getEnv("ROUTEMQ_QUEUE_CONNECTION", "memory"),
			Queue:      getEnv("ROUTEMQ_QUEUE_DEFAULT", "default"),
			MaxJobs:    getEnvAsInt("ROUTEMQ_QUEUE_MAX_JOBS", 0),
			MaxTime:    getEnvAsDuration("ROUTEMQ_QUEUE_MAX_TIME", 0),
			Sleep:      getEnvAsDuration("ROUTEMQ_QUEUE_SLEEP", time.Second),
			Timeout:    getEnvAsDuration("ROUTEMQ_QUEUE_TIMEOUT", 0),
		},
		MemoryStore: MemoryStoreConfig{
			Host:               getEnv("ROUTEMQ_REDIS_HOST", "localhost"),
			Port:               getEnv("ROUTEMQ_REDIS_PORT", "6379"),
			Password:           getEnv("ROUTEMQ_REDIS_PASSWORD", ""),
			DB:                 getEnvAsInt("ROUTEMQ_REDIS_DB", 0),
			StaleCheckInterval: getEnvAsDuration("ROUTEMQ_REDIS_STALE_CHECK_INTERVAL", 30*time.Second),
			MinStaleThreshold:  getEnvAsDuration("ROUTEMQ_REDIS_MIN_STALE_THRESHOLD", 90*time.Second),
		},
		Relational: RelationalConfig{
			Host:     getEnv("ROUTEMQ_POSTGRES_HOST", "localhost"),
			Port:     getEnv("ROUTEMQ_POSTGRES_PORT", "5432"),
			Database: getEnv("ROUTEMQ_POSTGRES_DATABASE", "routemq"),
			User:     getEnv("ROUTEMQ_POSTGRES_USER", "postgres"),
			Password: getEnv("ROUTEMQ_POSTGRES_PASSWORD", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("ROUTEMQ_LOG_LEVEL", "info"),
			Format: getEnv("ROUTEMQ_LOG_FORMAT", "text"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Queue.Connection {
	case "memory", "relational":
	default:
		return fmt.Errorf("routemq/config: ROUTEMQ_QUEUE_CONNECTION must be \"memory\" or \"relational\", got %q", cfg.Queue.Connection)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
