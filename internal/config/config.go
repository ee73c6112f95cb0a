package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Local store
	DBPath string

	// Sync engine
	SyncInterval       time.Duration
	SyncMaxRetries     int
	SyncRetryBaseDelay time.Duration
	SyncRetryMaxDelay  time.Duration

	// Remote endpoint
	RemoteTimeout time.Duration
	HeartbeatInterval time.Duration

	// AMQP (optional)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func Load() *Config {
	return &Config{
		DBPath: getEnv("FINTRACK_DB_PATH", "./data/fintrack.db"),

		SyncInterval:       getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		SyncMaxRetries:     getEnvInt("SYNC_MAX_RETRIES", 3),
		SyncRetryBaseDelay: getEnvDuration("SYNC_RETRY_BASE_DELAY", time.Second),
		SyncRetryMaxDelay:  getEnvDuration("SYNC_RETRY_MAX_DELAY", 30*time.Second),

		RemoteTimeout: getEnvDuration("REMOTE_TIMEOUT", 15*time.Second),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "sync_state"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.SyncMaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("invalid max retries %d: must not be negative", c.SyncMaxRetries))
	} else if c.SyncMaxRetries > 20 {
		errors = append(errors, fmt.Sprintf("invalid max retries %d: must be at most 20", c.SyncMaxRetries))
	}

	if c.SyncRetryBaseDelay <= 0 {
		errors = append(errors, fmt.Sprintf("invalid retry base delay %v: must be positive", c.SyncRetryBaseDelay))
	}
	if c.SyncRetryMaxDelay < c.SyncRetryBaseDelay {
		errors = append(errors, fmt.Sprintf("invalid retry max delay %v: must be at least the base delay %v", c.SyncRetryMaxDelay, c.SyncRetryBaseDelay))
	}

	if c.RemoteTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be at least 1 second", c.RemoteTimeout))
	}
	if c.HeartbeatInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid heartbeat interval %v: must be at least 1 second", c.HeartbeatInterval))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if strings.EqualFold(c.LogLevel, level) {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	if c.LogFile != "" {
		if c.LogMaxSizeMB < 1 {
			errors = append(errors, fmt.Sprintf("invalid log max size %dMB: must be at least 1", c.LogMaxSizeMB))
		}
		if c.LogMaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("invalid log max backups %d: must not be negative", c.LogMaxBackups))
		}
		if c.LogMaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("invalid log max age %d days: must not be negative", c.LogMaxAgeDays))
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
