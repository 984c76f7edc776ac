package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cesargomez89/chordbook/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port               string
	DBPath             string
	StorageDir         string
	MirrorEnabled      bool
	LogLevel           string
	LogFormat          string
	AutoSaveDelay      time.Duration
	MaxSaveFailures    int
	RateLimitInterval  time.Duration
	RateLimitQueueMax  int
	AutoBackupInterval time.Duration
	MirrorMaxFiles     int
	MirrorOpDelay      time.Duration
	KVQuotaBytes       int64
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	home, _ := os.UserHomeDir()
	defaultStorage := filepath.Join(home, ".chordbook")

	return &Config{
		Port:               getEnv("PORT", constants.DefaultPort),
		DBPath:             getEnv("DB_PATH", constants.DefaultDBPath),
		StorageDir:         getEnv("STORAGE_DIR", defaultStorage),
		MirrorEnabled:      getEnvBool("MIRROR_ENABLED", true),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		AutoSaveDelay:      getEnvMillis("AUTOSAVE_DELAY_MS", constants.DefaultAutoSaveDelay),
		MaxSaveFailures:    getEnvInt("AUTOSAVE_MAX_FAILURES", constants.DefaultMaxSaveFailures),
		RateLimitInterval:  getEnvMillis("RATE_LIMIT_INTERVAL_MS", constants.DefaultRateLimitInterval),
		RateLimitQueueMax:  getEnvInt("RATE_LIMIT_QUEUE_MAX", constants.DefaultRateLimitQueueMax),
		AutoBackupInterval: getEnvMillis("AUTO_BACKUP_INTERVAL_MS", constants.DefaultAutoBackupInterval),
		MirrorMaxFiles:     getEnvInt("MIRROR_MAX_FILES", constants.DefaultMirrorMaxFiles),
		MirrorOpDelay:      getEnvMillis("MIRROR_OP_DELAY_MS", constants.DefaultMirrorOpDelay),
		KVQuotaBytes:       int64(getEnvInt("KV_QUOTA_BYTES", constants.DefaultKVQuotaBytes)),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	// Validate Port
	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	// Validate DBPath
	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	// Validate StorageDir (only required when the mirror is on)
	if c.MirrorEnabled && c.StorageDir == "" {
		errors = append(errors, "STORAGE_DIR cannot be empty when MIRROR_ENABLED is true")
	}

	// Validate LogLevel
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	// Validate LogFormat
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	// Validate timing and limits
	if c.AutoSaveDelay <= 0 {
		errors = append(errors, "AUTOSAVE_DELAY_MS must be positive")
	}
	if c.MaxSaveFailures < 1 {
		errors = append(errors, fmt.Sprintf("AUTOSAVE_MAX_FAILURES must be at least 1, got: %d", c.MaxSaveFailures))
	}
	if c.RateLimitInterval <= 0 {
		errors = append(errors, "RATE_LIMIT_INTERVAL_MS must be positive")
	}
	if c.RateLimitQueueMax < 1 {
		errors = append(errors, fmt.Sprintf("RATE_LIMIT_QUEUE_MAX must be at least 1, got: %d", c.RateLimitQueueMax))
	}
	if c.AutoBackupInterval <= 0 {
		errors = append(errors, "AUTO_BACKUP_INTERVAL_MS must be positive")
	}
	if c.MirrorMaxFiles < 1 {
		errors = append(errors, fmt.Sprintf("MIRROR_MAX_FILES must be at least 1, got: %d", c.MirrorMaxFiles))
	}
	if c.MirrorOpDelay < 0 {
		errors = append(errors, "MIRROR_OP_DELAY_MS cannot be negative")
	}
	if c.KVQuotaBytes < 1 {
		errors = append(errors, fmt.Sprintf("KV_QUOTA_BYTES must be at least 1, got: %d", c.KVQuotaBytes))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable with a fallback default
func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvMillis retrieves a duration environment variable expressed in milliseconds
func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
