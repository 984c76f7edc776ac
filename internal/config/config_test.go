package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cesargomez89/chordbook/internal/constants"
)

func TestLoad(t *testing.T) {
	// Test default values
	cfg := Load()

	if cfg.Port != constants.DefaultPort {
		t.Errorf("Expected Port to be %s, got %s", constants.DefaultPort, cfg.Port)
	}

	if cfg.DBPath != constants.DefaultDBPath {
		t.Errorf("Expected DBPath to be %s, got %s", constants.DefaultDBPath, cfg.DBPath)
	}

	if cfg.AutoSaveDelay != constants.DefaultAutoSaveDelay {
		t.Errorf("Expected AutoSaveDelay to be %v, got %v", constants.DefaultAutoSaveDelay, cfg.AutoSaveDelay)
	}

	if cfg.MaxSaveFailures != constants.DefaultMaxSaveFailures {
		t.Errorf("Expected MaxSaveFailures to be %d, got %d", constants.DefaultMaxSaveFailures, cfg.MaxSaveFailures)
	}

	// Check StorageDir is not empty (depends on user's home dir)
	if cfg.StorageDir == "" {
		t.Error("Expected StorageDir to not be empty")
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	// Set environment variables
	os.Setenv("PORT", "9090")
	os.Setenv("DB_PATH", "/tmp/test.db")
	os.Setenv("AUTOSAVE_DELAY_MS", "500")
	os.Setenv("AUTOSAVE_MAX_FAILURES", "3")
	os.Setenv("MIRROR_ENABLED", "false")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_PATH")
		os.Unsetenv("AUTOSAVE_DELAY_MS")
		os.Unsetenv("AUTOSAVE_MAX_FAILURES")
		os.Unsetenv("MIRROR_ENABLED")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be 9090, got %s", cfg.Port)
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected DBPath to be /tmp/test.db, got %s", cfg.DBPath)
	}

	if cfg.AutoSaveDelay != 500*time.Millisecond {
		t.Errorf("Expected AutoSaveDelay to be 500ms, got %v", cfg.AutoSaveDelay)
	}

	if cfg.MaxSaveFailures != 3 {
		t.Errorf("Expected MaxSaveFailures to be 3, got %d", cfg.MaxSaveFailures)
	}

	if cfg.MirrorEnabled {
		t.Error("Expected MirrorEnabled to be false")
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.StorageDir = "/tmp/chordbook-test"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Load()
	cfg.Port = "not-a-number"
	cfg.DBPath = ""
	cfg.LogLevel = "loud"
	cfg.MaxSaveFailures = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation to fail")
	}

	msg := err.Error()
	for _, want := range []string{"PORT", "DB_PATH", "LOG_LEVEL", "AUTOSAVE_MAX_FAILURES"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected error to mention %s, got: %s", want, msg)
		}
	}
}

func TestValidateInvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port string
	}{
		{"empty", ""},
		{"non-numeric", "abc"},
		{"too low", "0"},
		{"too high", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			cfg.Port = tt.port
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation to fail for port %q", tt.port)
			}
		})
	}
}
