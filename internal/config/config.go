// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Config holds application configuration
type Config struct {
	LogLevel         string
	LogPretty        bool          // Console writer instead of JSON
	Workers          int           // Worker goroutines for grid evaluation
	ProgressThrottle time.Duration // Minimum interval between progress emissions
	DevMode          bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("LOG_PRETTY", false),
		Workers:          getEnvAsInt("DOTSCOPE_WORKERS", 0), // 0 = detect
		ProgressThrottle: time.Duration(getEnvAsInt("PROGRESS_THROTTLE_MS", 100)) * time.Millisecond,
		DevMode:          getEnvAsBool("DEV_MODE", false),
	}

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	if c.ProgressThrottle < 0 {
		return fmt.Errorf("progress throttle must be non-negative, got %s", c.ProgressThrottle)
	}
	return nil
}

// DefaultWorkers returns the number of physical CPU cores, falling back to
// the logical count when physical detection fails. Grid evaluation is
// compute-bound, so hyperthreads rarely help.
func DefaultWorkers() int {
	if count, err := cpu.Counts(false); err == nil && count > 0 {
		return count
	}
	return runtime.NumCPU()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
