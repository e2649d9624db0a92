package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/exttrust/exttrust/internal/inventory"
	"github.com/exttrust/exttrust/internal/registry"
)

// Config holds all application configuration
type Config struct {
	// HTTP Server
	HTTPAddr string

	// Inventory
	ProfileDir string
	SelfID     string

	// Fleet inventory (optional)
	DatabaseURL string
	FleetHostID string

	// Blocklist
	BlocklistURL      string
	BlocklistSnapshot string

	// Registry presence check
	RegistryURL         string
	ProdVersion         string
	PresenceConcurrency int // 0 means unbounded

	HTTPTimeout time.Duration

	// Policy table (optional YAML file)
	PolicyFile string

	// Watch mode
	ScanInterval time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()

	cfg := &Config{
		HTTPAddr:            getEnv("EXTTRUST_HTTP_ADDR", ":8080"),
		ProfileDir:          getEnv("EXTTRUST_PROFILE_DIR", inventory.DefaultChromeProfileDir(runtime.GOOS, home)),
		SelfID:              getEnv("EXTTRUST_SELF_ID", ""),
		DatabaseURL:         getEnv("EXTTRUST_DB_URL", ""),
		FleetHostID:         getEnv("EXTTRUST_FLEET_HOST", ""),
		BlocklistURL:        getEnv("EXTTRUST_BLOCKLIST_URL", ""),
		BlocklistSnapshot:   getEnv("EXTTRUST_BLOCKLIST_SNAPSHOT", ""),
		RegistryURL:         getEnv("EXTTRUST_REGISTRY_URL", registry.DefaultURL),
		ProdVersion:         getEnv("EXTTRUST_PROD_VERSION", "120.0.0.0"),
		PresenceConcurrency: getEnvInt("EXTTRUST_PRESENCE_CONCURRENCY", 0),
		HTTPTimeout:         getEnvDuration("EXTTRUST_HTTP_TIMEOUT", "30s"),
		PolicyFile:          getEnv("EXTTRUST_POLICY_FILE", ""),
		ScanInterval:        getEnvDuration("EXTTRUST_SCAN_INTERVAL", "0"),
	}

	// Validate
	if cfg.DatabaseURL != "" && cfg.FleetHostID == "" {
		return nil, fmt.Errorf("EXTTRUST_FLEET_HOST is required when EXTTRUST_DB_URL is set")
	}
	if cfg.DatabaseURL == "" && cfg.ProfileDir == "" {
		return nil, fmt.Errorf("EXTTRUST_PROFILE_DIR is required")
	}
	if cfg.PresenceConcurrency < 0 {
		return nil, fmt.Errorf("EXTTRUST_PRESENCE_CONCURRENCY must not be negative")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves an environment variable as a duration or returns a default value
func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		// If parsing fails, use the default
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
