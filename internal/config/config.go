// Package config provides environment-aware configuration management
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all transactor configuration
type Config struct {
	// Environment
	Env Environment

	// Server identity
	ServerAddr string
	Endpoint   string

	// Chain access
	RPCURL        string
	RPCTimeout    time.Duration
	SyncInterval  time.Duration

	// HTTP surface
	Port        int
	MetricsPort int

	// Storage
	StoragePath string

	// Submitter
	SquashWindow  time.Duration
	MaxPendingTxs int

	// Broadcaster
	SubscriberBuffer int
	SubscriberGrace  time.Duration

	// Recorder
	RecordsInMemory bool
	RecordsDir      string

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load reads configuration from the environment, with optional .env support.
func Load() (*Config, error) {
	// A missing .env file is not an error; deployments use real env vars.
	_ = godotenv.Load()

	cfg := &Config{
		Env:              Environment(getEnv("TRANSACTOR_ENV", string(Development))),
		ServerAddr:       getEnv("TRANSACTOR_SERVER_ADDR", ""),
		Endpoint:         getEnv("TRANSACTOR_ENDPOINT", "127.0.0.1:12003"),
		RPCURL:           getEnv("TRANSACTOR_RPC_URL", "http://127.0.0.1:12002"),
		RPCTimeout:       getEnvDuration("TRANSACTOR_RPC_TIMEOUT", 30*time.Second),
		SyncInterval:     getEnvDuration("TRANSACTOR_SYNC_INTERVAL", 5*time.Second),
		Port:             getEnvInt("TRANSACTOR_PORT", 12003),
		MetricsPort:      getEnvInt("TRANSACTOR_METRICS_PORT", 12013),
		StoragePath:      getEnv("TRANSACTOR_STORAGE_PATH", "data/checkpoints"),
		SquashWindow:     getEnvDuration("TRANSACTOR_SQUASH_WINDOW", 5*time.Second),
		MaxPendingTxs:    getEnvInt("TRANSACTOR_MAX_PENDING_TXS", 10),
		SubscriberBuffer: getEnvInt("TRANSACTOR_SUBSCRIBER_BUFFER", 64),
		SubscriberGrace:  getEnvDuration("TRANSACTOR_SUBSCRIBER_GRACE", 10*time.Second),
		RecordsInMemory:  getEnvBool("TRANSACTOR_RECORDS_IN_MEMORY", false),
		RecordsDir:       getEnv("TRANSACTOR_RECORDS_DIR", "records"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		LogOutput:        getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("TRANSACTOR_SERVER_ADDR is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("TRANSACTOR_RPC_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxPendingTxs <= 0 {
		return fmt.Errorf("TRANSACTOR_MAX_PENDING_TXS must be positive")
	}
	return nil
}

// IsProduction reports whether we run against a production ledger.
func (c *Config) IsProduction() bool {
	return c.Env == Production
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
