// Package config provides configuration handling for agentflow.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Redis configuration for checkpoints and approvals
	Redis RedisConfig `json:"redis"`

	// Storage configuration for workflow definitions
	Storage StorageConfig `json:"storage"`

	// Workflows configuration
	Workflows WorkflowsConfig `json:"workflows"`

	// Worker configuration for task delegation
	Worker WorkerConfig `json:"worker"`

	// Retention configuration for checkpoint cleanup
	Retention RetentionConfig `json:"retention"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	// Addr is the host:port of the Redis server
	Addr string `json:"addr"`

	// Password for the Redis server
	Password string `json:"password"`

	// DB index to use
	DB int `json:"db"`
}

// StorageConfig contains workflow definition storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "postgres"

	// Postgres configuration
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// WorkflowsConfig contains workflow definition loading settings
type WorkflowsConfig struct {
	// Directory of YAML workflow definitions loaded at startup
	Directory string `json:"directory"`

	// AgentCatalog is the path to the YAML agent catalog
	AgentCatalog string `json:"agent_catalog"`
}

// WorkerConfig contains task delegation settings
type WorkerConfig struct {
	// Endpoint is the worker agent HTTP endpoint
	Endpoint string `json:"endpoint"`
}

// RetentionConfig contains checkpoint retention settings
type RetentionConfig struct {
	// Window is how long checkpoints are kept without being re-saved
	Window time.Duration `json:"window"`

	// CleanupSchedule is a cron expression for the retention job
	CleanupSchedule string `json:"cleanup_schedule"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format"` // "json", "console"
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()
	return config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "agentflow",
				User:     "agentflow",
				SSLMode:  "disable",
			},
		},
		Workflows: WorkflowsConfig{
			Directory: "./workflows",
		},
		Retention: RetentionConfig{
			Window:          7 * 24 * time.Hour,
			CleanupSchedule: "0 0 * * * *", // hourly, with seconds field
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides lets environment variables override file values for
// the settings that differ between deployments
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("AGENTFLOW_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if password := os.Getenv("AGENTFLOW_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if endpoint := os.Getenv("AGENTFLOW_WORKER_ENDPOINT"); endpoint != "" {
		c.Worker.Endpoint = endpoint
	}
	if port := os.Getenv("AGENTFLOW_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			c.Server.Port = parsed
		}
	}
	if password := os.Getenv("AGENTFLOW_POSTGRES_PASSWORD"); password != "" {
		c.Storage.Postgres.Password = password
	}
}
