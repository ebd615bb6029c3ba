package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for taskmesh.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"TASKMESH_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"TASKMESH_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage configuration
	Storage StorageConfig

	// Redis configuration, used when the storage backend or event bus
	// runs on Redis
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	ShutdownTimeout time.Duration `env:"TASKMESH_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// StorageConfig selects and configures the workflow store backend.
type StorageConfig struct {
	Backend     string        `env:"TASKMESH_STORAGE_BACKEND" envDefault:"memory"`
	WorkflowDir string        `env:"TASKMESH_WORKFLOW_DIR" envDefault:"./workflows"`
	TTL         time.Duration `env:"TASKMESH_WORKFLOW_TTL" envDefault:"0"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`

	DefaultModel       string  `env:"LLM_DEFAULT_MODEL"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int     `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// SchedulerConfig holds workflow execution configuration.
type SchedulerConfig struct {
	TaskTimeout       time.Duration `env:"TASKMESH_TASK_TIMEOUT" envDefault:"300s"`
	WorkflowTimeout   time.Duration `env:"TASKMESH_WORKFLOW_TIMEOUT" envDefault:"3600s"`
	ParallelExecution bool          `env:"TASKMESH_PARALLEL_EXECUTION" envDefault:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	switch c.Storage.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, file, or redis)", c.Storage.Backend)
	}
	if c.Storage.Backend == "file" && c.Storage.WorkflowDir == "" {
		return fmt.Errorf("workflow directory is required for the file backend")
	}
	if c.Storage.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for the redis backend")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}
	if c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	if c.Scheduler.TaskTimeout <= 0 {
		return fmt.Errorf("task timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
