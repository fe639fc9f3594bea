// Package config resolves the process configuration from the environment.
// How a deployment chooses to populate the environment (.env file, shell,
// container runtime) is not this package's concern; it produces the resolved
// record the rest of the program consumes.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the resolved configuration for the CLI.
type Config struct {
	// Ollama backend endpoint and model.
	OllamaHost    string `envconfig:"OLLAMA_HOST" default:"localhost"`
	OllamaPort    int    `envconfig:"OLLAMA_PORT" default:"11434"`
	OllamaModel   string `envconfig:"OLLAMA_MODEL" default:"gemma3"`
	OllamaEnabled bool   `envconfig:"OLLAMA_ENABLED" default:"false"`

	// Turn behavior.
	MaxToolRounds  int `envconfig:"MAX_TOOL_ROUNDS" default:"1"`  // rounds of tool execution per turn
	RequestTimeout int `envconfig:"REQUEST_TIMEOUT" default:"120"` // seconds per generate call

	// Observability.
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricsPort    int    `envconfig:"METRICS_PORT" default:"9090"`
}

// Load reads configuration from the environment, first merging in a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads configuration directly from environment variables,
// skipping .env lookup (useful for containerized deployments and tests).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.OllamaHost == "" {
		return fmt.Errorf("OLLAMA_HOST cannot be empty")
	}
	if c.OllamaPort < 1 || c.OllamaPort > 65535 {
		return fmt.Errorf("OLLAMA_PORT %d is out of range", c.OllamaPort)
	}
	if c.OllamaModel == "" {
		return fmt.Errorf("OLLAMA_MODEL cannot be empty")
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("MAX_TOOL_ROUNDS must be at least 1")
	}
	if c.RequestTimeout < 1 {
		return fmt.Errorf("REQUEST_TIMEOUT must be at least 1 second")
	}
	return nil
}
