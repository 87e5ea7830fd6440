// Package config loads the stepflowd daemon configuration from YAML.
//
// Values may reference environment variables (${VAR}); they are expanded
// before parsing. A small set of STEPFLOW_* variables overrides the parsed
// values afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/stepflow/logging"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "STEPFLOW"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreNATS   = "nats"
)

// Model providers.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Engine  EngineConfig  `yaml:"engine"`
	Runner  RunnerConfig  `yaml:"runner"`
	Store   StoreConfig   `yaml:"store"`
	Flows   FlowsConfig   `yaml:"flows"`
	Models  []ModelConfig `yaml:"models"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// EngineConfig mirrors engine.Config.
type EngineConfig struct {
	MaxConcurrentExecutions int           `yaml:"max_concurrent_executions"`
	NodeTimeout             time.Duration `yaml:"node_timeout"`
	MaxModelCalls           int           `yaml:"max_model_calls"`
}

// RunnerConfig configures submission handling.
type RunnerConfig struct {
	MaxConflictRetries int  `yaml:"max_conflict_retries"`
	AllowRevisit       bool `yaml:"allow_revisit"`
}

// StoreConfig selects the order store.
type StoreConfig struct {
	Driver string     `yaml:"driver"`
	NATS   NATSConfig `yaml:"nats"`
}

// NATSConfig configures the JetStream key-value store.
type NATSConfig struct {
	URL     string        `yaml:"url"`
	Bucket  string        `yaml:"bucket"`
	History uint8         `yaml:"history"`
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// FlowsConfig locates flow definitions.
type FlowsConfig struct {
	Dir string `yaml:"dir"`
}

// ModelConfig declares a model available to flow definitions under Name.
type ModelConfig struct {
	Name        string  `yaml:"name"`
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used for unset values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			MaxConcurrentExecutions: 64,
			NodeTimeout:             30 * time.Second,
			MaxModelCalls:           3,
		},
		Runner: RunnerConfig{
			MaxConflictRetries: 3,
		},
		Store: StoreConfig{
			Driver: StoreMemory,
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Bucket:  "stepflow_orders",
				History: 5,
				Timeout: 5 * time.Second,
			},
		},
		Flows: FlowsConfig{
			Dir: "flows",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Parse expands environment variables in data, decodes it over the
// defaults, applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if val := os.Getenv(EnvPrefix + "_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv(EnvPrefix + "_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv(EnvPrefix + "_STORE_DRIVER"); val != "" {
		c.Store.Driver = val
	}
	if val := os.Getenv(EnvPrefix + "_NATS_URL"); val != "" {
		c.Store.NATS.URL = val
	}
	if val := os.Getenv(EnvPrefix + "_FLOWS_DIR"); val != "" {
		c.Flows.Dir = val
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}

	if c.Engine.MaxConcurrentExecutions < 0 || c.Engine.MaxModelCalls < 0 || c.Engine.NodeTimeout < 0 {
		return errors.New("engine limits must not be negative")
	}

	if c.Runner.MaxConflictRetries < 0 {
		return errors.New("runner.max_conflict_retries must not be negative")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreNATS:
		if c.Store.NATS.URL == "" {
			return errors.New("store.nats.url is required for the nats driver")
		}
		if c.Store.NATS.Bucket == "" {
			return errors.New("store.nats.bucket is required for the nats driver")
		}
	default:
		return fmt.Errorf("store.driver %q must be %s or %s", c.Store.Driver, StoreMemory, StoreNATS)
	}

	if c.Flows.Dir == "" {
		return errors.New("flows.dir is required")
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d].name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("models[%d]: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = true

		switch m.Provider {
		case ProviderMock:
		case ProviderOpenAI, ProviderAnthropic:
			if m.Model == "" {
				return fmt.Errorf("model %s: model is required for provider %s", m.Name, m.Provider)
			}
		default:
			return fmt.Errorf("model %s: unknown provider %q", m.Name, m.Provider)
		}
	}

	return nil
}
