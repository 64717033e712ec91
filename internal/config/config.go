package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic application identity.
type AppInfo struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// LoggerConfig sets the log level ("debug", "info", "warn", "error").
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig sets the HTTP listen address.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// MilvusConfig holds the connection settings of the Milvus index.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
	Dim        int    `yaml:"dim"`
}

// VectorStoreConfig selects the vector index backend. Driver is "milvus" or
// "memory" (non-durable, for local runs and tests).
type VectorStoreConfig struct {
	Driver string       `yaml:"driver"`
	Milvus MilvusConfig `yaml:"milvus"`
}

// EmbeddingConfig selects the embedding provider: "openai", "ollama", or
// "huggingface". Credentials come from the environment, never from this
// file.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"baseURL"`
}

// LLMConfig sets the default model key; the registry of available models
// is fixed in code.
type LLMConfig struct {
	DefaultModel string `yaml:"defaultModel"`
}

// StorageConfig locates the local state files and sample documents.
type StorageConfig struct {
	LedgerPath     string `yaml:"ledgerPath"`
	RateWindowPath string `yaml:"rateWindowPath"`
	SamplesDir     string `yaml:"samplesDir"`
}

// RateLimitConfig bounds queries per trailing window. The window is shared
// by all sessions.
type RateLimitConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Logger      LoggerConfig      `yaml:"logger"`
	Server      ServerConfig      `yaml:"server"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Storage     StorageConfig     `yaml:"storage"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
}

// LoadConfig reads and parses the YAML configuration at path, filling in
// defaults for anything left unset.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration suitable for a local run with no file.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "docpilot"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.VectorStore.Driver == "" {
		c.VectorStore.Driver = "milvus"
	}
	if c.VectorStore.Milvus.Address == "" {
		c.VectorStore.Milvus.Address = "localhost:19530"
	}
	if c.VectorStore.Milvus.Collection == "" {
		c.VectorStore.Milvus.Collection = "docpilot_chunks"
	}
	if c.VectorStore.Milvus.Dim == 0 {
		c.VectorStore.Milvus.Dim = 384
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "gpt-oss-120b"
	}
	if c.Storage.LedgerPath == "" {
		c.Storage.LedgerPath = "data/document_ledger.json"
	}
	if c.Storage.RateWindowPath == "" {
		c.Storage.RateWindowPath = "data/rate_window.json"
	}
	if c.Storage.SamplesDir == "" {
		c.Storage.SamplesDir = "data/samples"
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 10
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1h"
	}
}

// RateWindow parses the configured rate window duration.
func (c *AppConfig) RateWindow() (time.Duration, error) {
	d, err := time.ParseDuration(c.RateLimit.Window)
	if err != nil {
		return 0, fmt.Errorf("invalid rate limit window %q: %w", c.RateLimit.Window, err)
	}
	return d, nil
}
