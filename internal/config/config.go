// Package config loads snippetd configuration from YAML and environment
// variables.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/snippetd/internal/embeddings"
	"github.com/fyrsmithlabs/snippetd/internal/extraction"
	"github.com/fyrsmithlabs/snippetd/internal/jobstatus"
	"github.com/fyrsmithlabs/snippetd/internal/loader"
	"github.com/fyrsmithlabs/snippetd/internal/logging"
	"github.com/fyrsmithlabs/snippetd/internal/queue"
	"github.com/fyrsmithlabs/snippetd/internal/telemetry"
	"github.com/fyrsmithlabs/snippetd/internal/vectorstore"
	"github.com/fyrsmithlabs/snippetd/internal/worker"
)

const (
	// envPrefix namespaces snippetd environment overrides.
	envPrefix = "SNIPPETD_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Config aggregates every component's settings.
type Config struct {
	Logging     logging.Config     `koanf:"logging"`
	Loader      loader.Options     `koanf:"loader"`
	Extraction  extraction.Config  `koanf:"extraction"`
	Embeddings  embeddings.Config  `koanf:"embeddings"`
	VectorStore vectorstore.Config `koanf:"vectorstore"`
	Queue       queue.Config       `koanf:"queue"`
	JobStatus   jobstatus.Config   `koanf:"jobstatus"`
	Worker      worker.Config      `koanf:"worker"`
	Telemetry   telemetry.Config   `koanf:"telemetry"`
}

// ApplyDefaults fills unset fields across all sections.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	c.Embeddings.ApplyDefaults()
	c.VectorStore.ApplyDefaults()
	c.Queue.ApplyDefaults()
	c.JobStatus.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
}

// Validate checks cross-section invariants.
func (c Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Embeddings.Validate(); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("worker: concurrency cannot be negative")
	}
	return nil
}

// DefaultPath returns ~/.config/snippetd/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "snippetd", "config.yaml"), nil
}

// Load reads configuration with the precedence (highest first):
// environment variables, YAML file, defaults. An empty configPath uses
// DefaultPath; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	// SNIPPETD_VECTORSTORE_HOST -> vectorstore.host
	// SNIPPETD_EXTRACTION_API_KEY -> extraction.api_key
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
