package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipelines.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Query     QueryConfig     `yaml:"query"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkingConfig controls the sliding character window.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "gemini", "openai", "ollama", "mock"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"` // environment variable holding the API key
	BaseURL   string `yaml:"base_url"`    // for ollama / OpenAI-compatible servers
	Dimension int    `yaml:"dimension"`
}

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "qdrant", "bolt", "memory"
	URL        string `yaml:"url"`     // qdrant only
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
}

// LLMConfig selects and configures the answer generator.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "gemini", "openai", "ollama"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

// QueryConfig holds retrieval and wait settings.
type QueryConfig struct {
	TopK        int      `yaml:"top_k"`
	WaitTimeout Duration `yaml:"wait_timeout"`
}

// Duration is a time.Duration that round-trips through YAML as a string
// like "30s" or "2m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// IngestConfig holds file discovery settings for directory ingestion.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:  "gemini",
			Model:     "text-embedding-004",
			APIKeyEnv: "GEMINI_API_KEY",
			Dimension: 768,
		},
		Store: StoreConfig{
			Backend:    "qdrant",
			URL:        "http://localhost:6333",
			APIKeyEnv:  "QDRANT_API_KEY",
			Collection: "docs",
		},
		LLM: LLMConfig{
			Provider:  "gemini",
			Model:     "gemini-1.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Query: QueryConfig{
			TopK:        5,
			WaitTimeout: Duration(time.Minute),
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.txt", "**/*.md"},
			Excludes: []string{"**/node_modules/**", "**/vendor/**", "**/.git/**"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate rejects settings the pipelines could not run with.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive, got %d", c.Query.TopK)
	}
	if c.Query.WaitTimeout <= 0 {
		return fmt.Errorf("query.wait_timeout must be positive, got %s", c.Query.WaitTimeout)
	}
	return nil
}

// APIKey resolves the embedding provider's API key from the environment.
func (e EmbeddingConfig) APIKey() string { return os.Getenv(e.APIKeyEnv) }

// APIKey resolves the store's API key from the environment.
func (s StoreConfig) APIKey() string { return os.Getenv(s.APIKeyEnv) }

// APIKey resolves the generator's API key from the environment.
func (l LLMConfig) APIKey() string { return os.Getenv(l.APIKeyEnv) }

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory, trying ragflow.yaml and
// then .ragflow/config.yaml before falling back to defaults.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "ragflow.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".ragflow", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RunDBPath returns the path to the run history database.
func RunDBPath(dir string) string {
	return filepath.Join(dir, ".ragflow", "runs.db")
}

// VectorDBPath returns the path to the local vector database.
func VectorDBPath(dir string) string {
	return filepath.Join(dir, ".ragflow", "vectors.db")
}

// EnsureStateDir ensures the .ragflow directory exists.
func EnsureStateDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".ragflow"), 0755)
}
