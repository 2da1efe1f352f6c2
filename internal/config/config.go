// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/usecases"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Context   ContextConfig   `mapstructure:"context"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Embedding ProviderConfig  `mapstructure:"embedding"`
	LLM       ProviderConfig  `mapstructure:"llm"`
	Store     StoreConfig     `mapstructure:"store"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type ChunkingConfig struct {
	Window  int `mapstructure:"window"`
	Overlap int `mapstructure:"overlap"`
}

type RetrievalConfig struct {
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`
}

type ContextConfig struct {
	Budget         int     `mapstructure:"budget"`
	DedupThreshold float64 `mapstructure:"dedup_threshold"`
	HistoryTurns   int     `mapstructure:"history_turns"`
}

type MemoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ProviderConfig selects and configures a model backend. Provider is
// "ollama" or "openai".
type ProviderConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

// StoreConfig selects the vector store backend: "sqlite", "qdrant" or
// "memory". Path is the sqlite data directory; Addr, Collection and
// Dimension apply to qdrant.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	Path       string `mapstructure:"path"`
	Addr       string `mapstructure:"addr"`
	Collection string `mapstructure:"collection"`
	Dimension  int    `mapstructure:"dimension"`
}

type DocumentsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		Chunking:  ChunkingConfig{Window: usecases.DefaultChunkWindow, Overlap: usecases.DefaultChunkOverlap},
		Retrieval: RetrievalConfig{TopK: 5, MinScore: 0.25},
		Context: ContextConfig{
			Budget:         usecases.DefaultContextBudget,
			DedupThreshold: usecases.DefaultDedupThreshold,
			HistoryTurns:   usecases.DefaultMemoryCapacity,
		},
		Memory:    MemoryConfig{Capacity: usecases.DefaultMemoryCapacity},
		Embedding: ProviderConfig{Provider: "ollama", Model: "nomic-embed-text", BaseURL: "http://localhost:11434"},
		LLM:       ProviderConfig{Provider: "ollama", Model: "llama3.2", BaseURL: "http://localhost:11434"},
		Store:     StoreConfig{Backend: "sqlite", Path: "data", Collection: "datachat", Dimension: 768},
		Documents: DocumentsConfig{Dir: "documents", Watch: false},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.Window <= 0 {
		return fmt.Errorf("%w: chunk window must be positive, got %d", entities.ErrInvalidConfig, c.Chunking.Window)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", entities.ErrInvalidConfig, c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Window {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than window %d", entities.ErrInvalidConfig, c.Chunking.Overlap, c.Chunking.Window)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", entities.ErrInvalidConfig, c.Retrieval.TopK)
	}
	if c.Context.Budget <= 0 {
		return fmt.Errorf("%w: context budget must be positive, got %d", entities.ErrInvalidConfig, c.Context.Budget)
	}
	if c.Context.DedupThreshold < 0 || c.Context.DedupThreshold > 1 {
		return fmt.Errorf("%w: dedup threshold must be in [0, 1], got %g", entities.ErrInvalidConfig, c.Context.DedupThreshold)
	}
	if c.Memory.Capacity <= 0 {
		return fmt.Errorf("%w: memory capacity must be positive, got %d", entities.ErrInvalidConfig, c.Memory.Capacity)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", entities.ErrInvalidConfig, c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", entities.ErrInvalidConfig, c.LLM.Provider)
	}
	switch c.Store.Backend {
	case "sqlite", "qdrant", "memory":
	default:
		return fmt.Errorf("%w: unknown store backend %q", entities.ErrInvalidConfig, c.Store.Backend)
	}
	return nil
}

// Load reads configuration from an optional file and DATACHAT_*
// environment variables, layered over defaults. An empty path loads
// defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DATACHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("chunking.window", defaults.Chunking.Window)
	v.SetDefault("chunking.overlap", defaults.Chunking.Overlap)
	v.SetDefault("retrieval.top_k", defaults.Retrieval.TopK)
	v.SetDefault("retrieval.min_score", defaults.Retrieval.MinScore)
	v.SetDefault("context.budget", defaults.Context.Budget)
	v.SetDefault("context.dedup_threshold", defaults.Context.DedupThreshold)
	v.SetDefault("context.history_turns", defaults.Context.HistoryTurns)
	v.SetDefault("memory.capacity", defaults.Memory.Capacity)
	v.SetDefault("embedding.provider", defaults.Embedding.Provider)
	v.SetDefault("embedding.model", defaults.Embedding.Model)
	v.SetDefault("embedding.base_url", defaults.Embedding.BaseURL)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("llm.provider", defaults.LLM.Provider)
	v.SetDefault("llm.model", defaults.LLM.Model)
	v.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("store.backend", defaults.Store.Backend)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.addr", defaults.Store.Addr)
	v.SetDefault("store.collection", defaults.Store.Collection)
	v.SetDefault("store.dimension", defaults.Store.Dimension)
	v.SetDefault("documents.dir", defaults.Documents.Dir)
	v.SetDefault("documents.watch", defaults.Documents.Watch)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
