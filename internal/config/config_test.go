package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Chunking.Window != 1000 || cfg.Chunking.Overlap != 200 {
		t.Errorf("chunking defaults = %d/%d, want 1000/200", cfg.Chunking.Window, cfg.Chunking.Overlap)
	}
	if cfg.Memory.Capacity != 3 {
		t.Errorf("memory capacity = %d, want 3", cfg.Memory.Capacity)
	}
	if cfg.Context.Budget != 6000 {
		t.Errorf("context budget = %d, want 6000", cfg.Context.Budget)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("store backend = %q, want sqlite", cfg.Store.Backend)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
chunking:
  window: 500
  overlap: 100
retrieval:
  top_k: 10
store:
  backend: qdrant
  addr: localhost:6334
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Chunking.Window != 500 {
		t.Errorf("window = %d, want 500", cfg.Chunking.Window)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("top_k = %d, want 10", cfg.Retrieval.TopK)
	}
	if cfg.Store.Backend != "qdrant" || cfg.Store.Addr != "localhost:6334" {
		t.Errorf("store = %+v", cfg.Store)
	}
	// Values the file does not set keep their defaults.
	if cfg.Memory.Capacity != 3 {
		t.Errorf("memory capacity = %d, want default 3", cfg.Memory.Capacity)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DATACHAT_LLM_PROVIDER", "openai")
	t.Setenv("DATACHAT_LLM_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("llm provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("llm api key not picked up from environment")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals window", func(c *Config) { c.Chunking.Overlap = c.Chunking.Window }},
		{"overlap exceeds window", func(c *Config) { c.Chunking.Overlap = c.Chunking.Window + 1 }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"zero window", func(c *Config) { c.Chunking.Window = 0 }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"zero budget", func(c *Config) { c.Context.Budget = 0 }},
		{"threshold above one", func(c *Config) { c.Context.DedupThreshold = 1.5 }},
		{"zero memory capacity", func(c *Config) { c.Memory.Capacity = 0 }},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "claude" }},
		{"unknown store backend", func(c *Config) { c.Store.Backend = "redis" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, entities.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
