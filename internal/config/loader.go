package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found (a *ConfigError class
// per spec.md §7: non-retriable, startup-only).
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.VectorStore.Provider == "" {
		errs = append(errs, errors.New("vector_store.provider is required"))
	}
	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	}
	if cfg.Embedder.Provider == "" {
		errs = append(errs, errors.New("embedder.provider is required"))
	}
	if cfg.Embedder.Config.EmbeddingDims <= 0 {
		errs = append(errs, errors.New("embedder.config.embedding_dims must be > 0"))
	}
	if cfg.VectorStore.Config.EmbeddingModelDims > 0 &&
		cfg.Embedder.Config.EmbeddingDims > 0 &&
		cfg.VectorStore.Config.EmbeddingModelDims != cfg.Embedder.Config.EmbeddingDims {
		errs = append(errs, fmt.Errorf(
			"vector_store.config.embedding_model_dims (%d) does not match embedder.config.embedding_dims (%d)",
			cfg.VectorStore.Config.EmbeddingModelDims, cfg.Embedder.Config.EmbeddingDims))
	}

	if cfg.SparseEmbedder != nil && cfg.SparseEmbedder.Provider == "" {
		errs = append(errs, errors.New("sparse_embedder.provider is required when sparse_embedder is present"))
	}

	for i, fb := range cfg.LLMFallbacks {
		if fb.Provider == "" {
			errs = append(errs, fmt.Errorf("llm_fallbacks[%d].provider is required", i))
		}
	}

	if cfg.Reranker != nil && cfg.Reranker.Enabled && cfg.Reranker.Provider == "" {
		errs = append(errs, errors.New("reranker.provider is required when reranker.enabled is true"))
	}
	if cfg.Reranker != nil && cfg.Reranker.Enabled && cfg.Reranker.Config.TopN < 0 {
		errs = append(errs, errors.New("reranker.config.top_n must be >= 0"))
	}

	if cfg.GraphStore != nil && cfg.GraphStore.Enabled {
		slog.Warn("graph_store.enabled is true but the graph store is out-of-core in this build; section is forwarded unread")
	}

	return errors.Join(errs...)
}
