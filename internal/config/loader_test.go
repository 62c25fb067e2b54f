package config_test

import (
	"testing"

	"github.com/powermem-ai/powermem/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		VectorStore: config.ProviderSection{Provider: "postgres", Config: config.ProviderConfig{EmbeddingModelDims: 1536}},
		LLM:         config.ProviderSection{Provider: "openai"},
		Embedder:    config.ProviderSection{Provider: "openai", Config: config.ProviderConfig{EmbeddingDims: 1536}},
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	if err := config.Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "bananas"
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
}

func TestValidate_SparseEmbedderRequiresProvider(t *testing.T) {
	cfg := validConfig()
	cfg.SparseEmbedder = &config.ProviderSection{}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected validation error for sparse_embedder without provider")
	}
}

func TestValidate_DisabledRerankerWithoutProviderIsOK(t *testing.T) {
	cfg := validConfig()
	cfg.Reranker = &config.RerankerSection{Enabled: false}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_LLMFallbackRequiresProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLMFallbacks = []config.ProviderSection{{Provider: "anyllm"}, {}}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected validation error for llm_fallbacks entry without provider")
	}
}

func TestValidate_NegativeTopNFails(t *testing.T) {
	cfg := validConfig()
	cfg.Reranker = &config.RerankerSection{
		Enabled:  true,
		Provider: "openai",
		Config:   config.RerankerConfig{TopN: -1},
	}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected validation error for negative top_n")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected error for non-existent file")
	}
}
