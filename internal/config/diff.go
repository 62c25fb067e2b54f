package config

import "slices"

// ConfigDiff describes what changed between two configs. Only fields that
// are safe to react to without a process restart are tracked; provider
// identity changes (vector_store/llm/embedder/reranker) require the caller
// to re-run provider construction through the [Registry].
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	APIKeysChanged bool

	VectorStoreProviderChanged bool
	LLMProviderChanged         bool
	EmbedderProviderChanged    bool
	SparseEmbedderChanged      bool
	RerankerChanged            bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !slices.Equal(old.Server.APIKeys, new.Server.APIKeys) {
		d.APIKeysChanged = true
	}

	if old.VectorStore.Provider != new.VectorStore.Provider {
		d.VectorStoreProviderChanged = true
	}
	if old.LLM.Provider != new.LLM.Provider {
		d.LLMProviderChanged = true
	}
	if old.Embedder.Provider != new.Embedder.Provider {
		d.EmbedderProviderChanged = true
	}
	if sparseProviderName(old) != sparseProviderName(new) {
		d.SparseEmbedderChanged = true
	}
	if rerankerIdentity(old) != rerankerIdentity(new) {
		d.RerankerChanged = true
	}

	return d
}

func sparseProviderName(c *Config) string {
	if c.SparseEmbedder == nil {
		return ""
	}
	return c.SparseEmbedder.Provider
}

func rerankerIdentity(c *Config) string {
	if c.Reranker == nil || !c.Reranker.Enabled {
		return ""
	}
	return c.Reranker.Provider
}
