package config_test

import (
	"testing"

	"github.com/powermem-ai/powermem/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	c := validConfig()
	d := config.Diff(c, c)
	if d.LogLevelChanged || d.APIKeysChanged || d.VectorStoreProviderChanged ||
		d.LLMProviderChanged || d.EmbedderProviderChanged || d.SparseEmbedderChanged || d.RerankerChanged {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := validConfig()
	old.Server.LogLevel = config.LogLevelInfo
	new := validConfig()
	new.Server.LogLevel = config.LogLevelDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_APIKeysChanged(t *testing.T) {
	t.Parallel()
	old := validConfig()
	old.Server.APIKeys = []string{"k1"}
	new := validConfig()
	new.Server.APIKeys = []string{"k1", "k2"}

	d := config.Diff(old, new)
	if !d.APIKeysChanged {
		t.Error("expected APIKeysChanged=true")
	}
}

func TestDiff_VectorStoreProviderChanged(t *testing.T) {
	t.Parallel()
	old := validConfig()
	new := validConfig()
	new.VectorStore.Provider = "other"

	d := config.Diff(old, new)
	if !d.VectorStoreProviderChanged {
		t.Error("expected VectorStoreProviderChanged=true")
	}
}

func TestDiff_SparseEmbedderAdded(t *testing.T) {
	t.Parallel()
	old := validConfig()
	new := validConfig()
	new.SparseEmbedder = &config.ProviderSection{Provider: "openai"}

	d := config.Diff(old, new)
	if !d.SparseEmbedderChanged {
		t.Error("expected SparseEmbedderChanged=true")
	}
}

func TestDiff_RerankerToggledOffIsNotAChangeInIdentity(t *testing.T) {
	t.Parallel()
	old := validConfig()
	old.Reranker = &config.RerankerSection{Enabled: false, Provider: "openai"}
	new := validConfig()
	new.Reranker = &config.RerankerSection{Enabled: false, Provider: "different"}

	d := config.Diff(old, new)
	if d.RerankerChanged {
		t.Error("expected RerankerChanged=false when reranker stays disabled regardless of provider field")
	}
}

func TestDiff_RerankerEnabled(t *testing.T) {
	t.Parallel()
	old := validConfig()
	old.Reranker = &config.RerankerSection{Enabled: false, Provider: "openai"}
	new := validConfig()
	new.Reranker = &config.RerankerSection{Enabled: true, Provider: "openai"}

	d := config.Diff(old, new)
	if !d.RerankerChanged {
		t.Error("expected RerankerChanged=true when reranker becomes enabled")
	}
}
