// Package config provides the configuration schema, loader, and provider
// registry for the memory service.
package config

// Config is the root configuration structure (spec.md §6 "Configuration").
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`

	VectorStore ProviderSection `yaml:"vector_store"`
	LLM         ProviderSection `yaml:"llm"`

	// LLMFallbacks are tried, in order, whenever the primary LLM's circuit
	// breaker is open or a call fails outright (internal/resilience).
	// Optional: an empty list means the primary LLM has no failover.
	LLMFallbacks []ProviderSection `yaml:"llm_fallbacks"`

	Embedder       ProviderSection  `yaml:"embedder"`
	SparseEmbedder *ProviderSection `yaml:"sparse_embedder"`
	Reranker       *RerankerSection `yaml:"reranker"`
	GraphStore     *ToggleSection   `yaml:"graph_store"`

	// Adjacent-layer sections the core forwards unread (spec.md §6): decoded
	// into raw maps so unknown structure never fails strict decoding, but
	// never interpreted by this package.
	AgentMemory       RawSection `yaml:"agent_memory"`
	IntelligentMemory RawSection `yaml:"intelligent_memory"`
	MemoryDecay       RawSection `yaml:"memory_decay"`
	Audit             RawSection `yaml:"audit"`
	Telemetry         RawSection `yaml:"telemetry"`
	Logging           RawSection `yaml:"logging"`
}

// ServerConfig holds network, logging, and auth settings for the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// APIKeys is the allow-list checked against the X-API-Key header. An empty
	// list disables auth entirely — every request passes (spec.md §6).
	APIKeys []string `yaml:"api_keys"`
}

// LogLevel is one of the four slog-compatible verbosity levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the known LogLevel values.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// ProviderSection is the common `{provider, config: {...}}` block shared by
// vector_store, llm, embedder, and sparse_embedder (spec.md §6).
type ProviderSection struct {
	// Provider selects the registered constructor (e.g., "postgres", "openai").
	Provider string `yaml:"provider"`

	Config ProviderConfig `yaml:"config"`
}

// ProviderConfig is the union of fields any provider kind may need. Each
// constructor reads only the fields relevant to it; unused fields are zero.
type ProviderConfig struct {
	// --- connection / storage ---
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	DBName             string `yaml:"db_name"`
	DSN                string `yaml:"dsn"`
	CollectionName     string `yaml:"collection_name"`
	EmbeddingModelDims int    `yaml:"embedding_model_dims"`
	IndexType          string `yaml:"index_type"`
	MetricType         string `yaml:"metric_type"`
	HybridSearch       bool   `yaml:"hybrid_search"`
	EnableNativeHybrid bool   `yaml:"enable_native_hybrid"`

	// --- LLM / embedder ---
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	TopP          float64 `yaml:"top_p"`
	TopK          int     `yaml:"top_k"`
	EmbeddingDims int     `yaml:"embedding_dims"`

	// Options holds anything not covered by the typed fields above.
	Options map[string]any `yaml:"options"`
}

// RerankerSection configures the optional Reranker Client (spec.md §4).
type RerankerSection struct {
	Enabled bool           `yaml:"enabled"`
	Provider string        `yaml:"provider"`
	Config   RerankerConfig `yaml:"config"`
}

// RerankerConfig holds the Reranker Client's connection parameters.
type RerankerConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	TopN   int    `yaml:"top_n"`
}

// ToggleSection is an `{enabled, provider, config}` block for an out-of-core,
// referenced-only dependency such as graph_store (spec.md §6).
type ToggleSection struct {
	Enabled  bool       `yaml:"enabled"`
	Provider string     `yaml:"provider"`
	Config   RawSection `yaml:"config"`
}

// RawSection is an adjacent-layer configuration block decoded into a generic
// map rather than a typed struct, because this package forwards it unread.
type RawSection map[string]any
