// Package memory defines the storage contract for the long-term memory
// service: the MemoryRecord data model, the Collection properties a backend
// must expose, the filter DSL, and the Store interface every backend
// (Postgres/pgvector, in-memory mock, …) must implement.
//
// Every implementation must be safe for concurrent use.
package memory

import "time"

// Scope controls cross-identity visibility of a MemoryRecord.
type Scope string

const (
	// ScopePrivate is visible only to the exact owner tuple that created it.
	ScopePrivate Scope = "PRIVATE"
	// ScopeAgentGroup is visible to any identity sharing the same agent_id.
	ScopeAgentGroup Scope = "AGENT_GROUP"
	// ScopeUserGroup is visible to any identity sharing the same user_id.
	ScopeUserGroup Scope = "USER_GROUP"
	// ScopePublic is visible regardless of owner.
	ScopePublic Scope = "PUBLIC"
)

// Valid reports whether s is one of the known scope values.
func (s Scope) Valid() bool {
	switch s {
	case ScopePrivate, ScopeAgentGroup, ScopeUserGroup, ScopePublic:
		return true
	default:
		return false
	}
}

// Owner is the identity tuple a MemoryRecord belongs to. Any field may be
// empty; at least one must be set unless the record's Scope is ScopePublic.
type Owner struct {
	UserID  string
	AgentID string
	RunID   string
	ActorID string
}

// Empty reports whether every field of the owner tuple is unset.
func (o Owner) Empty() bool {
	return o.UserID == "" && o.AgentID == "" && o.RunID == "" && o.ActorID == ""
}

// SparseVector is a mapping from token id to weight, used alongside the dense
// embedding for lexical-aware similarity (hybrid search).
type SparseVector map[int]float64

// MemoryRecord is the atomic unit persisted by the Storage Engine.
type MemoryRecord struct {
	// ID is a 64-bit, globally unique, monotonic-per-process identifier.
	// Never reused after delete.
	ID int64

	// Content is the fact text as stored.
	Content string

	// Hash is a 128-bit digest (hex-encoded, 32 chars) of the normalized
	// content (lowercased, collapsed whitespace). Primary dedup key.
	Hash string

	// DenseEmbedding is the fixed-dimension vector; its length must equal
	// the owning Collection's DenseDimension.
	DenseEmbedding []float32

	// SparseEmbedding is present iff the collection and backend both
	// support sparse vectors.
	SparseEmbedding SparseVector

	Owner Owner
	Scope Scope

	// Category / MemoryType are short enum-like tags for filtering
	// (e.g. working / short_term / long_term).
	Category   string
	MemoryType string

	// Metadata is an arbitrary JSON map, queryable only via metadata-path
	// filters (never on the native hybrid fast path — see [Filter] and
	// [ColumnFields]).
	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time

	// Score is populated on search results only; it is not a persisted column.
	Score float64
}

// DistanceMetric is the similarity measure a collection's dense index uses.
type DistanceMetric string

const (
	MetricCosine       DistanceMetric = "cosine"
	MetricL2           DistanceMetric = "l2"
	MetricInnerProduct DistanceMetric = "ip"
)

// Collection describes the physical table a Store operates over.
type Collection struct {
	Name string

	DenseDimension int
	Metric         DistanceMetric

	// FulltextParser names the text-search configuration used for the
	// fulltext index (backend-specific, e.g. postgres "english").
	FulltextParser string

	SupportsSparse       bool
	SupportsNativeHybrid bool

	// HNSWM / HNSWEfConstruction / HNSWEfSearch are backend-specific index
	// tuning parameters; zero means "use the backend default".
	HNSWM              int
	HNSWEfConstruction int
	HNSWEfSearch       int
}
