package memory

import (
	"context"
	"time"
)

// SortField is a column usable to order [Store.List] results.
type SortField string

const (
	SortByID        SortField = "id"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

// SortOrder is the direction applied with a [SortField].
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ListOptions configures [Store.List].
type ListOptions struct {
	Filter  Filter
	Limit   int
	Offset  int
	SortBy  SortField
	Order   SortOrder
}

// VectorSearchOptions configures [Store.VectorSearch].
type VectorSearchOptions struct {
	Filter    Filter
	K         int
	Threshold float64 // 0 disables thresholding
}

// FulltextSearchOptions configures [Store.FulltextSearch].
type FulltextSearchOptions struct {
	Filter Filter
	K      int
}

// SparseSearchOptions configures [Store.SparseSearch].
type SparseSearchOptions struct {
	Filter Filter
	K      int
}

// HybridWeights are the per-signal weights used by the fallback RRF fusion
// and (engine-permitting) passed through to the native fused call.
type HybridWeights struct {
	Dense    float64
	Fulltext float64
	Sparse   float64
}

// HybridSearchOptions configures [Store.HybridSearch].
type HybridSearchOptions struct {
	Filter    Filter
	K         int
	Threshold float64
	Weights   HybridWeights
	// Sparse is nil when the sparse signal is not requested.
	Sparse SparseVector
}

// Statistics is the result of [Store.Statistics].
type Statistics struct {
	Count int64
	// ByMemoryType counts records per MemoryType tag.
	ByMemoryType map[string]int64
	// ByAgeBucket counts records per coarse age bucket label
	// ("<1h", "<1d", "<7d", "<30d", ">=30d"), keyed by created_at.
	ByAgeBucket map[string]int64
}

// Store is the Storage Engine contract (spec §4.3). All operations accept a
// context for cancellation/deadline propagation; implementations must not
// suspend inside a transaction except storage-internal suspension.
type Store interface {
	// Insert persists a batch of records and returns their ids in order.
	// Rejects any record whose DenseEmbedding length does not equal the
	// collection's DenseDimension with [ErrDimensionMismatch], before any
	// write is attempted. Does not deduplicate; callers dedup via Hash.
	Insert(ctx context.Context, records []*MemoryRecord) ([]int64, error)

	// PointGet returns the record with the given id, or nil if absent or
	// not visible under the owner filter (spec invariant I5).
	PointGet(ctx context.Context, id int64, owner Owner) (*MemoryRecord, error)

	// List returns records matching opts.Filter, ordered per SortBy/Order
	// with a stable sort and nulls last.
	List(ctx context.Context, opts ListOptions) ([]*MemoryRecord, error)

	// VectorSearch returns the top-K records by dense similarity.
	VectorSearch(ctx context.Context, query []float32, opts VectorSearchOptions) ([]*MemoryRecord, error)

	// FulltextSearch returns the top-K records by text relevance.
	FulltextSearch(ctx context.Context, query string, opts FulltextSearchOptions) ([]*MemoryRecord, error)

	// SparseSearch returns the top-K records by sparse similarity. Callers
	// must first check Capabilities().SupportsSparse.
	SparseSearch(ctx context.Context, query SparseVector, opts SparseSearchOptions) ([]*MemoryRecord, error)

	// HybridSearch performs an engine-native fused dense+fulltext(+sparse)
	// query. Callers must first check Capabilities().SupportsNativeHybrid;
	// when it is false the caller (Hybrid Query Planner) falls back to
	// separate calls fused client-side.
	HybridSearch(ctx context.Context, dense []float32, text string, opts HybridSearchOptions) ([]*MemoryRecord, error)

	// Update applies a partial update. A non-empty newContent recomputes
	// Hash, DenseEmbedding (via embedding argument) and UpdatedAt
	// atomically (spec invariant I3); metadata, when non-nil, replaces the
	// stored metadata map wholesale.
	Update(ctx context.Context, id int64, newContent string, newEmbedding []float32, metadata map[string]any, owner Owner) (*MemoryRecord, error)

	// Delete hard-deletes a record from all secondary indices.
	Delete(ctx context.Context, id int64, owner Owner) error

	// DeleteByFilter bulk-deletes every record matching filter and returns
	// the count removed.
	DeleteByFilter(ctx context.Context, filter Filter) (int64, error)

	// Statistics returns aggregate counts, optionally restricted by filter.
	Statistics(ctx context.Context, filter Filter) (Statistics, error)

	// Capabilities reports the collection properties this store instance
	// is backed by (used by the Hybrid Query Planner's eligibility check).
	Capabilities() Collection

	// Reset drops and recreates the collection (administrative).
	Reset(ctx context.Context) error

	// Close releases pooled resources.
	Close() error
}

// now is overridable in tests that need deterministic timestamps.
var now = time.Now
