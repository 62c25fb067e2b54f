// Package core implements the Memory Core (spec.md §4.7): the orchestrator
// that wires the Fact Extractor, Reconciler, Hybrid Query Planner, Storage
// Engine, and optional Reranker into the public memory-service operations
// (add/search/get/get_all/update/delete/delete_all/reset/get_statistics).
//
// The Core itself is stateless between calls — all durable state lives in
// the Storage Engine. Use functional options to inject test doubles for any
// subsystem.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/powermem-ai/powermem/internal/extract"
	"github.com/powermem-ai/powermem/internal/observe"
	"github.com/powermem-ai/powermem/internal/planner"
	"github.com/powermem-ai/powermem/internal/reconcile"
	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/idgen"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/provider/embeddings"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	"github.com/powermem-ai/powermem/pkg/provider/reranker"
	"github.com/powermem-ai/powermem/pkg/types"
)

// rerankMultiplier is the M in "call reranker with top M*limit" (spec.md §4.7).
const rerankMultiplier = 3

// defaultSearchLimit is used when a caller does not specify Limit.
const defaultSearchLimit = 10

// Core owns the provider handle set and orchestrates the public memory
// operations. Safe for concurrent use; all fields are set at construction
// and never mutated afterward.
type Core struct {
	store    memory.Store
	embedder embeddings.Provider
	llm      llm.Provider
	ids      *idgen.Generator
	rerank   reranker.Provider // nil when reranking is not configured
	metrics  *observe.Metrics
}

// Option configures a [Core] at construction time.
type Option func(*Core)

// WithReranker injects a reranker. When absent, search's rerank=true option
// is a no-op (spec.md §7: reranker unavailability degrades to skip-rerank).
func WithReranker(r reranker.Provider) Option {
	return func(c *Core) { c.rerank = r }
}

// WithMetrics overrides the telemetry sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Core) { c.metrics = m }
}

// New wires a Core from its required providers.
func New(store memory.Store, embedder embeddings.Provider, client llm.Provider, ids *idgen.Generator, opts ...Option) *Core {
	c := &Core{
		store:    store,
		embedder: embedder,
		llm:      client,
		ids:      ids,
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddRequest is the input to [Core.Add].
type AddRequest struct {
	Messages   []types.Message
	Owner      memory.Owner
	Metadata   map[string]any
	Scope      memory.Scope
	MemoryType string
	// Infer selects the extraction+reconcile path (true, default) versus a
	// direct single-record insert of the raw text (false).
	Infer bool
	// Text is used only when Infer is false: the raw content to embed and
	// insert verbatim.
	Text string
}

// AddResult is the outcome of [Core.Add]: the list of events applied (or
// would-have-been-applied, for the NONE/duplicate case), plus any non-fatal
// warning (spec.md §4.7: ExtractionError is a warning, not a failure).
type AddResult struct {
	Events  []reconcile.EventSummary
	Warning error
}

// Add implements the add() Core operation (spec.md §4.7).
func (c *Core) Add(ctx context.Context, req AddRequest) (AddResult, error) {
	ctx, span := observe.StartSpan(ctx, "core.Add", trace.WithAttributes(
		attribute.Bool("infer", req.Infer),
		attribute.String("scope", string(req.Scope)),
	))
	defer span.End()

	c.metrics.RecordAddRequested(ctx)

	scope := req.Scope
	if scope == "" {
		scope = memory.ScopePrivate
	}

	var (
		events  []reconcile.EventSummary
		warning error
	)

	if !req.Infer {
		summary, err := c.addDirect(ctx, req.Text, req.Owner, scope, req.MemoryType, req.Metadata)
		if err != nil {
			return AddResult{}, err
		}
		events = []reconcile.EventSummary{summary}
	} else {
		extraction := extract.Extract(ctx, c.llm, req.Messages, extract.Options{})
		if extraction.Warning != nil {
			observe.Logger(ctx).Warn("memory core: fact extraction gave up, no facts added", "error", extraction.Warning)
			warning = extraction.Warning
		}

		if len(extraction.Facts) > 0 {
			applied, err := reconcile.Reconcile(ctx, c.store, c.embedder, c.llm, c.ids, req.Owner, scope, extraction.Facts, reconcile.Options{})
			if err != nil {
				return AddResult{}, err // ReconcileError surfaces to the caller (spec.md §4.7)
			}
			events = applied
		}
	}

	for _, ev := range events {
		c.metrics.RecordAddCompleted(ctx, string(ev.Event))
		observe.Logger(ctx).Info("memory core: applied mutation", "id", ev.ID, "event", ev.Event, "reason", ev.Reason)
	}

	return AddResult{Events: events, Warning: warning}, nil
}

// addDirect implements the infer=false path: embed the raw text and insert
// it directly, performing the Core's own hash-dedup check since the
// Reconciler is bypassed (spec invariant P1 still applies).
func (c *Core) addDirect(ctx context.Context, text string, owner memory.Owner, scope memory.Scope, memoryType string, metadata map[string]any) (reconcile.EventSummary, error) {
	if text == "" {
		return reconcile.EventSummary{}, errs.ValidationError("add: text must not be empty")
	}

	hash := memory.NormalizedHash(text)
	existing, err := c.store.List(ctx, memory.ListOptions{
		Filter: memory.OwnerVisibilityFilter(owner),
	})
	if err != nil {
		return reconcile.EventSummary{}, errs.StorageError("add: dedup lookup failed", err)
	}
	for _, r := range existing {
		if r.Hash == hash {
			return reconcile.EventSummary{ID: r.ID, Event: reconcile.EventNone, MemoryText: text, Reason: "duplicate"}, nil
		}
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return reconcile.EventSummary{}, errs.ProviderError("add: embed failed", err)
	}

	now := time.Now()
	record := &memory.MemoryRecord{
		ID:             c.ids.Next(),
		Content:        text,
		Hash:           hash,
		DenseEmbedding: vec,
		Owner:          owner,
		Scope:          scope,
		MemoryType:     memoryType,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := c.store.Insert(ctx, []*memory.MemoryRecord{record}); err != nil {
		return reconcile.EventSummary{}, errs.StorageError("add: insert failed", err)
	}
	return reconcile.EventSummary{ID: record.ID, Event: reconcile.EventAdd, MemoryText: text}, nil
}

// SearchRequest is the input to [Core.Search].
type SearchRequest struct {
	Query     string
	Owner     memory.Owner
	Filter    memory.Filter
	Limit     int
	Threshold float64
	Rerank    bool
}

// Search implements the search() Core operation (spec.md §4.7).
func (c *Core) Search(ctx context.Context, req SearchRequest) ([]*memory.MemoryRecord, error) {
	ctx, span := observe.StartSpan(ctx, "core.Search", trace.WithAttributes(
		attribute.Bool("rerank_requested", req.Rerank),
	))
	defer span.End()

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vec, err := c.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, errs.ProviderError("search: embed query failed", err)
	}

	fetchK := limit
	if req.Rerank && c.rerank != nil {
		fetchK = limit * rerankMultiplier
	}

	identityFilter := memory.WithFilter(memory.OwnerVisibilityFilter(req.Owner), req.Filter)
	plan := planner.Decide(c.store.Capabilities(), planner.Request{
		Dense:     vec,
		Text:      req.Query,
		Filter:    identityFilter,
		K:         fetchK,
		Threshold: req.Threshold,
	})
	c.metrics.RecordSearchRequest(ctx, string(plan.Path))

	records, err := planner.Execute(ctx, c.store, planner.Request{
		Dense:     vec,
		Text:      req.Query,
		Filter:    identityFilter,
		K:         fetchK,
		Threshold: req.Threshold,
	})
	if err != nil {
		c.metrics.RecordStorageError(ctx, "search")
		return nil, errs.StorageError("search: planner execution failed", err)
	}

	if req.Rerank && c.rerank != nil {
		records = c.applyRerank(ctx, req.Query, records, limit)
	} else if len(records) > limit {
		records = records[:limit]
	}
	return stripEmbeddings(records), nil
}

// applyRerank reorders records via the configured reranker, degrading to the
// original order (skip-rerank) on failure (spec.md §7).
func (c *Core) applyRerank(ctx context.Context, query string, records []*memory.MemoryRecord, limit int) []*memory.MemoryRecord {
	candidates := make([]reranker.Candidate, len(records))
	byID := make(map[int64]*memory.MemoryRecord, len(records))
	for i, r := range records {
		candidates[i] = reranker.Candidate{ID: r.ID, Text: r.Content}
		byID[r.ID] = r
	}

	results, err := c.rerank.Rerank(ctx, query, candidates, limit)
	if err != nil {
		observe.Logger(ctx).Warn("memory core: reranker failed, falling back to planner order", "error", err)
		if len(records) > limit {
			return records[:limit]
		}
		return records
	}

	out := make([]*memory.MemoryRecord, 0, len(results))
	for _, res := range results {
		if rec, ok := byID[res.ID]; ok {
			rec.Score = res.Score
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// stripEmbeddings clears dense/sparse vectors before returning records to
// callers (spec.md §4.7: "never return raw embeddings").
func stripEmbeddings(records []*memory.MemoryRecord) []*memory.MemoryRecord {
	for _, r := range records {
		r.DenseEmbedding = nil
		r.SparseEmbedding = nil
	}
	return records
}

// Get implements the get() Core operation: identity-enforced point lookup.
func (c *Core) Get(ctx context.Context, id int64, owner memory.Owner) (*memory.MemoryRecord, error) {
	record, err := c.store.PointGet(ctx, id, owner)
	if err != nil {
		if errIsNotFound(err) {
			return nil, errs.NotFound(fmt.Sprintf("get: no record with id %d visible to this identity", id))
		}
		return nil, errs.StorageError("get: point lookup failed", err)
	}
	if record == nil {
		return nil, errs.NotFound(fmt.Sprintf("get: no record with id %d visible to this identity", id))
	}
	return stripEmbeddings([]*memory.MemoryRecord{record})[0], nil
}

// GetAllRequest is the input to [Core.GetAll].
type GetAllRequest struct {
	Owner  memory.Owner
	Filter memory.Filter
	Limit  int
	Offset int
	SortBy memory.SortField
	Order  memory.SortOrder
}

// GetAll implements the get_all() Core operation: a pure list, no similarity
// ranking (spec.md §4.7).
func (c *Core) GetAll(ctx context.Context, req GetAllRequest) ([]*memory.MemoryRecord, error) {
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = memory.SortByCreatedAt
	}
	order := req.Order
	if order == "" {
		order = memory.OrderDesc
	}

	records, err := c.store.List(ctx, memory.ListOptions{
		Filter: memory.WithFilter(memory.OwnerVisibilityFilter(req.Owner), req.Filter),
		Limit:  req.Limit,
		Offset: req.Offset,
		SortBy: sortBy,
		Order:  order,
	})
	if err != nil {
		return nil, errs.StorageError("get_all: list failed", err)
	}
	return stripEmbeddings(records), nil
}

// Update implements the update() Core operation: identity-checked point
// update, recomputing derived fields (hash, embedding, updated_at — spec
// invariant I3).
func (c *Core) Update(ctx context.Context, id int64, content string, metadata map[string]any, owner memory.Owner) (*memory.MemoryRecord, error) {
	var vec []float32
	if content != "" {
		var err error
		vec, err = c.embedder.Embed(ctx, content)
		if err != nil {
			return nil, errs.ProviderError("update: embed failed", err)
		}
	}

	updated, err := c.store.Update(ctx, id, content, vec, metadata, owner)
	if err != nil {
		if errIsNotFound(err) {
			return nil, errs.NotFound(fmt.Sprintf("update: no record with id %d visible to this identity", id))
		}
		return nil, errs.StorageError("update: storage update failed", err)
	}
	observe.Logger(ctx).Info("memory core: updated record", "id", id)
	return stripEmbeddings([]*memory.MemoryRecord{updated})[0], nil
}

// Delete implements the delete() Core operation: identity-checked hard
// delete.
func (c *Core) Delete(ctx context.Context, id int64, owner memory.Owner) error {
	if err := c.store.Delete(ctx, id, owner); err != nil {
		if errIsNotFound(err) {
			return errs.NotFound(fmt.Sprintf("delete: no record with id %d visible to this identity", id))
		}
		return errs.StorageError("delete: storage delete failed", err)
	}
	observe.Logger(ctx).Info("memory core: deleted record", "id", id)
	return nil
}

// DeleteAll implements the delete_all() Core operation: identity-checked
// bulk delete, returning the count removed.
func (c *Core) DeleteAll(ctx context.Context, owner memory.Owner) (int64, error) {
	count, err := c.store.DeleteByFilter(ctx, memory.OwnerVisibilityFilter(owner))
	if err != nil {
		return 0, errs.StorageError("delete_all: bulk delete failed", err)
	}
	observe.Logger(ctx).Info("memory core: deleted all records for identity", "count", count)
	return count, nil
}

// Reset implements the reset() Core operation: administrative, drops and
// recreates the entire collection.
func (c *Core) Reset(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return errs.StorageError("reset: collection reset failed", err)
	}
	observe.Logger(ctx).Warn("memory core: collection reset, all records dropped")
	return nil
}

// GetStatistics implements the get_statistics() Core operation: delegates
// to the Storage Engine, optionally scoped to an identity.
func (c *Core) GetStatistics(ctx context.Context, owner memory.Owner) (memory.Statistics, error) {
	filter := memory.Filter{}
	if !owner.Empty() {
		filter = memory.OwnerVisibilityFilter(owner)
	}
	stats, err := c.store.Statistics(ctx, filter)
	if err != nil {
		return memory.Statistics{}, errs.StorageError("get_statistics: aggregation failed", err)
	}
	return stats, nil
}

func errIsNotFound(err error) bool {
	return errors.Is(err, memory.ErrNotFound)
}
