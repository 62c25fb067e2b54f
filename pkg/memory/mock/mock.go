// Package mock provides an in-memory [memory.Store] test double.
//
// Store keeps records in a map guarded by a mutex and implements filtering,
// sorting, and similarity search over it directly (no SQL), so unit tests
// for the Hybrid Query Planner, Reconciler, and Memory Core can run without
// a database. Every method call is recorded for assertion.
package mock

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/powermem-ai/powermem/pkg/memory"
)

// Call records the name of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable, concurrency-safe in-memory [memory.Store].
type Store struct {
	mu      sync.Mutex
	calls   []Call
	records map[int64]*memory.MemoryRecord
	coll    memory.Collection

	// InsertErr, when non-nil, is returned by Insert instead of succeeding.
	InsertErr error
}

// New creates an empty Store advertising coll as its capabilities.
func New(coll memory.Collection) *Store {
	return &Store{records: map[int64]*memory.MemoryRecord{}, coll: coll}
}

var _ memory.Store = (*Store)(nil)

func (s *Store) record(method string, args ...any) {
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// Calls returns every recorded invocation in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Store) Insert(ctx context.Context, records []*memory.MemoryRecord) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Insert", records)
	if s.InsertErr != nil {
		return nil, s.InsertErr
	}
	for _, r := range records {
		if len(r.DenseEmbedding) != s.coll.DenseDimension {
			return nil, memory.ErrDimensionMismatch
		}
	}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		cp := *r
		s.records[r.ID] = &cp
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *Store) PointGet(ctx context.Context, id int64, owner memory.Owner) (*memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PointGet", id, owner)
	r, ok := s.records[id]
	if !ok || !visible(r, owner) {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) List(ctx context.Context, opts memory.ListOptions) ([]*memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("List", opts)
	out := s.matching(opts.Filter)
	sortRecords(out, opts.SortBy, opts.Order)
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (s *Store) VectorSearch(ctx context.Context, query []float32, opts memory.VectorSearchOptions) ([]*memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("VectorSearch", query, opts)
	if len(query) != s.coll.DenseDimension {
		return nil, memory.ErrDimensionMismatch
	}
	cands := s.matching(opts.Filter)
	for _, r := range cands {
		r.Score = cosineSimilarity(query, r.DenseEmbedding)
	}
	filtered := cands[:0]
	for _, r := range cands {
		if opts.Threshold > 0 && r.Score < opts.Threshold {
			continue
		}
		filtered = append(filtered, r)
	}
	sortByScoreDesc(filtered)
	return topK(filtered, opts.K), nil
}

func (s *Store) FulltextSearch(ctx context.Context, query string, opts memory.FulltextSearchOptions) ([]*memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FulltextSearch", query, opts)
	cands := s.matching(opts.Filter)
	q := strings.ToLower(query)
	terms := strings.Fields(q)
	out := cands[:0]
	for _, r := range cands {
		content := strings.ToLower(r.Content)
		var hits int
		for _, t := range terms {
			if strings.Contains(content, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		r.Score = float64(hits) / float64(len(terms))
		out = append(out, r)
	}
	sortByScoreDesc(out)
	return topK(out, opts.K), nil
}

func (s *Store) SparseSearch(ctx context.Context, query memory.SparseVector, opts memory.SparseSearchOptions) ([]*memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SparseSearch", query, opts)
	cands := s.matching(opts.Filter)
	out := cands[:0]
	for _, r := range cands {
		if r.SparseEmbedding == nil {
			continue
		}
		r.Score = sparseDot(query, r.SparseEmbedding)
		out = append(out, r)
	}
	sortByScoreDesc(out)
	return topK(out, opts.K), nil
}

func (s *Store) HybridSearch(ctx context.Context, dense []float32, text string, opts memory.HybridSearchOptions) ([]*memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("HybridSearch", dense, text, opts)
	cands := s.matching(opts.Filter)
	w := opts.Weights
	if w.Dense == 0 && w.Fulltext == 0 && w.Sparse == 0 {
		w.Dense, w.Fulltext = 0.5, 0.5
	}
	out := cands[:0]
	for _, r := range cands {
		score := w.Dense * cosineSimilarity(dense, r.DenseEmbedding)
		if text != "" && strings.Contains(strings.ToLower(r.Content), strings.ToLower(text)) {
			score += w.Fulltext
		}
		if opts.Sparse != nil && r.SparseEmbedding != nil {
			score += w.Sparse * sparseDot(opts.Sparse, r.SparseEmbedding)
		}
		r.Score = score
		out = append(out, r)
	}
	sortByScoreDesc(out)
	return topK(out, opts.K), nil
}

func (s *Store) Update(ctx context.Context, id int64, newContent string, newEmbedding []float32, metadata map[string]any, owner memory.Owner) (*memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Update", id, newContent, metadata, owner)
	r, ok := s.records[id]
	if !ok || !visible(r, owner) {
		return nil, memory.ErrNotFound
	}
	if newContent != "" {
		if len(newEmbedding) != s.coll.DenseDimension {
			return nil, memory.ErrDimensionMismatch
		}
		r.Content = newContent
		r.Hash = memory.NormalizedHash(newContent)
		r.DenseEmbedding = newEmbedding
		r.UpdatedAt = time.Now()
	}
	if metadata != nil {
		r.Metadata = metadata
	}
	cp := *r
	return &cp, nil
}

func (s *Store) Delete(ctx context.Context, id int64, owner memory.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Delete", id, owner)
	r, ok := s.records[id]
	if !ok || !visible(r, owner) {
		return memory.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter memory.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeleteByFilter", filter)
	var n int64
	for _, r := range s.matching(filter) {
		delete(s.records, r.ID)
		n++
	}
	return n, nil
}

func (s *Store) Statistics(ctx context.Context, filter memory.Filter) (memory.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Statistics", filter)
	stats := memory.Statistics{ByMemoryType: map[string]int64{}, ByAgeBucket: map[string]int64{}}
	for _, r := range s.matching(filter) {
		stats.Count++
		stats.ByMemoryType[r.MemoryType]++
	}
	return stats, nil
}

func (s *Store) Capabilities() memory.Collection { return s.coll }

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Reset")
	s.records = map[int64]*memory.MemoryRecord{}
	return nil
}

func (s *Store) Close() error { return nil }

// ── helpers ───────────────────────────────────────────────────────────────

func (s *Store) matching(filter memory.Filter) []*memory.MemoryRecord {
	out := []*memory.MemoryRecord{}
	for _, r := range s.records {
		if matches(r, filter) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func matches(r *memory.MemoryRecord, f memory.Filter) bool {
	if f.Field == "" && len(f.And) == 0 && len(f.Or) == 0 {
		return true
	}
	if f.IsLeaf() {
		return leafMatches(r, f)
	}
	if len(f.And) > 0 {
		for _, c := range f.And {
			if !matches(r, c) {
				return false
			}
		}
		return true
	}
	for _, c := range f.Or {
		if matches(r, c) {
			return true
		}
	}
	return len(f.Or) == 0
}

func fieldValue(r *memory.MemoryRecord, field string) any {
	switch field {
	case "id":
		return r.ID
	case "user_id":
		return r.Owner.UserID
	case "agent_id":
		return r.Owner.AgentID
	case "run_id":
		return r.Owner.RunID
	case "actor_id":
		return r.Owner.ActorID
	case "scope":
		return string(r.Scope)
	case "category":
		return r.Category
	case "memory_type":
		return r.MemoryType
	case "created_at":
		return r.CreatedAt
	case "updated_at":
		return r.UpdatedAt
	default:
		if r.Metadata == nil {
			return nil
		}
		return r.Metadata[field]
	}
}

func leafMatches(r *memory.MemoryRecord, f memory.Filter) bool {
	v := fieldValue(r, f.Field)
	switch f.Op {
	case memory.OpEq, "":
		return v == f.Value
	case memory.OpNe:
		return v != f.Value
	case memory.OpLike:
		sv, _ := v.(string)
		sub, _ := f.Value.(string)
		return strings.Contains(sv, sub)
	case memory.OpIn:
		return containsAny(f.Value, v)
	case memory.OpNin:
		return !containsAny(f.Value, v)
	case memory.OpGte, memory.OpGt, memory.OpLte, memory.OpLt:
		return compareOrdered(v, f.Value, f.Op)
	default:
		return false
	}
}

func containsAny(list any, v any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}

func compareOrdered(a, b any, op memory.FilterOp) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case memory.OpGte:
			return af >= bf
		case memory.OpGt:
			return af > bf
		case memory.OpLte:
			return af <= bf
		case memory.OpLt:
			return af < bf
		}
	}
	at, aok2 := a.(time.Time)
	bt, bok2 := b.(time.Time)
	if aok2 && bok2 {
		switch op {
		case memory.OpGte:
			return !at.Before(bt)
		case memory.OpGt:
			return at.After(bt)
		case memory.OpLte:
			return !at.After(bt)
		case memory.OpLt:
			return at.Before(bt)
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func visible(r *memory.MemoryRecord, owner memory.Owner) bool {
	if owner.Empty() {
		return true
	}
	exact := (owner.UserID == "" || owner.UserID == r.Owner.UserID) &&
		(owner.AgentID == "" || owner.AgentID == r.Owner.AgentID) &&
		(owner.RunID == "" || owner.RunID == r.Owner.RunID) &&
		(owner.ActorID == "" || owner.ActorID == r.Owner.ActorID)
	if exact {
		return true
	}
	switch r.Scope {
	case memory.ScopePublic:
		return true
	case memory.ScopeAgentGroup:
		return owner.AgentID != "" && owner.AgentID == r.Owner.AgentID
	case memory.ScopeUserGroup:
		return owner.UserID != "" && owner.UserID == r.Owner.UserID
	default:
		return false
	}
}

// sortRecords orders by the requested key, ties broken by descending id
// (spec §4.3 tie-break rule, exercised by property P5).
func sortRecords(recs []*memory.MemoryRecord, by memory.SortField, order memory.SortOrder) {
	if by == "" {
		by = memory.SortByID
	}
	key := func(r *memory.MemoryRecord) time.Time {
		switch by {
		case memory.SortByCreatedAt:
			return r.CreatedAt
		case memory.SortByUpdatedAt:
			return r.UpdatedAt
		default:
			return time.Unix(0, r.ID)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		ki, kj := key(recs[i]), key(recs[j])
		if !ki.Equal(kj) {
			if order == memory.OrderDesc {
				return ki.After(kj)
			}
			return ki.Before(kj)
		}
		return recs[i].ID > recs[j].ID
	})
}

func paginate(recs []*memory.MemoryRecord, limit, offset int) []*memory.MemoryRecord {
	if offset >= len(recs) {
		return []*memory.MemoryRecord{}
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

func sortByScoreDesc(recs []*memory.MemoryRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ID > recs[j].ID
	})
}

func topK(recs []*memory.MemoryRecord, k int) []*memory.MemoryRecord {
	if k <= 0 {
		k = 10
	}
	if len(recs) > k {
		recs = recs[:k]
	}
	return recs
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sparseDot(a, b memory.SparseVector) float64 {
	var sum float64
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for tok, w := range small {
		sum += w * big[tok]
	}
	return sum
}
