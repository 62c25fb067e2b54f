package postgres

import (
	"context"
	"fmt"
	"sort"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/powermem-ai/powermem/pkg/memory"
)

// VectorSearch implements [memory.Store]. Results are ordered by ascending
// distance under the collection's own [memory.DistanceMetric] and projected
// into [memory.MemoryRecord.Score] as a similarity score in the metric's
// native range.
func (s *Store) VectorSearch(ctx context.Context, query []float32, opts memory.VectorSearchOptions) ([]*memory.MemoryRecord, error) {
	if len(query) != s.coll.DenseDimension {
		return nil, memory.ErrDimensionMismatch
	}
	op, scoreTemplate := distanceOperator(s.coll.Metric)

	a := &argList{}
	vecRef := a.next(pgvector.NewVector(query))
	where := "TRUE"
	if opts.Filter.IsLeaf() || len(opts.Filter.And) > 0 || len(opts.Filter.Or) > 0 {
		clause, err := buildWhere(opts.Filter, a)
		if err != nil {
			return nil, err
		}
		where = clause
	}

	k := opts.K
	if k <= 0 {
		k = 10
	}
	limitRef := a.next(k)
	scoreExpr := fmt.Sprintf(scoreTemplate, vecRef)

	q := fmt.Sprintf(`SELECT %s, %s AS score
		FROM memories WHERE %s
		ORDER BY dense_embedding %s %s ASC, id DESC
		LIMIT %s`, selectColumns, scoreExpr, where, op, vecRef, limitRef)

	rows, err := s.pool.Query(ctx, q, a.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres vector_search: %w", err)
	}
	defer rows.Close()

	out := []*memory.MemoryRecord{}
	for rows.Next() {
		r, score, err := scanRecordWithScore(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres vector_search: scan: %w", err)
		}
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		r.Score = score
		out = append(out, r)
	}
	return out, rows.Err()
}

// FulltextSearch implements [memory.Store] using PostgreSQL's ts_rank over a
// plainto_tsquery, the parser named by the collection (default "english").
func (s *Store) FulltextSearch(ctx context.Context, query string, opts memory.FulltextSearchOptions) ([]*memory.MemoryRecord, error) {
	parser := fulltextParserOr(s.coll.FulltextParser)
	a := &argList{}
	tsQueryRef := a.next(query)

	where := "TRUE"
	if opts.Filter.IsLeaf() || len(opts.Filter.And) > 0 || len(opts.Filter.Or) > 0 {
		clause, err := buildWhere(opts.Filter, a)
		if err != nil {
			return nil, err
		}
		where = clause
	}

	k := opts.K
	if k <= 0 {
		k = 10
	}
	limitRef := a.next(k)

	q := fmt.Sprintf(`SELECT %s,
			ts_rank(to_tsvector('%s', content), plainto_tsquery('%s', %s)) AS score
		FROM memories
		WHERE to_tsvector('%s', content) @@ plainto_tsquery('%s', %s) AND (%s)
		ORDER BY score DESC, id DESC
		LIMIT %s`,
		selectColumns, parser, parser, tsQueryRef, parser, parser, tsQueryRef, where, limitRef)

	rows, err := s.pool.Query(ctx, q, a.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres fulltext_search: %w", err)
	}
	defer rows.Close()

	out := []*memory.MemoryRecord{}
	for rows.Next() {
		r, score, err := scanRecordWithScore(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres fulltext_search: scan: %w", err)
		}
		r.Score = score
		out = append(out, r)
	}
	return out, rows.Err()
}

// SparseSearch implements [memory.Store]. Sparse vectors are stored as a
// JSONB token→weight map rather than an engine-native sparse index, so this
// backend fetches candidate rows with a non-empty sparse column restricted
// by filter, scores them in Go as a dot product, and returns the top K.
// This is the "schema drift downgrades silently" path from spec §4.3 —
// there is no dedicated sparse index to miss, the scoring is simply local.
func (s *Store) SparseSearch(ctx context.Context, query memory.SparseVector, opts memory.SparseSearchOptions) ([]*memory.MemoryRecord, error) {
	a := &argList{}
	where := "sparse_embedding IS NOT NULL"
	if opts.Filter.IsLeaf() || len(opts.Filter.And) > 0 || len(opts.Filter.Or) > 0 {
		clause, err := buildWhere(opts.Filter, a)
		if err != nil {
			return nil, err
		}
		where += " AND (" + clause + ")"
	}

	q := fmt.Sprintf(`SELECT %s FROM memories WHERE %s`, selectColumns, where)
	rows, err := s.pool.Query(ctx, q, a.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres sparse_search: %w", err)
	}
	candidates, err := scanAll(rows)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		c.Score = sparseDotProduct(query, c.SparseEmbedding)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID > candidates[j].ID
	})

	k := opts.K
	if k <= 0 {
		k = 10
	}
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// distanceOperator maps a collection's [memory.DistanceMetric] to the
// pgvector operator used in ORDER BY and a score expression template (one
// "%s" placeholder for the query vector reference) that turns that distance
// into a similarity score: higher is always more similar, matching the
// convention [memory.MemoryRecord.Score] uses for every other search method.
func distanceOperator(metric memory.DistanceMetric) (op, scoreTemplate string) {
	switch metric {
	case memory.MetricL2:
		return "<->", "-(dense_embedding <-> %s)"
	case memory.MetricInnerProduct:
		return "<#>", "-(dense_embedding <#> %s)"
	default:
		return "<=>", "1 - (dense_embedding <=> %s)"
	}
}

func sparseDotProduct(a, b memory.SparseVector) float64 {
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

// HybridSearch implements [memory.Store]. This backend advertises
// SupportsNativeHybrid=false (see [NewStore]), so the Hybrid Query Planner
// never calls this method against it in practice; it is implemented anyway,
// approximating a fused call by a weighted sum of the raw dense and fulltext
// scores (not the rank-based RRF of the planner's fallback path), for
// backends/tests that want a single-call shape without going through the
// planner.
func (s *Store) HybridSearch(ctx context.Context, dense []float32, text string, opts memory.HybridSearchOptions) ([]*memory.MemoryRecord, error) {
	k := opts.K
	if k <= 0 {
		k = 10
	}
	dr, err := s.VectorSearch(ctx, dense, memory.VectorSearchOptions{Filter: opts.Filter, K: k * 3, Threshold: opts.Threshold})
	if err != nil {
		return nil, err
	}
	var fr []*memory.MemoryRecord
	if text != "" {
		fr, err = s.FulltextSearch(ctx, text, memory.FulltextSearchOptions{Filter: opts.Filter, K: k * 3})
		if err != nil {
			return nil, err
		}
	}

	weights := opts.Weights
	if weights.Dense == 0 && weights.Fulltext == 0 {
		weights.Dense, weights.Fulltext = 0.5, 0.5
	}
	scores := map[int64]float64{}
	byID := map[int64]*memory.MemoryRecord{}
	for _, r := range dr {
		scores[r.ID] += weights.Dense * r.Score
		byID[r.ID] = r
	}
	for _, r := range fr {
		scores[r.ID] += weights.Fulltext * r.Score
		byID[r.ID] = r
	}

	out := make([]*memory.MemoryRecord, 0, len(byID))
	for id, r := range byID {
		r.Score = scores[id]
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func scanRecordWithScore(row rowScanner) (*memory.MemoryRecord, float64, error) {
	var (
		r          memory.MemoryRecord
		vec        pgvector.Vector
		sparseJSON []byte
		metaJSON   []byte
		scope      string
		score      float64
	)
	if err := row.Scan(
		&r.ID, &r.Content, &r.Hash, &vec, &sparseJSON,
		&r.Owner.UserID, &r.Owner.AgentID, &r.Owner.RunID, &r.Owner.ActorID,
		&scope, &r.Category, &r.MemoryType, &metaJSON, &r.CreatedAt, &r.UpdatedAt,
		&score,
	); err != nil {
		return nil, 0, err
	}
	r.DenseEmbedding = vec.Slice()
	r.Scope = memory.Scope(scope)
	if len(sparseJSON) > 0 {
		unmarshalSparse(sparseJSON, &r)
	}
	if len(metaJSON) > 0 {
		unmarshalMetadata(metaJSON, &r)
	}
	return &r, score, nil
}
