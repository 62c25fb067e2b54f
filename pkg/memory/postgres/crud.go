package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/powermem-ai/powermem/pkg/memory"
)

// Insert implements [memory.Store]. It rejects any dimension-mismatched
// embedding before issuing a write, batching the remainder in one round
// trip via pgx's extended batch protocol.
func (s *Store) Insert(ctx context.Context, records []*memory.MemoryRecord) ([]int64, error) {
	for _, r := range records {
		if len(r.DenseEmbedding) != s.coll.DenseDimension {
			return nil, memory.ErrDimensionMismatch
		}
	}

	const q = `
		INSERT INTO memories
		    (id, content, hash, dense_embedding, sparse_embedding,
		     user_id, agent_id, run_id, actor_id, scope, category, memory_type,
		     metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	batch := &pgx.Batch{}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		sparse, err := marshalSparse(r.SparseEmbedding)
		if err != nil {
			return nil, fmt.Errorf("postgres insert: marshal sparse: %w", err)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("postgres insert: marshal metadata: %w", err)
		}
		batch.Queue(q,
			r.ID, r.Content, r.Hash, pgvector.NewVector(r.DenseEmbedding), sparse,
			r.Owner.UserID, r.Owner.AgentID, r.Owner.RunID, r.Owner.ActorID,
			string(r.Scope), r.Category, r.MemoryType, meta, r.CreatedAt, r.UpdatedAt,
		)
		ids = append(ids, r.ID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return nil, fmt.Errorf("postgres insert: %w", err)
		}
	}
	return ids, nil
}

// PointGet implements [memory.Store], enforcing spec invariant I5.
func (s *Store) PointGet(ctx context.Context, id int64, owner memory.Owner) (*memory.MemoryRecord, error) {
	a := &argList{}
	ownerClause, err := ownerVisibilityClause(owner, a)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM memories WHERE id = %s AND (%s)`, selectColumns, a.next(id), ownerClause)

	row := s.pool.QueryRow(ctx, q, a.args...)
	rec, err := scanRecord(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres point_get: %w", err)
	}
	return rec, nil
}

// List implements [memory.Store].
func (s *Store) List(ctx context.Context, opts memory.ListOptions) ([]*memory.MemoryRecord, error) {
	a := &argList{}
	where := "TRUE"
	if opts.Filter.IsLeaf() || len(opts.Filter.And) > 0 || len(opts.Filter.Or) > 0 {
		clause, err := buildWhere(opts.Filter, a)
		if err != nil {
			return nil, err
		}
		where = clause
	}

	sortBy := string(opts.SortBy)
	if sortBy == "" {
		sortBy = "id"
	}
	order := "ASC"
	if opts.Order == memory.OrderDesc {
		order = "DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	q := fmt.Sprintf(`SELECT %s FROM memories WHERE %s
		ORDER BY %s %s NULLS LAST, id DESC
		LIMIT %s OFFSET %s`,
		selectColumns, where, sortBy, order, a.next(limit), a.next(opts.Offset))

	rows, err := s.pool.Query(ctx, q, a.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	return scanAll(rows)
}

// Update implements [memory.Store]. When newContent is non-empty it
// recomputes hash/embedding/updated_at atomically (invariant I3); metadata,
// when non-nil, replaces the stored map.
func (s *Store) Update(ctx context.Context, id int64, newContent string, newEmbedding []float32, metadata map[string]any, owner memory.Owner) (*memory.MemoryRecord, error) {
	if newContent != "" && len(newEmbedding) != s.coll.DenseDimension {
		return nil, memory.ErrDimensionMismatch
	}

	a := &argList{}
	ownerClause, err := ownerVisibilityClause(owner, a)
	if err != nil {
		return nil, err
	}

	sets := []string{"updated_at = " + a.next(time.Now())}
	if newContent != "" {
		sets = append(sets,
			"content = "+a.next(newContent),
			"hash = "+a.next(memory.NormalizedHash(newContent)),
			"dense_embedding = "+a.next(pgvector.NewVector(newEmbedding)),
		)
	}
	if metadata != nil {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("postgres update: marshal metadata: %w", err)
		}
		sets = append(sets, "metadata = "+a.next(meta))
	}

	idRef := a.next(id)
	q := fmt.Sprintf(`UPDATE memories SET %s WHERE id = %s AND (%s) RETURNING %s`,
		joinSets(sets), idRef, ownerClause, selectColumns)

	row := s.pool.QueryRow(ctx, q, a.args...)
	rec, err := scanRecord(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, memory.ErrNotFound
		}
		return nil, fmt.Errorf("postgres update: %w", err)
	}
	return rec, nil
}

// Delete implements [memory.Store].
func (s *Store) Delete(ctx context.Context, id int64, owner memory.Owner) error {
	a := &argList{}
	ownerClause, err := ownerVisibilityClause(owner, a)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM memories WHERE id = %s AND (%s)`, a.next(id), ownerClause)
	tag, err := s.pool.Exec(ctx, q, a.args...)
	if err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// DeleteByFilter implements [memory.Store].
func (s *Store) DeleteByFilter(ctx context.Context, filter memory.Filter) (int64, error) {
	a := &argList{}
	where := "TRUE"
	if filter.IsLeaf() || len(filter.And) > 0 || len(filter.Or) > 0 {
		clause, err := buildWhere(filter, a)
		if err != nil {
			return 0, err
		}
		where = clause
	}
	q := fmt.Sprintf(`DELETE FROM memories WHERE %s`, where)
	tag, err := s.pool.Exec(ctx, q, a.args...)
	if err != nil {
		return 0, fmt.Errorf("postgres delete_by_filter: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Statistics implements [memory.Store].
func (s *Store) Statistics(ctx context.Context, filter memory.Filter) (memory.Statistics, error) {
	a := &argList{}
	where := "TRUE"
	if filter.IsLeaf() || len(filter.And) > 0 || len(filter.Or) > 0 {
		clause, err := buildWhere(filter, a)
		if err != nil {
			return memory.Statistics{}, err
		}
		where = clause
	}

	stats := memory.Statistics{ByMemoryType: map[string]int64{}, ByAgeBucket: map[string]int64{}}

	var total int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM memories WHERE %s", where), a.args...).Scan(&total); err != nil {
		return memory.Statistics{}, fmt.Errorf("postgres statistics: count: %w", err)
	}
	stats.Count = total

	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT memory_type, count(*) FROM memories WHERE %s GROUP BY memory_type", where), a.args...)
	if err != nil {
		return memory.Statistics{}, fmt.Errorf("postgres statistics: by type: %w", err)
	}
	for rows.Next() {
		var mt string
		var c int64
		if err := rows.Scan(&mt, &c); err != nil {
			rows.Close()
			return memory.Statistics{}, err
		}
		stats.ByMemoryType[mt] = c
	}
	rows.Close()

	buckets := []struct {
		label string
		since time.Duration
	}{
		{"<1h", time.Hour}, {"<1d", 24 * time.Hour}, {"<7d", 7 * 24 * time.Hour}, {"<30d", 30 * 24 * time.Hour},
	}
	for _, b := range buckets {
		cutoff := time.Now().Add(-b.since)
		a2 := &argList{args: append([]any(nil), a.args...)}
		cutoffRef := a2.next(cutoff)
		var c int64
		q := fmt.Sprintf("SELECT count(*) FROM memories WHERE (%s) AND created_at >= %s", where, cutoffRef)
		if err := s.pool.QueryRow(ctx, q, a2.args...).Scan(&c); err != nil {
			return memory.Statistics{}, fmt.Errorf("postgres statistics: age bucket %s: %w", b.label, err)
		}
		stats.ByAgeBucket[b.label] = c
	}
	stats.ByAgeBucket[">=30d"] = total - stats.ByAgeBucket["<30d"]

	return stats, nil
}

// ── shared scan/SQL helpers ──────────────────────────────────────────────

const selectColumns = `id, content, hash, dense_embedding, sparse_embedding,
	user_id, agent_id, run_id, actor_id, scope, category, memory_type,
	metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*memory.MemoryRecord, error) {
	var (
		r          memory.MemoryRecord
		vec        pgvector.Vector
		sparseJSON []byte
		metaJSON   []byte
		scope      string
	)
	if err := row.Scan(
		&r.ID, &r.Content, &r.Hash, &vec, &sparseJSON,
		&r.Owner.UserID, &r.Owner.AgentID, &r.Owner.RunID, &r.Owner.ActorID,
		&scope, &r.Category, &r.MemoryType, &metaJSON, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.DenseEmbedding = vec.Slice()
	r.Scope = memory.Scope(scope)
	if len(sparseJSON) > 0 {
		var sp memory.SparseVector
		if err := json.Unmarshal(sparseJSON, &sp); err == nil {
			r.SparseEmbedding = sp
		}
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &r.Metadata)
	}
	return &r, nil
}

func unmarshalSparse(raw []byte, r *memory.MemoryRecord) {
	var sp memory.SparseVector
	if err := json.Unmarshal(raw, &sp); err == nil {
		r.SparseEmbedding = sp
	}
}

func unmarshalMetadata(raw []byte, r *memory.MemoryRecord) {
	_ = json.Unmarshal(raw, &r.Metadata)
}

func scanAll(rows pgx.Rows) ([]*memory.MemoryRecord, error) {
	defer rows.Close()
	out := []*memory.MemoryRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalSparse(sv memory.SparseVector) ([]byte, error) {
	if sv == nil {
		return nil, nil
	}
	return json.Marshal(sv)
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

// ownerVisibilityClause renders spec invariant I5: a read filtered by a
// non-null owner field returns only records whose same field equals it, or
// whose scope permits cross-owner visibility.
func ownerVisibilityClause(owner memory.Owner, a *argList) (string, error) {
	if owner.Empty() {
		return "TRUE", nil
	}
	var ownMatch []string
	if owner.UserID != "" {
		ownMatch = append(ownMatch, "user_id = "+a.next(owner.UserID))
	}
	if owner.AgentID != "" {
		ownMatch = append(ownMatch, "agent_id = "+a.next(owner.AgentID))
	}
	if owner.RunID != "" {
		ownMatch = append(ownMatch, "run_id = "+a.next(owner.RunID))
	}
	if owner.ActorID != "" {
		ownMatch = append(ownMatch, "actor_id = "+a.next(owner.ActorID))
	}
	exact := "(" + joinAnd(ownMatch) + ")"

	clauses := []string{exact, "scope = 'PUBLIC'"}
	if owner.AgentID != "" {
		clauses = append(clauses, fmt.Sprintf("(scope = 'AGENT_GROUP' AND agent_id = %s)", a.next(owner.AgentID)))
	}
	if owner.UserID != "" {
		clauses = append(clauses, fmt.Sprintf("(scope = 'USER_GROUP' AND user_id = %s)", a.next(owner.UserID)))
	}
	return joinOr(clauses), nil
}

func joinAnd(parts []string) string {
	if len(parts) == 0 {
		return "TRUE"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " AND " + p
	}
	return out
}

func joinOr(parts []string) string {
	if len(parts) == 0 {
		return "FALSE"
	}
	out := "(" + parts[0] + ")"
	for _, p := range parts[1:] {
		out += " OR (" + p + ")"
	}
	return out
}
