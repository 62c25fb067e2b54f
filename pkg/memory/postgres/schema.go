// Package postgres provides a PostgreSQL/pgvector-backed implementation of
// the [memory.Store] Storage Engine contract.
//
// A single `memories` table carries every MemoryRecord field: dense and
// (optionally) sparse embeddings, owner tuple, scope, category/memory_type
// tags, and a JSONB metadata blob. pgvector supplies the vector column type
// and HNSW index; PostgreSQL's built-in `tsvector`/GIN machinery supplies
// full-text search. The `native hybrid` capability is reported false: this
// backend has no single fused dense+fulltext+sparse primitive, so the
// Hybrid Query Planner always takes the fallback (RRF) path against it.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, memory.Collection{
//	    Name: "memories", DenseDimension: 1536, Metric: memory.MetricCosine,
//	})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powermem-ai/powermem/pkg/memory"
)

// ddl returns the memories table DDL with the dense vector dimension and
// HNSW parameters substituted. The dimension is baked into the column type
// at schema-creation time, mirroring pgvector's fixed-length vector type.
func ddl(coll memory.Collection) string {
	m := coll.HNSWM
	if m == 0 {
		m = 16
	}
	efc := coll.HNSWEfConstruction
	if efc == 0 {
		efc = 64
	}
	opclass := "vector_cosine_ops"
	switch coll.Metric {
	case memory.MetricL2:
		opclass = "vector_l2_ops"
	case memory.MetricInnerProduct:
		opclass = "vector_ip_ops"
	}

	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
    id               BIGINT       PRIMARY KEY,
    content          TEXT         NOT NULL,
    hash             CHAR(32)     NOT NULL,
    dense_embedding  vector(%d)   NOT NULL,
    sparse_embedding JSONB,
    user_id          TEXT         NOT NULL DEFAULT '',
    agent_id         TEXT         NOT NULL DEFAULT '',
    run_id           TEXT         NOT NULL DEFAULT '',
    actor_id         TEXT         NOT NULL DEFAULT '',
    scope            TEXT         NOT NULL DEFAULT 'PRIVATE',
    category         TEXT         NOT NULL DEFAULT '',
    memory_type      TEXT         NOT NULL DEFAULT '',
    metadata         JSONB        NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memories_owner
    ON memories (user_id, agent_id, run_id);

CREATE INDEX IF NOT EXISTS idx_memories_hash_owner
    ON memories (hash, user_id, agent_id, run_id);

CREATE INDEX IF NOT EXISTS idx_memories_dense_embedding
    ON memories USING hnsw (dense_embedding %s)
    WITH (m = %d, ef_construction = %d);

CREATE INDEX IF NOT EXISTS idx_memories_fulltext
    ON memories USING GIN (to_tsvector('%s', content));
`, coll.DenseDimension, opclass, m, efc, fulltextParserOr(coll.FulltextParser))
}

func fulltextParserOr(parser string) string {
	if parser == "" {
		return "english"
	}
	return parser
}

// Migrate creates or ensures the memories table and its indices exist. It is
// idempotent and safe to call on every application start. Changing
// coll.DenseDimension after the first migration requires a manual schema
// update — pgvector does not support ALTER COLUMN TYPE across dimensions.
func Migrate(ctx context.Context, pool *pgxpool.Pool, coll memory.Collection) error {
	if _, err := pool.Exec(ctx, ddl(coll)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
