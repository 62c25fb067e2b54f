package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/powermem-ai/powermem/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL/pgvector-backed [memory.Store] implementation. All
// methods are safe for concurrent use; the pool is the sole shared resource.
type Store struct {
	pool *pgxpool.Pool
	coll memory.Collection
}

// NewStore opens a connection pool to dsn, registers pgvector types on every
// new connection, pings the database, and runs [Migrate] against coll before
// returning. coll.DenseDimension must match the embedding model configured
// for the deployment.
func NewStore(ctx context.Context, dsn string, coll memory.Collection) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, coll); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	// This backend has no single fused dense+fulltext(+sparse) primitive.
	coll.SupportsNativeHybrid = false
	// Sparse vectors are stored as a JSONB map and scored client-side; the
	// capability still advertises true so SparseSearch/HybridSearch accept
	// a sparse argument, scored in Go rather than pushed to the engine.
	coll.SupportsSparse = true

	return &Store{pool: pool, coll: coll}, nil
}

// Capabilities implements [memory.Store].
func (s *Store) Capabilities() memory.Collection { return s.coll }

// Reset implements [memory.Store]. It drops and recreates the memories table.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS memories"); err != nil {
		return fmt.Errorf("postgres reset: drop: %w", err)
	}
	return Migrate(ctx, s.pool, s.coll)
}

// Close implements [memory.Store]. It releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
