// Package reranker defines the Provider interface for the optional Reranker
// Client (spec.md §4): scoring a (query, candidate-list) pair and returning a
// reordering plus scores. Rerankers never create memories; they only reorder
// results the Hybrid Query Planner already retrieved.
package reranker

import "context"

// Candidate is a single item submitted for reranking. ID is opaque to the
// reranker and is echoed back in [Result] so the caller can re-associate
// scores with the original records.
type Candidate struct {
	ID   int64
	Text string
}

// Result is one reranked candidate with its new relevance score. Higher
// scores indicate stronger relevance to the query; callers sort descending.
type Result struct {
	ID    int64
	Score float64
}

// Provider is the abstraction over any reranking backend.
//
// Implementations must be safe for concurrent use. On failure the caller
// degrades to skip-rerank (spec.md §7) rather than failing the search.
type Provider interface {
	// Rerank scores candidates against query and returns them in descending
	// score order. The returned slice has the same length as candidates
	// unless the provider truncates to topN (topN <= 0 means no truncation).
	Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]Result, error)
}
