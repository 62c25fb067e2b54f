// Package mock provides a test double for the reranker.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/powermem-ai/powermem/pkg/provider/reranker"
)

// RerankCall records a single invocation of Rerank.
type RerankCall struct {
	Query      string
	Candidates []reranker.Candidate
	TopN       int
}

// Provider is a mock implementation of reranker.Provider.
type Provider struct {
	mu sync.Mutex

	// RerankResult is returned by Rerank. If nil, candidates are echoed back
	// in their original order with Score 0.
	RerankResult []reranker.Result

	// RerankErr, if non-nil, is returned as the error from Rerank.
	RerankErr error

	// RerankCalls records every invocation of Rerank in order.
	RerankCalls []RerankCall
}

// Rerank records the call and returns RerankResult, RerankErr.
func (p *Provider) Rerank(ctx context.Context, query string, candidates []reranker.Candidate, topN int) ([]reranker.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RerankCalls = append(p.RerankCalls, RerankCall{Query: query, Candidates: candidates, TopN: topN})
	if p.RerankErr != nil {
		return nil, p.RerankErr
	}
	if p.RerankResult != nil {
		return p.RerankResult, nil
	}
	results := make([]reranker.Result, len(candidates))
	for i, c := range candidates {
		results[i] = reranker.Result{ID: c.ID, Score: 0}
	}
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RerankCalls = nil
}

var _ reranker.Provider = (*Provider)(nil)
