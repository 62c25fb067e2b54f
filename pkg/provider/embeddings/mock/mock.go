// Package mock provides a test double for the embeddings.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a live model
// and to verify that the correct texts are submitted for embedding.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedResult:     []float32{0.1, 0.2, 0.3},
//	    DimensionsValue: 3,
//	    ModelIDValue:    "test-embed-v1",
//	}
//	vec, _ := p.Embed(ctx, "hello world")
package mock

import (
	"context"
	"sync"

	"github.com/powermem-ai/powermem/pkg/provider/embeddings"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Text is the string passed to Embed.
	Text string
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	// Ctx is the context passed to EmbedBatch.
	Ctx context.Context
	// Texts is a copy of the string slice passed to EmbedBatch.
	Texts []string
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedResult is returned by Embed. If nil, a zero-length slice is returned.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch. If nil, an empty slice of slices
	// is returned (one per input text, each nil).
	EmbedBatchResult [][]float32

	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall

	// EmbedBatchCalls records every call to EmbedBatch in order.
	EmbedBatchCalls []EmbedBatchCall

	// DimensionsCallCount is the number of times Dimensions was called.
	DimensionsCallCount int

	// ModelIDCallCount is the number of times ModelID was called.
	ModelIDCallCount int

	// EmbedSparseResult is returned by EmbedSparse.
	EmbedSparseResult map[int]float64

	// EmbedSparseErr, if non-nil, is returned as the error from EmbedSparse.
	EmbedSparseErr error

	// EmbedSparseBatchResult is returned by EmbedSparseBatch.
	EmbedSparseBatchResult []map[int]float64

	// EmbedSparseBatchErr, if non-nil, is returned as the error from EmbedSparseBatch.
	EmbedSparseBatchErr error

	// EmbedSparseCalls records every call to EmbedSparse in order.
	EmbedSparseCalls []EmbedCall

	// EmbedSparseBatchCalls records every call to EmbedSparseBatch in order.
	EmbedSparseBatchCalls []EmbedBatchCall
}

// Embed records the call and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch records the call and returns EmbedBatchResult, EmbedBatchErr.
// If EmbedBatchResult is nil, it returns a slice of nil slices matching the
// length of texts.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	// Return a slice of nil slices so the caller gets the right length.
	result := make([][]float32, len(texts))
	return result, nil
}

// Dimensions records the call and returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DimensionsCallCount++
	return p.DimensionsValue
}

// ModelID records the call and returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModelIDCallCount++
	return p.ModelIDValue
}

// EmbedSparse records the call and returns EmbedSparseResult, EmbedSparseErr.
func (p *Provider) EmbedSparse(ctx context.Context, text string) (map[int]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedSparseCalls = append(p.EmbedSparseCalls, EmbedCall{Ctx: ctx, Text: text})
	return p.EmbedSparseResult, p.EmbedSparseErr
}

// EmbedSparseBatch records the call and returns EmbedSparseBatchResult, EmbedSparseBatchErr.
func (p *Provider) EmbedSparseBatch(ctx context.Context, texts []string) ([]map[int]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedSparseBatchCalls = append(p.EmbedSparseBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})
	if p.EmbedSparseBatchErr != nil {
		return nil, p.EmbedSparseBatchErr
	}
	if p.EmbedSparseBatchResult != nil {
		return p.EmbedSparseBatchResult, nil
	}
	return make([]map[int]float64, len(texts)), nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
	p.EmbedSparseCalls = nil
	p.EmbedSparseBatchCalls = nil
	p.DimensionsCallCount = 0
	p.ModelIDCallCount = 0
}

// Ensure Provider implements embeddings.Provider and embeddings.SparseProvider
// at compile time.
var (
	_ embeddings.Provider       = (*Provider)(nil)
	_ embeddings.SparseProvider = (*Provider)(nil)
)
