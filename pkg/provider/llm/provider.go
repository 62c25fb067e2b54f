// Package llm defines the Provider interface for Large Language Model
// backends used by the memory service's LLM Client (spec.md §4.2): the
// Fact Extractor, the Reconciler, and the Reranker Client all go through
// this single `generate(messages, expected_schema?) → text` contract
// rather than coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/powermem-ai/powermem/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt. This value directly affects billing and context-window budget tracking.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a convenience;
	// some providers return it directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history handed to the model —
	// system instruction first, then the rendered conversation or prompt
	// (spec.md §4.5 step 2, §4.6).
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower values
	// produce more deterministic outputs; higher values increase creativity. A value
	// of 0.0 typically requests greedy (argmax) decoding.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default (usually the model's MaxOutputTokens).
	MaxTokens int

	// ResponseSchema, when non-nil, is the JSON Schema the caller expects the
	// reply to match (spec §4.2's `expected_schema`). The openai and anyllm
	// providers in this module do not send it to the backend or check the
	// reply against it; the reply text is returned as the model produced it
	// and callers parse it themselves.
	ResponseSchema map[string]any
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Generate is the spec §4.2 LLM Client contract:
// `generate(messages, expected_schema?) → text`. It is a thin convenience
// wrapper over [Provider.Complete] that sets ResponseSchema on the request.
func Generate(ctx context.Context, p Provider, messages []types.Message, expectedSchema map[string]any) (string, error) {
	resp, err := p.Complete(ctx, CompletionRequest{Messages: messages, ResponseSchema: expectedSchema})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
