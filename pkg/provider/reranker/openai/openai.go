// Package openai provides a Reranker Client implementation built on top of an
// existing LLM Client (spec.md §4.1 component table footnote: rerankers are
// judged 3% of system complexity and commonly piggyback on whichever chat
// model is already configured rather than a dedicated rerank endpoint).
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/powermem-ai/powermem/pkg/provider/llm"
	"github.com/powermem-ai/powermem/pkg/provider/reranker"
	"github.com/powermem-ai/powermem/pkg/types"
)

// scoreSchema constrains the model's reply to a flat list of id/score pairs.
var scoreSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"scores": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":    map[string]any{"type": "integer"},
					"score": map[string]any{"type": "number"},
				},
				"required": []string{"id", "score"},
			},
		},
	},
	"required": []string{"scores"},
}

// Provider implements reranker.Provider by prompting an injected LLM Client
// to score each candidate's relevance to the query.
type Provider struct {
	llm llm.Provider
}

// New constructs a Provider that reranks via chat completion on client.
func New(client llm.Provider) *Provider {
	return &Provider{llm: client}
}

type scoreResponse struct {
	Scores []struct {
		ID    int64   `json:"id"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// Rerank implements reranker.Provider.
func (p *Provider) Rerank(ctx context.Context, query string, candidates []reranker.Candidate, topN int) ([]reranker.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nScore each candidate's relevance to the query from 0.0 (irrelevant) to 1.0 (perfectly relevant).\n\n", query)
	for _, c := range candidates {
		fmt.Fprintf(&b, "id=%d: %s\n", c.ID, c.Text)
	}

	text, err := llm.Generate(ctx, p.llm, []types.Message{{Role: "user", Content: b.String()}}, scoreSchema)
	if err != nil {
		return nil, fmt.Errorf("reranker/openai: generate: %w", err)
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &parsed); err != nil {
		return nil, fmt.Errorf("reranker/openai: parse scores: %w", err)
	}

	results := make([]reranker.Result, 0, len(parsed.Scores))
	for _, s := range parsed.Scores {
		results = append(results, reranker.Result{ID: s.ID, Score: s.Score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present,
// matching the prompt-only repair allowance in spec.md §9's design notes.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ reranker.Provider = (*Provider)(nil)
