// Package extract implements the Fact Extractor (spec.md §4.5): given a
// conversation and identity context, it asks the LLM Client to return a list
// of atomic, self-contained fact strings suitable as standalone memories.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	"github.com/powermem-ai/powermem/pkg/types"
)

// Options configures which messages are considered for extraction.
type Options struct {
	// IncludeRoles, if non-empty, restricts extraction to these roles only.
	IncludeRoles []string
	// ExcludeRoles removes these roles before extraction. Defaults to
	// {"system"} when both IncludeRoles and ExcludeRoles are empty.
	ExcludeRoles []string
}

// Result is the outcome of [Extract].
type Result struct {
	// Facts is the list of atomic fact strings. It has no elements (and may
	// be nil) on both the "nothing factual happened" case and the
	// extraction-gave-up case; the two are distinguished by Warning.
	Facts []string

	// Warning is a non-fatal *errs.Error (Kind == errs.KindExtraction) set
	// when the LLM's response could not be parsed after one retry. Callers
	// treat this as "no new facts", not as a failed add (spec.md §4.5, §4.7).
	Warning error
}

var factSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"facts": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"facts"},
}

type factResponse struct {
	Facts []string `json:"facts"`
}

const systemPrompt = `You extract atomic, self-contained facts worth remembering long-term from a conversation.
Each fact must stand alone without conversational context (no pronouns referring outside the fact, no "as mentioned above").
Greetings, small talk, and purely procedural exchanges yield no facts — return an empty list rather than inventing one.
Respond with JSON matching the given schema only.`

const retryInstruction = "Your previous response was not valid JSON matching the schema. Respond with valid JSON only — no prose, no code fences."

// Extract runs the Fact Extractor protocol (spec.md §4.5) over messages.
func Extract(ctx context.Context, client llm.Provider, messages []types.Message, opts Options) Result {
	normalized := normalize(messages, opts)
	if len(normalized) == 0 {
		return Result{}
	}

	conversation := render(normalized)
	base := []types.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: conversation},
	}

	facts, err := callAndParse(ctx, client, base)
	if err == nil {
		return Result{Facts: facts}
	}

	retryMessages := append(append([]types.Message{}, base...), types.Message{Role: "user", Content: retryInstruction})
	facts, err = callAndParse(ctx, client, retryMessages)
	if err == nil {
		return Result{Facts: facts}
	}

	return Result{Warning: errs.ExtractionError("fact extraction gave up after one retry", err)}
}

func callAndParse(ctx context.Context, client llm.Provider, messages []types.Message) ([]string, error) {
	text, err := llm.Generate(ctx, client, messages, factSchema)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	var resp factResponse
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &resp); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return resp.Facts, nil
}

// normalize strips system messages by default, or applies the explicit
// include/exclude role lists when given (spec.md §4.5 step 1).
func normalize(messages []types.Message, opts Options) []types.Message {
	include := toSet(opts.IncludeRoles)
	exclude := toSet(opts.ExcludeRoles)
	if len(include) == 0 && len(exclude) == 0 {
		exclude = map[string]bool{"system": true}
	}

	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if len(include) > 0 && !include[m.Role] {
			continue
		}
		if exclude[m.Role] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func toSet(roles []string) map[string]bool {
	if len(roles) == 0 {
		return nil
	}
	s := make(map[string]bool, len(roles))
	for _, r := range roles {
		s[r] = true
	}
	return s
}

// render builds the canonical "role: content" text block (spec.md §4.5 step 2).
func render(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
