// Package reconcile implements the Reconciler (spec.md §4.6): given
// candidate facts from the Fact Extractor, it asks the LLM to decide which
// existing memories each fact should add, update, delete, or leave alone,
// then applies the resulting update graph to the Storage Engine.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/idgen"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/provider/embeddings"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	"github.com/powermem-ai/powermem/pkg/types"
)

// defaultTopN is the number of neighbor records fetched per new fact
// (spec.md §4.6 step 1).
const defaultTopN = 5

// EventKind is one of the four update-graph outcomes the LLM may choose.
type EventKind string

const (
	EventAdd    EventKind = "ADD"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
	EventNone   EventKind = "NONE"
)

// EventSummary is one applied (or no-op) entry in the per-event summary
// returned by [Reconcile] (spec.md §4.6 step 5).
type EventSummary struct {
	ID           int64
	Event        EventKind
	MemoryText   string
	PreviousText string // set only for UPDATE and DELETE
	Reason       string // "duplicate" for hash-dedup downgrades, else empty
}

// Options configures a reconcile call.
type Options struct {
	// TopN is the number of neighbor records retrieved per new fact. Zero
	// uses the spec default of 5.
	TopN int
}

type graphEvent struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Event     string `json:"event"`
	OldMemory string `json:"old_memory,omitempty"`
}

type graphResponse struct {
	Memory []graphEvent `json:"memory"`
}

var graphSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"memory": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":         map[string]any{"type": "string"},
					"text":       map[string]any{"type": "string"},
					"event":      map[string]any{"type": "string", "enum": []string{"ADD", "UPDATE", "DELETE", "NONE"}},
					"old_memory": map[string]any{"type": "string"},
				},
				"required": []string{"id", "text", "event"},
			},
		},
	},
	"required": []string{"memory"},
}

const systemPrompt = `You maintain a long-term memory store for a conversational agent.
You are given a list of newly observed facts and a list of existing memories that are semantically related to them.
For every new fact, decide exactly one action:
  ADD - the fact is genuinely new information, not covered by any existing memory.
  UPDATE - the fact refines, corrects, or supersedes exactly one existing memory; put that memory's id in "id" and the merged text in "text".
  DELETE - the fact contradicts and invalidates an existing memory, which should be removed; put that memory's id in "id".
  NONE - the fact duplicates an existing memory and requires no change.
For ADD, set "id" to the literal string "new".
Respond with JSON matching the given schema only, one entry per decision you make.`

const retryInstruction = "Your previous response was not valid JSON matching the schema. Respond with valid JSON only — no prose, no code fences."

// Reconcile runs the Reconciler protocol over newFacts within the given
// identity scope, mutating store and returning the per-event summary.
//
// On LLM schema-validation failure (after one retry), the entire batch is
// aborted with no partial apply and a *errs.Error (Kind == errs.KindReconcile)
// is returned (spec.md §4.6 failure model).
func Reconcile(
	ctx context.Context,
	store memory.Store,
	embedder embeddings.Provider,
	client llm.Provider,
	ids *idgen.Generator,
	owner memory.Owner,
	scope memory.Scope,
	newFacts []string,
	opts Options,
) ([]EventSummary, error) {
	if len(newFacts) == 0 {
		return nil, nil
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	neighbors, err := gatherNeighbors(ctx, store, embedder, owner, newFacts, topN)
	if err != nil {
		return nil, fmt.Errorf("reconcile: gather neighbors: %w", err)
	}

	graph, err := callGraph(ctx, client, newFacts, neighbors)
	if err != nil {
		return nil, errs.ReconcileError("update-graph LLM call failed after retry", err)
	}

	return applyGraph(ctx, store, embedder, ids, owner, scope, neighbors, graph)
}

// gatherNeighbors fetches, per fact, the top-N identity-scoped neighbors and
// returns their dedup'd union keyed by id (spec.md §4.6 steps 1-2).
func gatherNeighbors(
	ctx context.Context,
	store memory.Store,
	embedder embeddings.Provider,
	owner memory.Owner,
	facts []string,
	topN int,
) (map[int64]*memory.MemoryRecord, error) {
	embeddedFacts, err := embedder.EmbedBatch(ctx, facts)
	if err != nil {
		return nil, fmt.Errorf("embed facts: %w", err)
	}

	byID := make(map[int64]*memory.MemoryRecord)
	visibility := memory.OwnerVisibilityFilter(owner)
	for _, vec := range embeddedFacts {
		results, err := store.VectorSearch(ctx, vec, memory.VectorSearchOptions{
			Filter: visibility,
			K:      topN,
		})
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for _, r := range results {
			byID[r.ID] = r
		}
	}
	return byID, nil
}

// callGraph invokes the LLM with the update-graph prompt, retrying once on a
// schema-parse failure (spec.md §4.6 step 3).
func callGraph(ctx context.Context, client llm.Provider, facts []string, neighbors map[int64]*memory.MemoryRecord) (*graphResponse, error) {
	userMsg := renderGraphPrompt(facts, neighbors)
	base := []types.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMsg},
	}

	graph, err := generateGraph(ctx, client, base)
	if err == nil {
		return graph, nil
	}

	retryMessages := append(append([]types.Message{}, base...), types.Message{Role: "user", Content: retryInstruction})
	graph, err = generateGraph(ctx, client, retryMessages)
	if err != nil {
		return nil, err
	}
	return graph, nil
}

func generateGraph(ctx context.Context, client llm.Provider, messages []types.Message) (*graphResponse, error) {
	text, err := llm.Generate(ctx, client, messages, graphSchema)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	var resp graphResponse
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &resp); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &resp, nil
}

func renderGraphPrompt(facts []string, neighbors map[int64]*memory.MemoryRecord) string {
	var b strings.Builder
	b.WriteString("New facts:\n")
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	b.WriteString("\nExisting memories:\n")
	if len(neighbors) == 0 {
		b.WriteString("(none)\n")
	}
	for id, r := range neighbors {
		fmt.Fprintf(&b, "- id=%d: %s\n", id, r.Content)
	}
	return b.String()
}

// applyGraph applies each event in LLM-returned order, transactionally per
// fact (spec.md §4.6 step 4).
func applyGraph(
	ctx context.Context,
	store memory.Store,
	embedder embeddings.Provider,
	ids *idgen.Generator,
	owner memory.Owner,
	scope memory.Scope,
	neighbors map[int64]*memory.MemoryRecord,
	graph *graphResponse,
) ([]EventSummary, error) {
	summaries := make([]EventSummary, 0, len(graph.Memory))

	for _, ev := range graph.Memory {
		switch EventKind(ev.Event) {
		case EventAdd:
			summary, err := applyAdd(ctx, store, embedder, ids, owner, scope, neighbors, ev)
			if err != nil {
				return nil, fmt.Errorf("apply ADD: %w", err)
			}
			summaries = append(summaries, summary)

		case EventUpdate:
			summary, err := applyUpdate(ctx, store, embedder, owner, neighbors, ev)
			if err != nil {
				return nil, fmt.Errorf("apply UPDATE: %w", err)
			}
			summaries = append(summaries, summary)

		case EventDelete:
			summary, err := applyDelete(ctx, store, owner, neighbors, ev)
			if err != nil {
				return nil, fmt.Errorf("apply DELETE: %w", err)
			}
			summaries = append(summaries, summary)

		case EventNone:
			summaries = append(summaries, EventSummary{Event: EventNone, MemoryText: ev.Text})

		default:
			return nil, fmt.Errorf("unknown event kind %q", ev.Event)
		}
	}
	return summaries, nil
}

func applyAdd(
	ctx context.Context,
	store memory.Store,
	embedder embeddings.Provider,
	ids *idgen.Generator,
	owner memory.Owner,
	scope memory.Scope,
	neighbors map[int64]*memory.MemoryRecord,
	ev graphEvent,
) (EventSummary, error) {
	hash := memory.NormalizedHash(ev.Text)
	for _, n := range neighbors {
		if n.Hash == hash {
			return EventSummary{ID: n.ID, Event: EventNone, MemoryText: ev.Text, Reason: "duplicate"}, nil
		}
	}

	vec, err := embedder.Embed(ctx, ev.Text)
	if err != nil {
		return EventSummary{}, fmt.Errorf("embed: %w", err)
	}

	now := time.Now()
	record := &memory.MemoryRecord{
		ID:             ids.Next(),
		Content:        ev.Text,
		Hash:           hash,
		DenseEmbedding: vec,
		Owner:          owner,
		Scope:          scope,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := store.Insert(ctx, []*memory.MemoryRecord{record}); err != nil {
		return EventSummary{}, fmt.Errorf("insert: %w", err)
	}
	return EventSummary{ID: record.ID, Event: EventAdd, MemoryText: ev.Text}, nil
}

func applyUpdate(
	ctx context.Context,
	store memory.Store,
	embedder embeddings.Provider,
	owner memory.Owner,
	neighbors map[int64]*memory.MemoryRecord,
	ev graphEvent,
) (EventSummary, error) {
	id, err := strconv.ParseInt(ev.ID, 10, 64)
	if err != nil {
		return EventSummary{}, fmt.Errorf("UPDATE event with non-numeric id %q: %w", ev.ID, err)
	}

	vec, err := embedder.Embed(ctx, ev.Text)
	if err != nil {
		return EventSummary{}, fmt.Errorf("embed: %w", err)
	}

	updated, err := store.Update(ctx, id, ev.Text, vec, nil, owner)
	if err != nil {
		return EventSummary{}, fmt.Errorf("update %d: %w", id, err)
	}

	previous := ""
	if n, ok := neighbors[id]; ok {
		previous = n.Content
	}
	return EventSummary{ID: updated.ID, Event: EventUpdate, MemoryText: ev.Text, PreviousText: previous}, nil
}

func applyDelete(ctx context.Context, store memory.Store, owner memory.Owner, neighbors map[int64]*memory.MemoryRecord, ev graphEvent) (EventSummary, error) {
	id, err := strconv.ParseInt(ev.ID, 10, 64)
	if err != nil {
		return EventSummary{}, fmt.Errorf("DELETE event with non-numeric id %q: %w", ev.ID, err)
	}
	if err := store.Delete(ctx, id, owner); err != nil {
		return EventSummary{}, fmt.Errorf("delete %d: %w", id, err)
	}
	previous := ""
	if n, ok := neighbors[id]; ok {
		previous = n.Content
	}
	return EventSummary{ID: id, Event: EventDelete, PreviousText: previous}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
