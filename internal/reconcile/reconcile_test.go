package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/powermem-ai/powermem/internal/reconcile"
	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/idgen"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/memory/mock"
	embeddingmock "github.com/powermem-ai/powermem/pkg/provider/embeddings/mock"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	llmmock "github.com/powermem-ai/powermem/pkg/provider/llm/mock"
)

func newGenerator(t *testing.T) *idgen.Generator {
	t.Helper()
	g, err := idgen.New(1)
	if err != nil {
		t.Fatalf("idgen.New: %v", err)
	}
	return g
}

func TestReconcile_EmptyFactsNoOp(t *testing.T) {
	t.Parallel()

	store := mock.New(memory.Collection{Name: "c", DenseDimension: 2})
	emb := &embeddingmock.Provider{}
	client := &llmmock.Provider{}

	summaries, err := reconcile.Reconcile(context.Background(), store, emb, client, newGenerator(t), memory.Owner{UserID: "u1"}, memory.ScopePrivate, nil, reconcile.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summaries != nil {
		t.Errorf("summaries = %v, want nil", summaries)
	}
	if len(client.CompleteCalls) != 0 {
		t.Errorf("expected no LLM call for empty facts, got %d", len(client.CompleteCalls))
	}
}

func TestReconcile_AddsNewFact(t *testing.T) {
	t.Parallel()

	store := mock.New(memory.Collection{Name: "c", DenseDimension: 2})
	emb := &embeddingmock.Provider{
		EmbedBatchResult: [][]float32{{1, 0}},
		EmbedResult:      []float32{1, 0},
	}
	client := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"memory": [{"id": "new", "text": "likes coffee", "event": "ADD"}]}`,
		},
	}

	owner := memory.Owner{UserID: "u1"}
	summaries, err := reconcile.Reconcile(context.Background(), store, emb, client, newGenerator(t), owner, memory.ScopePrivate, []string{"likes coffee"}, reconcile.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].Event != reconcile.EventAdd {
		t.Errorf("Event = %v, want ADD", summaries[0].Event)
	}
	if summaries[0].ID == 0 {
		t.Error("expected a freshly allocated id")
	}

	stats, err := store.Statistics(context.Background(), memory.Filter{})
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Count != 1 {
		t.Fatalf("store count = %d, want 1", stats.Count)
	}
}

func TestReconcile_AddDowngradesToDuplicateOnHashMatch(t *testing.T) {
	t.Parallel()

	store := mock.New(memory.Collection{Name: "c", DenseDimension: 2})
	owner := memory.Owner{UserID: "u1"}
	existing := &memory.MemoryRecord{
		ID:             1,
		Content:        "likes coffee",
		Hash:           memory.NormalizedHash("likes coffee"),
		DenseEmbedding: []float32{1, 0},
		Owner:          owner,
		Scope:          memory.ScopePrivate,
	}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{existing}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{EmbedBatchResult: [][]float32{{1, 0}}}
	client := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"memory": [{"id": "new", "text": "likes coffee", "event": "ADD"}]}`,
		},
	}

	summaries, err := reconcile.Reconcile(context.Background(), store, emb, client, newGenerator(t), owner, memory.ScopePrivate, []string{"likes coffee"}, reconcile.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].Event != reconcile.EventNone {
		t.Errorf("Event = %v, want NONE (duplicate downgrade)", summaries[0].Event)
	}
	if summaries[0].Reason != "duplicate" {
		t.Errorf("Reason = %q, want %q", summaries[0].Reason, "duplicate")
	}
	if summaries[0].ID != existing.ID {
		t.Errorf("ID = %d, want existing id %d", summaries[0].ID, existing.ID)
	}
}

func TestReconcile_UpdateExistingMemory(t *testing.T) {
	t.Parallel()

	store := mock.New(memory.Collection{Name: "c", DenseDimension: 2})
	owner := memory.Owner{UserID: "u1"}
	existing := &memory.MemoryRecord{
		ID:             7,
		Content:        "lives in Berlin",
		Hash:           memory.NormalizedHash("lives in Berlin"),
		DenseEmbedding: []float32{1, 0},
		Owner:          owner,
		Scope:          memory.ScopePrivate,
	}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{existing}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{
		EmbedBatchResult: [][]float32{{1, 0}},
		EmbedResult:      []float32{0, 1},
	}
	client := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"memory": [{"id": "7", "text": "lives in Munich now", "event": "UPDATE", "old_memory": "lives in Berlin"}]}`,
		},
	}

	summaries, err := reconcile.Reconcile(context.Background(), store, emb, client, newGenerator(t), owner, memory.ScopePrivate, []string{"moved to Munich"}, reconcile.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	s := summaries[0]
	if s.Event != reconcile.EventUpdate || s.ID != 7 {
		t.Errorf("summary = %+v, want UPDATE id=7", s)
	}
	if s.PreviousText != "lives in Berlin" {
		t.Errorf("PreviousText = %q, want %q", s.PreviousText, "lives in Berlin")
	}

	got, err := store.PointGet(context.Background(), 7, owner)
	if err != nil {
		t.Fatalf("PointGet: %v", err)
	}
	if got.Content != "lives in Munich now" {
		t.Errorf("stored content = %q, want %q", got.Content, "lives in Munich now")
	}
}

func TestReconcile_DeleteExistingMemory(t *testing.T) {
	t.Parallel()

	store := mock.New(memory.Collection{Name: "c", DenseDimension: 2})
	owner := memory.Owner{UserID: "u1"}
	existing := &memory.MemoryRecord{
		ID:             3,
		Content:        "owns a cat",
		Hash:           memory.NormalizedHash("owns a cat"),
		DenseEmbedding: []float32{1, 0},
		Owner:          owner,
		Scope:          memory.ScopePrivate,
	}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{existing}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{EmbedBatchResult: [][]float32{{1, 0}}}
	client := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"memory": [{"id": "3", "text": "no longer owns a cat", "event": "DELETE"}]}`,
		},
	}

	summaries, err := reconcile.Reconcile(context.Background(), store, emb, client, newGenerator(t), owner, memory.ScopePrivate, []string{"gave away the cat"}, reconcile.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Event != reconcile.EventDelete {
		t.Fatalf("summaries = %+v, want one DELETE", summaries)
	}

	if got, err := store.PointGet(context.Background(), 3, owner); err != nil || got != nil {
		t.Errorf("PointGet after delete: got %+v, err = %v, want nil record and nil error", got, err)
	}
}

func TestReconcile_AbortsBatchOnUnparseableResponse(t *testing.T) {
	t.Parallel()

	store := mock.New(memory.Collection{Name: "c", DenseDimension: 2})
	emb := &embeddingmock.Provider{EmbedBatchResult: [][]float32{{1, 0}}}
	client := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "not a json object"},
	}

	owner := memory.Owner{UserID: "u1"}
	_, err := reconcile.Reconcile(context.Background(), store, emb, client, newGenerator(t), owner, memory.ScopePrivate, []string{"something"}, reconcile.Options{})
	if err == nil {
		t.Fatal("expected error on unparseable LLM response")
	}
	var typed *errs.Error
	if !errors.As(err, &typed) {
		t.Fatalf("error is not *errs.Error: %v", err)
	}
	if typed.Kind != errs.KindReconcile {
		t.Errorf("Kind = %v, want %v", typed.Kind, errs.KindReconcile)
	}
	if len(client.CompleteCalls) != 2 {
		t.Errorf("expected 1 retry (2 calls total), got %d", len(client.CompleteCalls))
	}

	stats, statErr := store.Statistics(context.Background(), memory.Filter{})
	if statErr != nil {
		t.Fatalf("Statistics: %v", statErr)
	}
	if stats.Count != 0 {
		t.Errorf("store count = %d, want 0 (no partial apply)", stats.Count)
	}
}
