package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/internal/reconcile"
	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/idgen"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/memory/mock"
	embeddingmock "github.com/powermem-ai/powermem/pkg/provider/embeddings/mock"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	llmmock "github.com/powermem-ai/powermem/pkg/provider/llm/mock"
	rerankmock "github.com/powermem-ai/powermem/pkg/provider/reranker/mock"
	"github.com/powermem-ai/powermem/pkg/types"
)

func newIDs(t *testing.T) *idgen.Generator {
	t.Helper()
	g, err := idgen.New(1)
	if err != nil {
		t.Fatalf("idgen.New: %v", err)
	}
	return g
}

func newCollection() memory.Collection {
	return memory.Collection{Name: "c", DenseDimension: 2, SupportsNativeHybrid: true}
}

// sequencedLLM returns one CompletionResponse per call, in order, looping on
// the last entry once exhausted. Used where the Fact Extractor and the
// Reconciler must see different canned responses from the same provider.
type sequencedLLM struct {
	llmmock.Provider
	responses []*llm.CompletionResponse
	calls     int
}

func (s *sequencedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	_, _ = s.Provider.Complete(ctx, req) // preserve call recording
	return s.responses[idx], nil
}

func TestAdd_DirectInsertsRawText(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	emb := &embeddingmock.Provider{EmbedResult: []float32{1, 0}}
	client := &llmmock.Provider{}

	c := core.New(store, emb, client, newIDs(t))
	owner := memory.Owner{UserID: "u1"}

	res, err := c.Add(context.Background(), core.AddRequest{
		Owner: owner,
		Infer: false,
		Text:  "likes espresso",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].Event != reconcile.EventAdd {
		t.Fatalf("events = %+v, want one ADD", res.Events)
	}

	stats, err := store.Statistics(context.Background(), memory.Filter{})
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Count != 1 {
		t.Errorf("store count = %d, want 1", stats.Count)
	}
}

func TestAdd_DirectDedupsOnSecondCall(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	emb := &embeddingmock.Provider{EmbedResult: []float32{1, 0}}
	client := &llmmock.Provider{}

	c := core.New(store, emb, client, newIDs(t))
	owner := memory.Owner{UserID: "u1"}

	first, err := c.Add(context.Background(), core.AddRequest{Owner: owner, Infer: false, Text: "likes espresso"})
	if err != nil {
		t.Fatalf("first Add: %v", err)
	}

	second, err := c.Add(context.Background(), core.AddRequest{Owner: owner, Infer: false, Text: "likes espresso"})
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if second.Events[0].Event != reconcile.EventNone {
		t.Errorf("second event = %v, want NONE", second.Events[0].Event)
	}
	if second.Events[0].ID != first.Events[0].ID {
		t.Errorf("second ID = %d, want %d (same record)", second.Events[0].ID, first.Events[0].ID)
	}

	stats, err := store.Statistics(context.Background(), memory.Filter{})
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Count != 1 {
		t.Errorf("store count = %d, want 1 (no duplicate inserted)", stats.Count)
	}
}

func TestAdd_InferRunsExtractAndReconcile(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	emb := &embeddingmock.Provider{
		EmbedResult:      []float32{1, 0},
		EmbedBatchResult: [][]float32{{1, 0}},
	}
	client := &sequencedLLM{responses: []*llm.CompletionResponse{
		{Content: `{"facts": ["likes espresso"]}`},
		{Content: `{"memory": [{"id": "new", "text": "likes espresso", "event": "ADD"}]}`},
	}}

	c := core.New(store, emb, client, newIDs(t))
	owner := memory.Owner{UserID: "u1"}

	res, err := c.Add(context.Background(), core.AddRequest{
		Owner: owner,
		Infer: true,
		Messages: []types.Message{
			{Role: "user", Content: "I love espresso"},
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].Event != reconcile.EventAdd {
		t.Fatalf("events = %+v, want one ADD", res.Events)
	}
}

func TestAdd_ReconcileErrorSurfaces(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	emb := &embeddingmock.Provider{EmbedBatchResult: [][]float32{{1, 0}}}
	client := &sequencedLLM{responses: []*llm.CompletionResponse{
		{Content: `{"facts": ["likes espresso"]}`},
		{Content: "not json"},
	}}

	c := core.New(store, emb, client, newIDs(t))
	owner := memory.Owner{UserID: "u1"}

	_, err := c.Add(context.Background(), core.AddRequest{
		Owner: owner,
		Infer: true,
		Messages: []types.Message{
			{Role: "user", Content: "I love espresso"},
		},
	})
	if err == nil {
		t.Fatal("expected ReconcileError to surface")
	}
	var typed *errs.Error
	if !errors.As(err, &typed) || typed.Kind != errs.KindReconcile {
		t.Errorf("err = %v, want *errs.Error{Kind: KindReconcile}", err)
	}
}

func TestSearch_ScopesToOwnerAndStripsEmbeddings(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	owner1 := memory.Owner{UserID: "u1"}
	owner2 := memory.Owner{UserID: "u2"}

	seed := []*memory.MemoryRecord{
		{ID: 1, Content: "likes coffee", Hash: memory.NormalizedHash("likes coffee"), DenseEmbedding: []float32{1, 0}, Owner: owner1, Scope: memory.ScopePrivate},
		{ID: 2, Content: "likes tea", Hash: memory.NormalizedHash("likes tea"), DenseEmbedding: []float32{1, 0}, Owner: owner2, Scope: memory.ScopePrivate},
	}
	if _, err := store.Insert(context.Background(), seed); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{EmbedResult: []float32{1, 0}}
	client := &llmmock.Provider{}
	c := core.New(store, emb, client, newIDs(t))

	results, err := c.Search(context.Background(), core.SearchRequest{Query: "beverage", Owner: owner1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("results = %+v, want only record 1", results)
	}
	if results[0].DenseEmbedding != nil {
		t.Error("DenseEmbedding should be stripped from search results")
	}
}

func TestSearch_RerankFallsBackOnProviderError(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	owner := memory.Owner{UserID: "u1"}
	seed := &memory.MemoryRecord{ID: 1, Content: "likes coffee", Hash: memory.NormalizedHash("likes coffee"), DenseEmbedding: []float32{1, 0}, Owner: owner, Scope: memory.ScopePrivate}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{seed}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{EmbedResult: []float32{1, 0}}
	client := &llmmock.Provider{}
	rr := &rerankmock.Provider{RerankErr: errors.New("reranker unavailable")}

	c := core.New(store, emb, client, newIDs(t), core.WithReranker(rr))
	results, err := c.Search(context.Background(), core.SearchRequest{Query: "coffee", Owner: owner, Rerank: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("results = %+v, want record 1 despite reranker failure", results)
	}
}

func TestGet_NotFoundMapsToTypedError(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	emb := &embeddingmock.Provider{}
	client := &llmmock.Provider{}
	c := core.New(store, emb, client, newIDs(t))

	_, err := c.Get(context.Background(), 999, memory.Owner{UserID: "u1"})
	var typed *errs.Error
	if !errors.As(err, &typed) || typed.Kind != errs.KindNotFound {
		t.Errorf("err = %v, want *errs.Error{Kind: KindNotFound}", err)
	}
}

func TestUpdate_RecomputesEmbeddingAndTimestamp(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	owner := memory.Owner{UserID: "u1"}
	seed := &memory.MemoryRecord{ID: 1, Content: "old", Hash: memory.NormalizedHash("old"), DenseEmbedding: []float32{1, 0}, Owner: owner, Scope: memory.ScopePrivate}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{seed}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{EmbedResult: []float32{0, 1}}
	client := &llmmock.Provider{}
	c := core.New(store, emb, client, newIDs(t))

	updated, err := c.Update(context.Background(), 1, "new content", nil, owner)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "new content" {
		t.Errorf("Content = %q, want %q", updated.Content, "new content")
	}

	stored, err := store.PointGet(context.Background(), 1, owner)
	if err != nil || stored == nil {
		t.Fatalf("PointGet: record = %v, err = %v", stored, err)
	}
	if len(stored.DenseEmbedding) != 2 || stored.DenseEmbedding[0] != 0 || stored.DenseEmbedding[1] != 1 {
		t.Errorf("DenseEmbedding = %v, want [0 1]", stored.DenseEmbedding)
	}
	if stored.Hash != memory.NormalizedHash("new content") {
		t.Errorf("Hash = %q, want hash of %q", stored.Hash, "new content")
	}
	if stored.UpdatedAt.IsZero() {
		t.Error("UpdatedAt is zero, want it set by Update")
	}
}

func TestDelete_IdempotentReturnsNotFoundOnSecondCall(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	owner := memory.Owner{UserID: "u1"}
	seed := &memory.MemoryRecord{ID: 1, Content: "x", Hash: memory.NormalizedHash("x"), DenseEmbedding: []float32{1, 0}, Owner: owner, Scope: memory.ScopePrivate}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{seed}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{}
	client := &llmmock.Provider{}
	c := core.New(store, emb, client, newIDs(t))

	if err := c.Delete(context.Background(), 1, owner); err != nil {
		t.Fatalf("first Delete: %v", err)
	}

	err := c.Delete(context.Background(), 1, owner)
	var typed *errs.Error
	if !errors.As(err, &typed) || typed.Kind != errs.KindNotFound {
		t.Errorf("second Delete err = %v, want *errs.Error{Kind: KindNotFound}", err)
	}
}

func TestGetAll_SortStability(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	owner := memory.Owner{UserID: "u1"}
	for i := int64(1); i <= 3; i++ {
		rec := &memory.MemoryRecord{ID: i, Content: "x", Hash: memory.NormalizedHash("x"), DenseEmbedding: []float32{1, 0}, Owner: owner, Scope: memory.ScopePrivate}
		if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{rec}); err != nil {
			t.Fatalf("seed insert %d: %v", i, err)
		}
	}

	emb := &embeddingmock.Provider{}
	client := &llmmock.Provider{}
	c := core.New(store, emb, client, newIDs(t))

	records, err := c.GetAll(context.Background(), core.GetAllRequest{Owner: owner})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	// All three share a zero created_at, so the default created_at-desc
	// order falls back to descending id.
	for i, want := range []int64{3, 2, 1} {
		if records[i].ID != want {
			t.Errorf("records[%d].ID = %d, want %d", i, records[i].ID, want)
		}
	}
}

func TestGetStatistics_DelegatesToStore(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	owner := memory.Owner{UserID: "u1"}
	seed := &memory.MemoryRecord{ID: 1, Content: "x", Hash: memory.NormalizedHash("x"), DenseEmbedding: []float32{1, 0}, Owner: owner, Scope: memory.ScopePrivate}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{seed}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{}
	client := &llmmock.Provider{}
	c := core.New(store, emb, client, newIDs(t))

	stats, err := c.GetStatistics(context.Background(), owner)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.Count != 1 {
		t.Errorf("Count = %d, want 1", stats.Count)
	}
}

func TestReset_DropsAllRecords(t *testing.T) {
	t.Parallel()

	store := mock.New(newCollection())
	owner := memory.Owner{UserID: "u1"}
	seed := &memory.MemoryRecord{ID: 1, Content: "x", Hash: memory.NormalizedHash("x"), DenseEmbedding: []float32{1, 0}, Owner: owner, Scope: memory.ScopePrivate}
	if _, err := store.Insert(context.Background(), []*memory.MemoryRecord{seed}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	emb := &embeddingmock.Provider{}
	client := &llmmock.Provider{}
	c := core.New(store, emb, client, newIDs(t))

	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	stats, err := store.Statistics(context.Background(), memory.Filter{})
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("Count after Reset = %d, want 0", stats.Count)
	}
}
