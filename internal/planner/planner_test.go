package planner_test

import (
	"context"
	"testing"

	"github.com/powermem-ai/powermem/internal/planner"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/memory/mock"
)

func TestDecide_NativeWhenEligible(t *testing.T) {
	caps := memory.Collection{SupportsNativeHybrid: true, SupportsSparse: true}
	req := planner.Request{Filter: memory.Eq("user_id", "u1")}
	plan := planner.Decide(caps, req)
	if plan.Path != planner.PathNative {
		t.Fatalf("path = %q, want native", plan.Path)
	}
}

func TestDecide_FallbackWhenEngineLacksNativeHybrid(t *testing.T) {
	caps := memory.Collection{SupportsNativeHybrid: false}
	plan := planner.Decide(caps, planner.Request{})
	if plan.Path != planner.PathFallback {
		t.Fatalf("path = %q, want fallback", plan.Path)
	}
}

func TestDecide_FallbackOnThreshold(t *testing.T) {
	caps := memory.Collection{SupportsNativeHybrid: true}
	plan := planner.Decide(caps, planner.Request{Threshold: 0.5})
	if plan.Path != planner.PathFallback {
		t.Fatalf("path = %q, want fallback", plan.Path)
	}
}

func TestDecide_FallbackOnMetadataFilter(t *testing.T) {
	caps := memory.Collection{SupportsNativeHybrid: true}
	plan := planner.Decide(caps, planner.Request{Filter: memory.Eq("custom_tag", "x")})
	if plan.Path != planner.PathFallback {
		t.Fatalf("path = %q, want fallback", plan.Path)
	}
}

func TestDecide_FallbackWhenSparseRequestedButUnsupported(t *testing.T) {
	caps := memory.Collection{SupportsNativeHybrid: true, SupportsSparse: false}
	plan := planner.Decide(caps, planner.Request{Sparse: memory.SparseVector{1: 0.5}})
	if plan.Path != planner.PathFallback {
		t.Fatalf("path = %q, want fallback", plan.Path)
	}
}

func TestExecute_NativeFallbackEquivalence(t *testing.T) {
	ctx := context.Background()

	owner := memory.Owner{UserID: "u1"}
	seed := []*memory.MemoryRecord{
		{ID: 1, Content: "coffee", DenseEmbedding: []float32{1, 0}, Owner: owner, Scope: memory.ScopePrivate},
		{ID: 2, Content: "tea", DenseEmbedding: []float32{0, 1}, Owner: owner, Scope: memory.ScopePrivate},
	}

	nativeStore := mock.New(memory.Collection{Name: "c", DenseDimension: 2, SupportsNativeHybrid: true})
	for _, r := range seed {
		cp := *r
		if _, err := nativeStore.Insert(ctx, []*memory.MemoryRecord{&cp}); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}

	fallbackStore := mock.New(memory.Collection{Name: "c", DenseDimension: 2, SupportsNativeHybrid: false})
	for _, r := range seed {
		cp := *r
		if _, err := fallbackStore.Insert(ctx, []*memory.MemoryRecord{&cp}); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}

	req := planner.Request{
		Dense:  []float32{1, 0},
		Text:   "coffee",
		Filter: memory.Eq("user_id", "u1"),
		K:      10,
	}

	nativeResults, err := planner.Execute(ctx, nativeStore, req)
	if err != nil {
		t.Fatalf("native execute: %v", err)
	}
	fallbackResults, err := planner.Execute(ctx, fallbackStore, req)
	if err != nil {
		t.Fatalf("fallback execute: %v", err)
	}

	nativeIDs := idSet(nativeResults)
	fallbackIDs := idSet(fallbackResults)
	if len(nativeIDs) != len(fallbackIDs) {
		t.Fatalf("result set sizes differ: native=%d fallback=%d", len(nativeIDs), len(fallbackIDs))
	}
	for id := range nativeIDs {
		if !fallbackIDs[id] {
			t.Errorf("id %d present in native but not fallback result set", id)
		}
	}
}

func idSet(recs []*memory.MemoryRecord) map[int64]bool {
	s := make(map[int64]bool, len(recs))
	for _, r := range recs {
		s[r.ID] = true
	}
	return s
}
