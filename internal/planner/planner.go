// Package planner implements the Hybrid Query Planner (spec.md §4.4): given
// a storage backend's capabilities and a search request, it decides between
// the engine-native fused path and a client-side Reciprocal Rank Fusion
// fallback, and executes whichever it picks.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/powermem-ai/powermem/pkg/memory"
)

// rrfK is the RRF fusion constant (spec.md §4.4).
const rrfK = 60

// Request is one hybrid search request.
type Request struct {
	Dense     []float32
	Text      string
	Sparse    memory.SparseVector // nil when the sparse signal is not requested
	Filter    memory.Filter
	K         int
	Threshold float64 // 0 disables thresholding
	Weights   memory.HybridWeights
}

// Path names which execution path a [Plan] chose, exposed for /system/status
// and debug logging (spec.md §9 "expose via /system/status").
type Path string

const (
	PathNative   Path = "native"
	PathFallback Path = "fallback"
)

// Plan is the outcome of [Decide]: which path to take and why.
type Plan struct {
	Path   Path
	Reason string // populated on PathFallback
}

// Decide implements spec.md §4.4's native-path eligibility check. All four
// conditions must hold for the native path; the first failing condition
// decides the (debug-logged) reason for falling back.
func Decide(caps memory.Collection, req Request) Plan {
	if !caps.SupportsNativeHybrid {
		return Plan{Path: PathFallback, Reason: "engine does not support the fused primitive"}
	}
	if req.Sparse != nil && !caps.SupportsSparse {
		return Plan{Path: PathFallback, Reason: "sparse signal requested but collection lacks sparse support"}
	}
	if req.Threshold != 0 {
		return Plan{Path: PathFallback, Reason: "threshold argument provided"}
	}
	if !req.Filter.OnlyColumnFields() {
		return Plan{Path: PathFallback, Reason: "filter references a metadata path, not a column field"}
	}
	return Plan{Path: PathNative}
}

// Execute runs req against store, taking whichever path [Decide] selects.
// The public result shape is identical regardless of path (spec.md §4.4).
func Execute(ctx context.Context, store memory.Store, req Request) ([]*memory.MemoryRecord, error) {
	plan := Decide(store.Capabilities(), req)
	if plan.Path == PathNative {
		return executeNative(ctx, store, req)
	}
	slog.Debug("hybrid query planner: taking fallback path", "reason", plan.Reason)
	return executeFallback(ctx, store, req)
}

func executeNative(ctx context.Context, store memory.Store, req Request) ([]*memory.MemoryRecord, error) {
	records, err := store.HybridSearch(ctx, req.Dense, req.Text, memory.HybridSearchOptions{
		Filter:    req.Filter,
		K:         req.K,
		Threshold: req.Threshold,
		Weights:   req.Weights,
		Sparse:    req.Sparse,
	})
	if err != nil {
		return nil, fmt.Errorf("planner: native hybrid search: %w", err)
	}
	return records, nil
}

// executeFallback fans out dense/fulltext(/sparse) calls under one deadline
// via errgroup, then fuses the three result sets client-side with RRF.
func executeFallback(ctx context.Context, store memory.Store, req Request) ([]*memory.MemoryRecord, error) {
	var (
		denseResults    []*memory.MemoryRecord
		fulltextResults []*memory.MemoryRecord
		sparseResults   []*memory.MemoryRecord
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		res, err := store.VectorSearch(egCtx, req.Dense, memory.VectorSearchOptions{
			Filter:    req.Filter,
			K:         req.K,
			Threshold: req.Threshold,
		})
		if err != nil {
			return fmt.Errorf("dense search: %w", err)
		}
		denseResults = res
		return nil
	})

	if req.Text != "" {
		eg.Go(func() error {
			res, err := store.FulltextSearch(egCtx, req.Text, memory.FulltextSearchOptions{
				Filter: req.Filter,
				K:      req.K,
			})
			if err != nil {
				return fmt.Errorf("fulltext search: %w", err)
			}
			fulltextResults = res
			return nil
		})
	}

	if req.Sparse != nil && store.Capabilities().SupportsSparse {
		eg.Go(func() error {
			res, err := store.SparseSearch(egCtx, req.Sparse, memory.SparseSearchOptions{
				Filter: req.Filter,
				K:      req.K,
			})
			if err != nil {
				return fmt.Errorf("sparse search: %w", err)
			}
			sparseResults = res
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("planner: fallback fan-out: %w", err)
	}

	fused := fuse(req.Weights, denseResults, fulltextResults, sparseResults)
	if req.K > 0 && len(fused) > req.K {
		fused = fused[:req.K]
	}
	return fused, nil
}

// fuse combines ranked result sets with Reciprocal Rank Fusion, k=60
// (spec.md §4.4). Weights default to equal over the signals actually present.
func fuse(weights memory.HybridWeights, signals ...[]*memory.MemoryRecord) []*memory.MemoryRecord {
	w := []float64{weights.Dense, weights.Fulltext, weights.Sparse}
	present := 0
	for i, sig := range signals {
		if len(sig) > 0 {
			present++
		}
		_ = i
	}
	if w[0] == 0 && w[1] == 0 && w[2] == 0 && present > 0 {
		equal := 1.0 / float64(present)
		for i, sig := range signals {
			if len(sig) > 0 {
				w[i] = equal
			}
		}
	}

	byID := make(map[int64]*memory.MemoryRecord)
	score := make(map[int64]float64)

	for sigIdx, sig := range signals {
		for rank, rec := range sig {
			byID[rec.ID] = rec
			score[rec.ID] += w[sigIdx] * (1.0 / float64(rrfK+rank+1))
		}
	}

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := score[ids[i]], score[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] > ids[j] // tie-break: descending id
	})

	out := make([]*memory.MemoryRecord, len(ids))
	for i, id := range ids {
		rec := byID[id]
		rec.Score = score[id]
		out[i] = rec
	}
	return out
}
