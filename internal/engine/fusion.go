package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// FusionConfig configures hybrid retrieval weighting.
//
// The default configuration is graph/direct-only: direct=0.5, graph=0.5,
// vector disabled. ThreeWayConfig returns the alternate preset with the
// vector channel enabled.
type FusionConfig struct {
	DirectWeight float64
	VectorWeight float64
	GraphWeight  float64

	// EnableVector turns the vector channel on. When false the vector
	// weight is ignored entirely.
	EnableVector bool

	// VectorThreshold is the minimum cosine similarity for vector hits.
	VectorThreshold float64

	// GraphDepth and GraphMinStrength bound the traversal channel.
	GraphDepth       int
	GraphMinStrength float64

	// Limit bounds each channel and the merged output. Default 20.
	Limit int
}

// DefaultFusionConfig returns the graph/direct-only configuration.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		DirectWeight:     0.5,
		GraphWeight:      0.5,
		VectorWeight:     0,
		EnableVector:     false,
		VectorThreshold:  0.4,
		GraphDepth:       2,
		GraphMinStrength: 0.3,
		Limit:            20,
	}
}

// ThreeWayConfig returns the preset with all three channels weighted.
func ThreeWayConfig() FusionConfig {
	cfg := DefaultFusionConfig()
	cfg.DirectWeight = 0.4
	cfg.VectorWeight = 0.3
	cfg.GraphWeight = 0.3
	cfg.EnableVector = true
	return cfg
}

func (c *FusionConfig) normalize() {
	if c.VectorThreshold <= 0 {
		c.VectorThreshold = 0.4
	}
	if c.GraphDepth <= 0 {
		c.GraphDepth = 2
	}
	if c.GraphMinStrength <= 0 {
		c.GraphMinStrength = 0.3
	}
	if c.Limit <= 0 {
		c.Limit = 20
	}
}

// FusionResult is one retrieved record with its combined score, the
// channels that found it, and per-channel sub-scores for explainability.
type FusionResult struct {
	Record        *types.Record
	CombinedScore float64
	Sources       []string
	SubScores     map[string]float64
}

// Fusion runs direct, vector, and graph retrieval and merges the hits into
// one ranked list by additive weighted score.
type Fusion struct {
	store storage.Store
	cfg   FusionConfig
}

// NewFusion creates a hybrid fusion retriever.
func NewFusion(store storage.Store, cfg FusionConfig) *Fusion {
	cfg.normalize()
	return &Fusion{store: store, cfg: cfg}
}

// Retrieve runs the configured channels for the query and returns merged
// results sorted by combined score descending. The direct and vector
// channels run concurrently; graph traversal follows because it seeds from
// their hits, fanning out one goroutine per seed. Graph-only hits are
// hydrated in a single batch fetch after merging.
func (f *Fusion) Retrieve(ctx context.Context, ownerID, query string, queryEmbedding []float32) ([]FusionResult, error) {
	names := extractEntityNames(query)

	var (
		wg         sync.WaitGroup
		directHits []*types.Record
		vectorHits []storage.ScoredRecord
		directErr  error
		vectorErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		directHits, directErr = f.direct(ctx, ownerID, query, names)
	}()

	if f.cfg.EnableVector && !storage.IsZeroVector(queryEmbedding) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorHits, vectorErr = f.store.SimilaritySearch(ctx, ownerID, queryEmbedding, storage.SimilarityOptions{
				Threshold: f.cfg.VectorThreshold,
				Limit:     f.cfg.Limit,
			})
		}()
	}

	wg.Wait()
	if directErr != nil {
		return nil, fmt.Errorf("engine: direct retrieval: %w", directErr)
	}
	if vectorErr != nil {
		return nil, fmt.Errorf("engine: vector retrieval: %w", vectorErr)
	}

	seeds := make([]string, 0, len(directHits)+len(vectorHits))
	seen := make(map[string]bool)
	for _, rec := range directHits {
		if !seen[rec.ID] {
			seen[rec.ID] = true
			seeds = append(seeds, rec.ID)
		}
	}
	for _, hit := range vectorHits {
		if !seen[hit.Record.ID] {
			seen[hit.Record.ID] = true
			seeds = append(seeds, hit.Record.ID)
		}
	}

	graphScores, err := f.traverse(ctx, ownerID, seeds)
	if err != nil {
		return nil, err
	}

	merged := f.merge(directHits, vectorHits, graphScores)

	if err := f.hydrate(ctx, ownerID, merged); err != nil {
		return nil, err
	}

	results := make([]FusionResult, 0, len(merged))
	for _, r := range merged {
		if r.Record == nil {
			continue
		}
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].Record.ID < results[j].Record.ID
	})

	if len(results) > f.cfg.Limit {
		results = results[:f.cfg.Limit]
	}

	return results, nil
}

// direct fuzzy-matches the query and any entity names it contains against
// active record names.
func (f *Fusion) direct(ctx context.Context, ownerID, query string, names []string) ([]*types.Record, error) {
	terms := append([]string{}, names...)
	if len(terms) == 0 {
		terms = append(terms, query)
	}

	var hits []*types.Record
	seen := make(map[string]bool)
	for _, term := range terms {
		recs, err := f.store.FindByName(ctx, ownerID, term, f.cfg.Limit)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if !seen[rec.ID] {
				seen[rec.ID] = true
				hits = append(hits, rec)
			}
		}
	}

	return hits, nil
}

// traverse walks the graph from every seed concurrently and keeps the
// strongest path score per reached record. Each traversal excludes its own
// origin, but a seed reached from another seed still scores.
func (f *Fusion) traverse(ctx context.Context, ownerID string, seeds []string) (map[string]float64, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	bounds := storage.TraversalBounds{
		MaxDepth:    f.cfg.GraphDepth,
		MinStrength: f.cfg.GraphMinStrength,
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		scores   = make(map[string]float64)
		firstErr error
	)

	for _, seed := range seeds {
		wg.Add(1)
		go func(seed string) {
			defer wg.Done()
			paths, err := f.store.Traverse(ctx, ownerID, seed, bounds)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for _, p := range paths {
				if p.Strength > scores[p.TargetID] {
					scores[p.TargetID] = p.Strength
				}
			}
		}(seed)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, fmt.Errorf("engine: graph retrieval: %w", firstErr)
	}

	return scores, nil
}

// merge folds the channels into one map keyed by record id. Scores
// accumulate additively: combined += channel_score · channel_weight.
func (f *Fusion) merge(directHits []*types.Record, vectorHits []storage.ScoredRecord, graphScores map[string]float64) map[string]*FusionResult {
	merged := make(map[string]*FusionResult)

	fold := func(id string, rec *types.Record, source string, score, weight float64) {
		r, ok := merged[id]
		if !ok {
			r = &FusionResult{SubScores: make(map[string]float64)}
			merged[id] = r
		}
		if rec != nil {
			r.Record = rec
		}
		r.CombinedScore += score * weight
		r.Sources = append(r.Sources, source)
		r.SubScores[source] = score
	}

	for _, rec := range directHits {
		fold(rec.ID, rec, "direct", 1.0, f.cfg.DirectWeight)
	}
	if f.cfg.EnableVector {
		for _, hit := range vectorHits {
			fold(hit.Record.ID, hit.Record, "vector", hit.Similarity, f.cfg.VectorWeight)
		}
	}
	for id, strength := range graphScores {
		fold(id, nil, "graph", strength, f.cfg.GraphWeight)
	}

	return merged
}

// hydrate batch-fetches the records for graph-only hits.
func (f *Fusion) hydrate(ctx context.Context, ownerID string, merged map[string]*FusionResult) error {
	var missing []string
	for id, r := range merged {
		if r.Record == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	recs, err := f.store.GetRecords(ctx, ownerID, missing)
	if err != nil {
		return fmt.Errorf("engine: hydrate graph hits: %w", err)
	}
	for _, rec := range recs {
		if r, ok := merged[rec.ID]; ok {
			r.Record = rec
		}
	}

	return nil
}
