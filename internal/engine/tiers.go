package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/evermem/evermem/internal/llm"
	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// Retrieval tier identifiers.
const (
	TierSummaries = 1
	TierEntities  = 2
	TierFusion    = 3
)

const (
	topEntityLimit   = 10
	minTier2Records  = 3
	fullConfidenceAt = 5
)

// OrchestratorConfig configures the tiered retrieval orchestrator.
type OrchestratorConfig struct {
	// Mode is accurate or fast. Fast mode replaces the model-based
	// sufficiency judgment with heuristics and skips straight to fusion
	// for entity-naming queries.
	Mode string

	// SufficiencyConfidence is the minimum confidence for the tier 1
	// summary judgment to stop escalation. Default 0.7.
	SufficiencyConfidence float64

	// EntityCoverage is the fraction of query-named entities that tier 2
	// results must cover. Default 0.7.
	EntityCoverage float64
}

func (c *OrchestratorConfig) normalize() {
	if c.Mode == "" {
		c.Mode = ModeAccurate
	}
	if c.SufficiencyConfidence <= 0 {
		c.SufficiencyConfidence = 0.7
	}
	if c.EntityCoverage <= 0 {
		c.EntityCoverage = 0.7
	}
}

// RetrievalResult is the outcome of a tiered retrieval: which tier answered,
// its confidence, and the material that tier produced.
type RetrievalResult struct {
	Tier       int
	Confidence float64

	Summaries []types.CategorySummary // tier 1
	Records   []*types.Record         // tier 2
	Results   []FusionResult          // tier 3
}

// Orchestrator escalates through three retrieval tiers, trying each only
// when the previous one is judged insufficient. One implementation serves
// both modes; the mode flag only changes the sufficiency judgment and the
// entity-query shortcut.
type Orchestrator struct {
	store     storage.Store
	generator llm.TextGenerator
	fusion    *Fusion
	cfg       OrchestratorConfig
}

// NewOrchestrator creates a tiered retrieval orchestrator.
func NewOrchestrator(store storage.Store, generator llm.TextGenerator, fusion *Fusion, cfg OrchestratorConfig) *Orchestrator {
	cfg.normalize()
	return &Orchestrator{store: store, generator: generator, fusion: fusion, cfg: cfg}
}

// Retrieve answers the query from the cheapest sufficient tier.
// queryEmbedding may be nil or zero; the vector channel then stays quiet.
func (o *Orchestrator) Retrieve(ctx context.Context, ownerID, query string, queryEmbedding []float32) (*RetrievalResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}

	names := extractEntityNames(query)

	// Specific lookups need exact results; fast mode goes straight to
	// fusion when the query names entities.
	if o.cfg.Mode == ModeFast && len(names) > 0 {
		return o.tier3(ctx, ownerID, query, queryEmbedding)
	}

	// Tier 1: pre-aggregated category summaries.
	categories := topCategories(query, 3)
	if len(categories) > 0 {
		summaries, err := o.store.GetSummaries(ctx, ownerID, categories)
		if err != nil {
			return nil, fmt.Errorf("engine: fetch summaries: %w", err)
		}
		if len(summaries) > 0 {
			sufficient, confidence := o.judgeSummaries(ctx, query, names, summaries)
			if sufficient && confidence >= o.cfg.SufficiencyConfidence {
				return &RetrievalResult{
					Tier:       TierSummaries,
					Confidence: confidence,
					Summaries:  summaries,
				}, nil
			}
		}
	}

	// Tier 2: top entities by importance then mentions.
	records, err := o.store.TopRecords(ctx, ownerID, topEntityLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: fetch top records: %w", err)
	}
	// judgeTopRecords carries its own sufficiency criteria (coverage for
	// entity queries, record count otherwise); its confidence is reported,
	// not re-gated.
	if sufficient, confidence := judgeTopRecords(names, records, o.cfg.EntityCoverage); sufficient {
		return &RetrievalResult{
			Tier:       TierEntities,
			Confidence: confidence,
			Records:    records,
		}, nil
	}

	// Tier 3: full hybrid fusion.
	return o.tier3(ctx, ownerID, query, queryEmbedding)
}

func (o *Orchestrator) tier3(ctx context.Context, ownerID, query string, queryEmbedding []float32) (*RetrievalResult, error) {
	results, err := o.fusion.Retrieve(ctx, ownerID, query, queryEmbedding)
	if err != nil {
		return nil, err
	}
	return &RetrievalResult{
		Tier:       TierFusion,
		Confidence: 1.0,
		Results:    results,
	}, nil
}

// judgeSummaries decides whether the category summaries alone answer the
// query. Accurate mode asks the model and degrades to the heuristic when the
// provider fails.
func (o *Orchestrator) judgeSummaries(ctx context.Context, query string, names []string, summaries []types.CategorySummary) (bool, float64) {
	if o.cfg.Mode == ModeAccurate && o.generator != nil {
		var sb strings.Builder
		for _, s := range summaries {
			fmt.Fprintf(&sb, "[%s] %s\n", s.Category, s.Summary)
		}

		raw, err := o.generator.Complete(ctx, llm.SufficiencyPrompt(query, sb.String()))
		if err == nil {
			if resp, perr := llm.ParseSufficiency(raw); perr == nil {
				return resp.Sufficient, resp.Confidence
			}
		} else {
			log.Printf("WARNING: sufficiency model unavailable, using heuristic: %v", err)
		}
	}

	// Heuristic: summaries answer broad topical queries, never ones that
	// name specific entities.
	if len(names) > 0 {
		return false, 0
	}
	confidence := 0.5 + 0.15*float64(len(summaries))
	if confidence > 1.0 {
		confidence = 1.0
	}
	return true, confidence
}

// judgeTopRecords decides whether the top-entity list answers the query.
// When the query names entities, coverage of those names drives the result;
// otherwise sufficiency scales with the number of records, reaching full
// confidence at five.
func judgeTopRecords(names []string, records []*types.Record, requiredCoverage float64) (bool, float64) {
	if len(names) > 0 {
		covered := 0
		for _, name := range names {
			lower := strings.ToLower(name)
			for _, rec := range records {
				if strings.Contains(strings.ToLower(rec.Name), lower) {
					covered++
					break
				}
			}
		}
		coverage := float64(covered) / float64(len(names))
		return coverage >= requiredCoverage, coverage
	}

	if len(records) < minTier2Records {
		return false, 0
	}
	confidence := float64(len(records)) / float64(fullConfidenceAt)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return true, confidence
}
