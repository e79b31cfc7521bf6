package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/evermem/evermem/internal/llm"
	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// ConsolidationConfig configures a Consolidator run.
type ConsolidationConfig struct {
	// SimilarityThreshold is the cosine similarity at or above which two
	// records are merge candidates. Default 0.85.
	SimilarityThreshold float64

	// MaxMergesPerRun caps the merges performed in one run. Default 20.
	MaxMergesPerRun int

	// MentionWeight and AgeWeight are the keeper composite-score weights.
	MentionWeight float64
	AgeWeight     float64

	// MaxCandidates bounds the records loaded for the pairwise scan.
	// Default 500.
	MaxCandidates int
}

func (c *ConsolidationConfig) normalize() {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.85
	}
	if c.MaxMergesPerRun <= 0 {
		c.MaxMergesPerRun = 20
	}
	if c.MentionWeight == 0 {
		c.MentionWeight = 0.05
	}
	if c.AgeWeight == 0 {
		c.AgeWeight = 0.01
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 500
	}
}

// Consolidator merges near-duplicate active records in bounded batch runs.
type Consolidator struct {
	store     storage.Store
	generator llm.TextGenerator
	cfg       ConsolidationConfig
}

// NewConsolidator creates a consolidator. generator may be nil; merged
// summaries then fall back to concatenation.
func NewConsolidator(store storage.Store, generator llm.TextGenerator, cfg ConsolidationConfig) *Consolidator {
	cfg.normalize()
	return &Consolidator{store: store, generator: generator, cfg: cfg}
}

// MergeReport summarizes one consolidation run.
type MergeReport struct {
	Scanned int
	Merged  int
	Pairs   [][2]string // keeper id, archived id
	Errors  []error     // per-pair failures, the batch continues past them
}

// Run scans the owner's active embedded records pairwise and merges every
// pair at or above the similarity threshold, up to the per-run cap. Per-pair
// failures are collected and the batch continues.
func (c *Consolidator) Run(ctx context.Context, ownerID string) (*MergeReport, error) {
	records, err := c.store.ListActive(ctx, ownerID, storage.ListOptions{
		Limit:            c.cfg.MaxCandidates,
		RequireEmbedding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: list records for consolidation: %w", err)
	}

	report := &MergeReport{Scanned: len(records)}

	type pair struct {
		a, b       int
		similarity float64
	}

	var pairs []pair
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			sim := storage.CosineSimilarity(records[i].Embedding, records[j].Embedding)
			if sim >= c.cfg.SimilarityThreshold {
				pairs = append(pairs, pair{a: i, b: j, similarity: sim})
			}
		}
	}

	// Most similar pairs merge first; ties break by record ids so runs are
	// deterministic.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].similarity != pairs[j].similarity {
			return pairs[i].similarity > pairs[j].similarity
		}
		if records[pairs[i].a].ID != records[pairs[j].a].ID {
			return records[pairs[i].a].ID < records[pairs[j].a].ID
		}
		return records[pairs[i].b].ID < records[pairs[j].b].ID
	})

	consumed := make(map[string]bool)
	for _, p := range pairs {
		if report.Merged >= c.cfg.MaxMergesPerRun {
			break
		}
		a, b := records[p.a], records[p.b]
		if consumed[a.ID] || consumed[b.ID] {
			continue
		}

		keeper, loser := pickKeeper(a, b, c.cfg.MentionWeight, c.cfg.AgeWeight)
		if err := c.merge(ctx, ownerID, keeper, loser); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("merge %s/%s: %w", keeper.ID, loser.ID, err))
			continue
		}

		consumed[a.ID] = true
		consumed[b.ID] = true
		report.Merged++
		report.Pairs = append(report.Pairs, [2]string{keeper.ID, loser.ID})
	}

	return report, nil
}

// ForceMerge merges a specific pair regardless of their similarity.
func (c *Consolidator) ForceMerge(ctx context.Context, ownerID, firstID, secondID string) (*MergeReport, error) {
	if firstID == "" || secondID == "" || firstID == secondID {
		return nil, fmt.Errorf("%w: force merge requires two distinct record ids", storage.ErrInvalidInput)
	}

	recs, err := c.store.GetRecords(ctx, ownerID, []string{firstID, secondID})
	if err != nil {
		return nil, fmt.Errorf("engine: load records for force merge: %w", err)
	}
	if len(recs) != 2 {
		return nil, fmt.Errorf("%w: both records must exist", storage.ErrNotFound)
	}

	keeper, loser := pickKeeper(recs[0], recs[1], c.cfg.MentionWeight, c.cfg.AgeWeight)
	if err := c.merge(ctx, ownerID, keeper, loser); err != nil {
		return nil, err
	}

	return &MergeReport{
		Scanned: 2,
		Merged:  1,
		Pairs:   [][2]string{{keeper.ID, loser.ID}},
	}, nil
}

// pickKeeper scores both records by importance + mentions·weight + age·weight
// and returns (keeper, loser). Equal scores resolve by smaller id, never by
// input order.
func pickKeeper(a, b *types.Record, mentionWeight, ageWeight float64) (*types.Record, *types.Record) {
	now := time.Now().UTC()
	scoreA := compositeScore(a, now, mentionWeight, ageWeight)
	scoreB := compositeScore(b, now, mentionWeight, ageWeight)

	if scoreA > scoreB {
		return a, b
	}
	if scoreB > scoreA {
		return b, a
	}
	if a.ID < b.ID {
		return a, b
	}
	return b, a
}

func compositeScore(r *types.Record, now time.Time, mentionWeight, ageWeight float64) float64 {
	ageDays := now.Sub(r.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return r.ImportanceScore + float64(r.MentionCount)*mentionWeight + ageDays*ageWeight
}

// merge archives the loser under the keeper and rewrites the keeper with a
// synthesized summary, the max importance, and the summed mention count.
// The loser is archived first; if rewriting the keeper then fails, the loser
// is restored so a later run can retry without double-counting mentions.
func (c *Consolidator) merge(ctx context.Context, ownerID string, keeper, loser *types.Record) error {
	keeperBefore := keeper.Clone()
	loserBefore := loser.Clone()

	merged := c.mergeSummaries(ctx, keeper.Summary, loser.Summary)

	loserExpected := loser.Version
	loser.Status = types.StatusArchived
	loser.SupersededBy = keeper.ID
	loser.IsHistorical = true
	loser.UpdatedAt = time.Now().UTC()

	if err := c.store.UpdateRecord(ctx, loser, loserExpected); err != nil {
		return fmt.Errorf("archive loser: %w", err)
	}

	keeperExpected := keeper.Version
	keeper.Summary = merged
	if loserBefore.ImportanceScore > keeper.ImportanceScore {
		keeper.Importance = loserBefore.Importance
		keeper.ImportanceScore = loserBefore.ImportanceScore
	}
	keeper.MentionCount = keeperBefore.MentionCount + loserBefore.MentionCount
	keeper.Version = keeperExpected + 1
	keeper.UpdatedAt = time.Now().UTC()

	if err := c.store.UpdateRecord(ctx, keeper, keeperExpected); err != nil {
		if restoreErr := c.store.UpdateRecord(ctx, loserBefore, loserExpected); restoreErr != nil {
			log.Printf("ERROR: could not restore %s after failed merge: %v", loserBefore.ID, restoreErr)
		}
		return fmt.Errorf("update keeper: %w", err)
	}

	entry := &types.AuditEntry{
		ID:        ulid.MustNew(ulid.Now(), rand.Reader).String(),
		OwnerID:   ownerID,
		Op:        types.AuditOpConsolidate,
		RecordID:  keeper.ID,
		RelatedID: loser.ID,
		Before:    marshalRecord(keeperBefore),
		After:     marshalRecord(keeper),
		Reasoning: fmt.Sprintf("merged %s into %s", loser.ID, keeper.ID),
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}

	return nil
}

// mergeSummaries asks the model to synthesize one summary, falling back to
// concatenation when the provider is unavailable.
func (c *Consolidator) mergeSummaries(ctx context.Context, a, b string) string {
	if c.generator != nil {
		raw, err := c.generator.Complete(ctx, llm.MergePrompt([]string{a, b}))
		if err == nil {
			if resp, perr := llm.ParseMerge(raw); perr == nil {
				return resp.Summary
			}
		} else {
			log.Printf("WARNING: merge synthesis unavailable, concatenating summaries: %v", err)
		}
	}
	return a + "; " + b
}
