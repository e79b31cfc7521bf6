package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/evermem/evermem/internal/llm"
	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

const summaryRecordLimit = 50

// SummaryEvolver rewrites per-category rolling summaries from the current
// active records. Summaries are always replaced wholesale, never appended.
type SummaryEvolver struct {
	store     storage.Store
	generator llm.TextGenerator
}

// NewSummaryEvolver creates a summary evolver. generator may be nil; the
// summary then falls back to a concatenation of record summaries.
func NewSummaryEvolver(store storage.Store, generator llm.TextGenerator) *SummaryEvolver {
	return &SummaryEvolver{store: store, generator: generator}
}

// EvolveCategories rewrites the summary for each given category. Per-category
// failures are collected and the batch continues; the joined error is
// returned after all categories are attempted.
func (s *SummaryEvolver) EvolveCategories(ctx context.Context, ownerID string, categories []string) error {
	var errs []error
	for _, category := range categories {
		if err := s.evolveOne(ctx, ownerID, category); err != nil {
			errs = append(errs, fmt.Errorf("category %s: %w", category, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SummaryEvolver) evolveOne(ctx context.Context, ownerID, category string) error {
	records, err := s.store.ListActive(ctx, ownerID, storage.ListOptions{
		Category: category,
		Limit:    summaryRecordLimit,
	})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	parts := make([]string, 0, len(records))
	for _, rec := range records {
		parts = append(parts, rec.Name+": "+rec.Summary)
	}
	material := strings.Join(parts, "\n")

	existing := ""
	if current, err := s.store.GetSummaries(ctx, ownerID, []string{category}); err == nil && len(current) > 0 {
		existing = current[0].Summary
	}

	summary := s.rewrite(ctx, category, existing, material)

	return s.store.UpsertSummary(ctx, &types.CategorySummary{
		OwnerID:     ownerID,
		Category:    category,
		Summary:     summary,
		EntityCount: len(records),
		UpdatedAt:   time.Now().UTC(),
	})
}

// rewrite asks the model for an updated summary. On provider failure the
// previous summary is kept; with no previous summary the concatenated
// material stands in.
func (s *SummaryEvolver) rewrite(ctx context.Context, category, existing, material string) string {
	if s.generator != nil {
		raw, err := s.generator.Complete(ctx, llm.SummaryEvolvePrompt(category, existing, material))
		if err == nil {
			if resp, perr := llm.ParseMerge(raw); perr == nil {
				return resp.Summary
			}
		} else {
			log.Printf("WARNING: summary model unavailable for %s: %v", category, err)
		}
	}
	if existing != "" {
		return existing
	}
	return material
}
