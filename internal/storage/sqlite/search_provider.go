package sqlite

import (
	"context"
	"fmt"
	"sort"

	"github.com/evermem/evermem/internal/storage"
)

// SimilaritySearch returns active records whose embedding cosine similarity
// to the query vector is at or above opts.Threshold, best first.
//
// modernc.org/sqlite has no native vector operations, so candidates are
// loaded and compared in Go. Personal-scale stores hold thousands of records,
// not millions, so a full scan of embedded rows is acceptable here; the
// postgres backend uses pgvector for the same operation.
func (s *RecordStore) SimilaritySearch(ctx context.Context, ownerID string, query []float32, opts storage.SimilarityOptions) ([]storage.ScoredRecord, error) {
	opts.Normalize()

	if storage.IsZeroVector(query) {
		// Zero vectors are the degraded-embedding sentinel; they match nothing.
		return []storage.ScoredRecord{}, nil
	}

	sql := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE owner_id = ? AND status = 'active' AND embedding IS NOT NULL
	`

	rows, err := s.db.QueryContext(ctx, sql, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SimilaritySearch: %w", err)
	}
	defer rows.Close()

	candidates, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	scored := make([]storage.ScoredRecord, 0)
	for _, record := range candidates {
		sim := storage.CosineSimilarity(query, record.Embedding)
		if sim < opts.Threshold {
			continue
		}
		scored = append(scored, storage.ScoredRecord{Record: record, Similarity: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Record.ID < scored[j].Record.ID
	})

	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}

	return scored, nil
}
