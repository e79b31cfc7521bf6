package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// StoreLink creates or updates an entity link between two records.
// Re-linking the same (from, to, relationship) triple refreshes the strength.
func (s *RecordStore) StoreLink(ctx context.Context, link *types.EntityLink) error {
	if link == nil || link.ID == "" || link.OwnerID == "" || link.FromID == "" || link.ToID == "" {
		return fmt.Errorf("%w: link requires id, owner, from, and to", storage.ErrInvalidInput)
	}
	if link.FromID == link.ToID {
		return fmt.Errorf("%w: self links are not allowed", storage.ErrInvalidInput)
	}

	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO entity_links (id, owner_id, from_id, to_id, relationship_type, strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, from_id, to_id, relationship_type) DO UPDATE SET
			strength = excluded.strength
	`

	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.OwnerID, link.FromID, link.ToID,
		link.Relationship, link.Strength, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: StoreLink: %w", err)
	}

	return nil
}

// LinksFrom returns the outgoing links of a record.
func (s *RecordStore) LinksFrom(ctx context.Context, ownerID, recordID string) ([]types.EntityLink, error) {
	query := `
		SELECT id, owner_id, from_id, to_id, relationship_type, strength, created_at
		FROM entity_links
		WHERE owner_id = ? AND from_id = ?
		ORDER BY strength DESC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, recordID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: LinksFrom: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// Traverse performs a bounded breadth-first walk from seedID.
//
// Links are followed in both directions (edges are traversable either way),
// filtered by bounds.MinStrength. Each record is reported once, with the path
// that first reached it; cumulative strength is the product of hop strengths,
// so deeper hits score lower. The seed itself is not reported.
func (s *RecordStore) Traverse(ctx context.Context, ownerID, seedID string, bounds storage.TraversalBounds) ([]storage.GraphPath, error) {
	bounds.Normalize()

	if seedID == "" {
		return nil, fmt.Errorf("%w: seed record ID is required", storage.ErrInvalidInput)
	}

	type frontierItem struct {
		id       string
		hops     []storage.GraphHop
		strength float64
	}

	visited := map[string]bool{seedID: true}
	frontier := []frontierItem{{id: seedID, strength: 1.0}}

	var paths []storage.GraphPath

	for depth := 1; depth <= bounds.MaxDepth && len(frontier) > 0; depth++ {
		var next []frontierItem

		for _, item := range frontier {
			if err := ctx.Err(); err != nil {
				return paths, err
			}

			neighbours, err := s.neighbourLinks(ctx, ownerID, item.id)
			if err != nil {
				return nil, err
			}

			for _, edge := range neighbours {
				if edge.Strength < bounds.MinStrength {
					continue
				}

				target := edge.ToID
				if target == item.id {
					target = edge.FromID
				}
				if visited[target] {
					continue
				}
				visited[target] = true

				hop := storage.GraphHop{
					FromID:       item.id,
					ToID:         target,
					Relationship: edge.Relationship,
					Strength:     edge.Strength,
				}
				hops := append(append([]storage.GraphHop{}, item.hops...), hop)
				strength := item.strength * edge.Strength

				paths = append(paths, storage.GraphPath{
					TargetID: target,
					Hops:     hops,
					Strength: strength,
					Depth:    len(hops),
				})

				if len(visited)-1 >= bounds.MaxNodes {
					return sortPaths(paths), nil
				}

				next = append(next, frontierItem{id: target, hops: hops, strength: strength})
			}
		}

		frontier = next
	}

	return sortPaths(paths), nil
}

// neighbourLinks returns the edges touching a record in either direction.
func (s *RecordStore) neighbourLinks(ctx context.Context, ownerID, recordID string) ([]types.EntityLink, error) {
	query := `
		SELECT id, owner_id, from_id, to_id, relationship_type, strength, created_at
		FROM entity_links
		WHERE owner_id = ? AND (from_id = ? OR to_id = ?)
		ORDER BY strength DESC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, recordID, recordID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: neighbourLinks: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]types.EntityLink, error) {
	links := make([]types.EntityLink, 0)
	for rows.Next() {
		var link types.EntityLink
		if err := rows.Scan(&link.ID, &link.OwnerID, &link.FromID, &link.ToID,
			&link.Relationship, &link.Strength, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate links: %w", err)
	}
	return links, nil
}

func sortPaths(paths []storage.GraphPath) []storage.GraphPath {
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Strength != paths[j].Strength {
			return paths[i].Strength > paths[j].Strength
		}
		return paths[i].TargetID < paths[j].TargetID
	})
	return paths
}
