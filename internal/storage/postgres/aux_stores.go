package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// StoreLink creates or updates an entity link between two records.
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, from_id, to_id, relationship_type) DO UPDATE SET
			strength = EXCLUDED.strength
	`

	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.OwnerID, link.FromID, link.ToID,
		link.Relationship, link.Strength, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: StoreLink: %w", err)
	}

	return nil
}

// LinksFrom returns the outgoing links of a record.
func (s *RecordStore) LinksFrom(ctx context.Context, ownerID, recordID string) ([]types.EntityLink, error) {
	query := `
		SELECT id, owner_id, from_id, to_id, relationship_type, strength, created_at
		FROM entity_links
		WHERE owner_id = $1 AND from_id = $2
		ORDER BY strength DESC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, recordID)
	if err != nil {
		return nil, fmt.Errorf("postgres: LinksFrom: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// Traverse performs a bounded breadth-first walk from seedID, following
// links in both directions above bounds.MinStrength. Each record is reported
// once with the path that first reached it and the product of hop strengths.
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

func (s *RecordStore) neighbourLinks(ctx context.Context, ownerID, recordID string) ([]types.EntityLink, error) {
	query := `
		SELECT id, owner_id, from_id, to_id, relationship_type, strength, created_at
		FROM entity_links
		WHERE owner_id = $1 AND (from_id = $2 OR to_id = $2)
		ORDER BY strength DESC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, recordID)
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbourLinks: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// StoreFact inserts a fact triple.
func (s *RecordStore) StoreFact(ctx context.Context, fact *types.Fact) error {
	if fact == nil || fact.ID == "" || fact.OwnerID == "" || fact.SubjectID == "" || fact.Predicate == "" {
		return fmt.Errorf("%w: fact requires id, owner, subject, and predicate", storage.ErrInvalidInput)
	}
	if fact.Object == "" && fact.ObjectID == "" {
		return fmt.Errorf("%w: fact requires an object or object ID", storage.ErrInvalidInput)
	}

	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO facts (id, owner_id, subject_id, predicate, object, object_id, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		fact.ID, fact.OwnerID, fact.SubjectID, fact.Predicate,
		nullString(fact.Object), nullString(fact.ObjectID),
		fact.Confidence, fact.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: StoreFact: %w", err)
	}

	return nil
}

// FactsBySubject returns the facts whose subject is the given record.
func (s *RecordStore) FactsBySubject(ctx context.Context, ownerID, subjectID string) ([]types.Fact, error) {
	query := `
		SELECT id, owner_id, subject_id, predicate, object, object_id, confidence, created_at
		FROM facts
		WHERE owner_id = $1 AND subject_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: FactsBySubject: %w", err)
	}
	defer rows.Close()

	facts := make([]types.Fact, 0)
	for rows.Next() {
		var (
			fact             types.Fact
			object, objectID sql.NullString
		)
		if err := rows.Scan(&fact.ID, &fact.OwnerID, &fact.SubjectID, &fact.Predicate,
			&object, &objectID, &fact.Confidence, &fact.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan fact: %w", err)
		}
		fact.Object = object.String
		fact.ObjectID = objectID.String
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate facts: %w", err)
	}

	return facts, nil
}

// UpsertSummary rewrites the summary row for (owner, category).
func (s *RecordStore) UpsertSummary(ctx context.Context, summary *types.CategorySummary) error {
	if summary == nil || summary.OwnerID == "" || summary.Category == "" {
		return fmt.Errorf("%w: summary requires owner and category", storage.ErrInvalidInput)
	}

	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO category_summaries (owner_id, category, summary, entity_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, category) DO UPDATE SET
			summary = EXCLUDED.summary,
			entity_count = EXCLUDED.entity_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		summary.OwnerID, summary.Category, summary.Summary,
		summary.EntityCount, summary.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: UpsertSummary: %w", err)
	}

	return nil
}

// GetSummaries returns the summaries for the given categories.
func (s *RecordStore) GetSummaries(ctx context.Context, ownerID string, categories []string) ([]types.CategorySummary, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT owner_id, category, summary, entity_count, updated_at
		FROM category_summaries
		WHERE owner_id = $1
	`)

	args := []interface{}{ownerID}
	if len(categories) > 0 {
		placeholders := make([]string, len(categories))
		for i, c := range categories {
			args = append(args, c)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		sb.WriteString(" AND category IN (" + strings.Join(placeholders, ",") + ")")
	}
	sb.WriteString(" ORDER BY category ASC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: GetSummaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]types.CategorySummary, 0)
	for rows.Next() {
		var summary types.CategorySummary
		if err := rows.Scan(&summary.OwnerID, &summary.Category, &summary.Summary,
			&summary.EntityCount, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate summaries: %w", err)
	}

	return summaries, nil
}

// AppendAudit appends one audit entry. The log is append-only.
func (s *RecordStore) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry == nil || entry.ID == "" || entry.OwnerID == "" || entry.Op == "" {
		return fmt.Errorf("%w: audit entry requires id, owner, and op", storage.ErrInvalidInput)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_entries (id, owner_id, op, record_id, related_id, before_content, after_content, reasoning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.OwnerID, string(entry.Op),
		nullString(entry.RecordID), nullString(entry.RelatedID),
		nullString(entry.Before), nullString(entry.After),
		nullString(entry.Reasoning), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: AppendAudit: %w", err)
	}

	return nil
}

// AuditForRecord returns the audit entries touching a record, newest first.
func (s *RecordStore) AuditForRecord(ctx context.Context, ownerID, recordID string, limit int) ([]types.AuditEntry, error) {
	if limit < 1 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, op, record_id, related_id, before_content, after_content, reasoning, created_at
		FROM audit_entries
		WHERE owner_id = $1 AND (record_id = $2 OR related_id = $2)
		ORDER BY id DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: AuditForRecord: %w", err)
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0)
	for rows.Next() {
		var (
			entry                                  types.AuditEntry
			op                                     string
			recID, relID, before, after, reasoning sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &op,
			&recID, &relID, &before, &after, &reasoning, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		entry.Op = types.AuditOp(op)
		entry.RecordID = recID.String
		entry.RelatedID = relID.String
		entry.Before = before.String
		entry.After = after.String
		entry.Reasoning = reasoning.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate audit entries: %w", err)
	}

	return entries, nil
}

func scanLinks(rows *sql.Rows) ([]types.EntityLink, error) {
	links := make([]types.EntityLink, 0)
	for rows.Next() {
		var link types.EntityLink
		if err := rows.Scan(&link.ID, &link.OwnerID, &link.FromID, &link.ToID,
			&link.Relationship, &link.Strength, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate links: %w", err)
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
