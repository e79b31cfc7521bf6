package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		fact.ID, fact.OwnerID, fact.SubjectID, fact.Predicate,
		nullString(fact.Object), nullString(fact.ObjectID),
		fact.Confidence, fact.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: StoreFact: %w", err)
	}

	return nil
}

// FactsBySubject returns the facts whose subject is the given record.
func (s *RecordStore) FactsBySubject(ctx context.Context, ownerID, subjectID string) ([]types.Fact, error) {
	query := `
		SELECT id, owner_id, subject_id, predicate, object, object_id, confidence, created_at
		FROM facts
		WHERE owner_id = ? AND subject_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: FactsBySubject: %w", err)
	}
	defer rows.Close()

	facts := make([]types.Fact, 0)
	for rows.Next() {
		var (
			fact             types.Fact
			object, objectID *string
		)
		if err := rows.Scan(&fact.ID, &fact.OwnerID, &fact.SubjectID, &fact.Predicate,
			&object, &objectID, &fact.Confidence, &fact.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan fact: %w", err)
		}
		if object != nil {
			fact.Object = *object
		}
		if objectID != nil {
			fact.ObjectID = *objectID
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate facts: %w", err)
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, category) DO UPDATE SET
			summary = excluded.summary,
			entity_count = excluded.entity_count,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		summary.OwnerID, summary.Category, summary.Summary,
		summary.EntityCount, summary.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: UpsertSummary: %w", err)
	}

	return nil
}

// GetSummaries returns the summaries for the given categories.
func (s *RecordStore) GetSummaries(ctx context.Context, ownerID string, categories []string) ([]types.CategorySummary, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT owner_id, category, summary, entity_count, updated_at
		FROM category_summaries
		WHERE owner_id = ?
	`)

	args := []interface{}{ownerID}
	if len(categories) > 0 {
		placeholders := strings.Repeat("?,", len(categories))
		sb.WriteString(" AND category IN (" + placeholders[:len(placeholders)-1] + ")")
		for _, c := range categories {
			args = append(args, c)
		}
	}
	sb.WriteString(" ORDER BY category ASC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetSummaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]types.CategorySummary, 0)
	for rows.Next() {
		var summary types.CategorySummary
		if err := rows.Scan(&summary.OwnerID, &summary.Category, &summary.Summary,
			&summary.EntityCount, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate summaries: %w", err)
	}

	return summaries, nil
}

// AppendAudit appends one audit entry. There is no update path for audit
// rows anywhere in this package; the log is append-only.
func (s *RecordStore) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry == nil || entry.ID == "" || entry.OwnerID == "" || entry.Op == "" {
		return fmt.Errorf("%w: audit entry requires id, owner, and op", storage.ErrInvalidInput)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_entries (id, owner_id, op, record_id, related_id, before_content, after_content, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.OwnerID, string(entry.Op),
		nullString(entry.RecordID), nullString(entry.RelatedID),
		nullString(entry.Before), nullString(entry.After),
		nullString(entry.Reasoning), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: AppendAudit: %w", err)
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
		WHERE owner_id = ? AND (record_id = ? OR related_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, recordID, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: AuditForRecord: %w", err)
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0)
	for rows.Next() {
		var (
			entry                                       types.AuditEntry
			op                                          string
			recID, relID, before, after, reasoning      *string
		)
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &op,
			&recID, &relID, &before, &after, &reasoning, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		entry.Op = types.AuditOp(op)
		entry.RecordID = deref(recID)
		entry.RelatedID = deref(relID)
		entry.Before = deref(before)
		entry.After = deref(after)
		entry.Reasoning = deref(reasoning)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate audit entries: %w", err)
	}

	return entries, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
