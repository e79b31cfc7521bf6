// Package storage provides composable storage interfaces for the Evermem
// record store.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed, allowing for flexible
// backend implementations (SQLite for local use and tests, PostgreSQL with
// pgvector for server deployments).
package storage

import (
	"context"

	"github.com/evermem/evermem/pkg/types"
)

// RecordStore provides CRUD and listing operations for memory records.
// This is the core storage interface for the record lifecycle.
type RecordStore interface {
	// CreateRecord inserts a new record. The record's status must be active
	// and its version must be >= 1.
	CreateRecord(ctx context.Context, record *types.Record) error

	// GetRecord retrieves a record by owner and ID.
	// Returns ErrNotFound if the record doesn't exist or isn't owned.
	GetRecord(ctx context.Context, ownerID, id string) (*types.Record, error)

	// GetRecords retrieves a batch of records by ID in one query. IDs that
	// don't exist are silently absent from the result. Used for hydrating
	// graph-only retrieval hits after merging, never per-hit.
	GetRecords(ctx context.Context, ownerID string, ids []string) ([]*types.Record, error)

	// UpdateRecord persists a modified record. expectedVersion is the version
	// the caller read before mutating; if the stored row has moved on,
	// ErrVersionConflict is returned and nothing is written. This is the
	// optimistic check guarding the decision engine's read-then-write
	// sequence.
	UpdateRecord(ctx context.Context, record *types.Record, expectedVersion int) error

	// DeleteRecord physically removes a record row. Reserved for explicit
	// user forget requests; all other removals archive instead.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteRecord(ctx context.Context, ownerID, id string) error

	// ListActive retrieves active records for an owner with the given options.
	ListActive(ctx context.Context, ownerID string, opts ListOptions) ([]*types.Record, error)

	// TopRecords returns the top active records for an owner ranked by
	// importance score descending, then mention count descending, then ID
	// for a deterministic order.
	TopRecords(ctx context.Context, ownerID string, limit int) ([]*types.Record, error)

	// FindByName performs a fuzzy name match against active records.
	FindByName(ctx context.Context, ownerID, name string, limit int) ([]*types.Record, error)

	// EvolutionChain returns the full supersede chain containing the given
	// record, ordered oldest to newest. It walks backward via supersedes_id
	// and forward via superseded_by, capped at 50 versions.
	EvolutionChain(ctx context.Context, ownerID, id string) ([]*types.Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// SearchProvider provides vector similarity search over record embeddings.
type SearchProvider interface {
	// SimilaritySearch returns active records whose embedding cosine
	// similarity to the query vector is at or above opts.Threshold, best
	// first. Records without embeddings are never returned.
	SimilaritySearch(ctx context.Context, ownerID string, query []float32, opts SimilarityOptions) ([]ScoredRecord, error)
}

// GraphProvider provides entity-link storage and bounded graph traversal.
type GraphProvider interface {
	// StoreLink creates or updates an entity link between two records.
	StoreLink(ctx context.Context, link *types.EntityLink) error

	// LinksFrom returns the outgoing links of a record.
	LinksFrom(ctx context.Context, ownerID, recordID string) ([]types.EntityLink, error)

	// Traverse performs a bounded breadth-first walk from seedID, following
	// links whose strength is at or above bounds.MinStrength up to
	// bounds.MaxDepth hops. Each reached record is reported once with the
	// path that first reached it and the cumulative path strength.
	Traverse(ctx context.Context, ownerID, seedID string, bounds TraversalBounds) ([]GraphPath, error)
}

// FactStore manages subject-predicate-object triples.
type FactStore interface {
	// StoreFact inserts a fact triple.
	StoreFact(ctx context.Context, fact *types.Fact) error

	// FactsBySubject returns the facts whose subject is the given record.
	FactsBySubject(ctx context.Context, ownerID, subjectID string) ([]types.Fact, error)
}

// SummaryStore manages per-category rolling summaries.
type SummaryStore interface {
	// UpsertSummary rewrites the summary row for (owner, category). Summaries
	// are replaced wholesale, never appended to.
	UpsertSummary(ctx context.Context, summary *types.CategorySummary) error

	// GetSummaries returns the summaries for the given categories. Categories
	// with no summary row are silently absent. An empty categories slice
	// returns all summaries for the owner.
	GetSummaries(ctx context.Context, ownerID string, categories []string) ([]types.CategorySummary, error)
}

// AuditLog is the append-only operation log. Entries are never mutated.
type AuditLog interface {
	// AppendAudit appends one audit entry.
	AppendAudit(ctx context.Context, entry *types.AuditEntry) error

	// AuditForRecord returns the audit entries touching a record, newest
	// first, up to limit.
	AuditForRecord(ctx context.Context, ownerID, recordID string, limit int) ([]types.AuditEntry, error)
}

// Store is the full storage surface the engines depend on. Both the SQLite
// and PostgreSQL backends implement it.
type Store interface {
	RecordStore
	SearchProvider
	GraphProvider
	FactStore
	SummaryStore
	AuditLog
}
