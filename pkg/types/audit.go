package types

import "time"

// AuditOp identifies the kind of operation an audit entry records.
type AuditOp string

// Audit operation constants.
const (
	AuditOpAdd         AuditOp = "ADD"
	AuditOpUpdate      AuditOp = "UPDATE"
	AuditOpDelete      AuditOp = "DELETE"
	AuditOpNoop        AuditOp = "NOOP"
	AuditOpConsolidate AuditOp = "CONSOLIDATE"
)

// AuditEntry is an immutable log row capturing one decision or consolidation
// operation. Entries are append-only and never mutated; IDs are ULIDs so the
// log sorts chronologically by ID.
type AuditEntry struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"owner_id"`
	Op      AuditOp `json:"op"`

	// RecordID is the primary record the operation touched.
	RecordID string `json:"record_id,omitempty"`

	// RelatedID is the secondary record for two-record operations
	// (the new record of a supersede, the archived loser of a consolidate).
	RelatedID string `json:"related_id,omitempty"`

	// Before and After hold JSON snapshots of the record content around the
	// operation. Before is empty for ADD; After is empty for DELETE and NOOP.
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`

	// Reasoning is a short rationale for why the operation was chosen.
	Reasoning string `json:"reasoning,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
