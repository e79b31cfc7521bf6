package types

import "time"

// CategorySummary is a per-owner, per-category prose digest of the records in
// that category. Summaries are rewritten wholesale on every update, never
// appended to, so there is at most one row per (owner, category).
type CategorySummary struct {
	OwnerID     string    `json:"owner_id"`
	Category    string    `json:"category"`
	Summary     string    `json:"summary"`
	EntityCount int       `json:"entity_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
