package types

import "time"

// CandidateFact is one newly extracted fact awaiting a decision. Extraction
// is an external collaborator; the decision engine receives candidates in
// this shape together with semantically similar existing records.
type CandidateFact struct {
	// Name is the short display name for the fact or entity.
	Name string `json:"name"`

	// MemoryType classifies what kind of record this would become.
	MemoryType MemoryType `json:"memory_type"`

	// Content is the extracted prose content.
	Content string `json:"content"`

	// EntityKind is set when MemoryType is entity (person, place, ...).
	EntityKind string `json:"entity_type,omitempty"`

	// Sentiment is the numeric sentiment of the mention (-1.0 to 1.0).
	// Nil when the extractor produced no sentiment signal.
	Sentiment *float64 `json:"sentiment,omitempty"`

	Importance Importance `json:"importance"`

	// IsHistorical marks facts that were already past-tense when extracted.
	IsHistorical bool `json:"is_historical"`

	EffectiveFrom *time.Time         `json:"effective_from,omitempty"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	Recurrence    *RecurrencePattern `json:"recurrence_pattern,omitempty"`

	Sensitivity SensitivityLevel `json:"sensitivity_level,omitempty"`

	Confidence float64 `json:"confidence"` // 0.0 to 1.0

	// Category is the topic bucket used for category summaries, if the
	// extractor assigned one.
	Category string `json:"category,omitempty"`
}
