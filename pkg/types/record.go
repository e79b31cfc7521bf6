package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// SentimentWindowSize bounds the rolling sentiment history kept on a record.
// Only the most recent entries contribute to SentimentAverage.
const SentimentWindowSize = 20

// Record is a versioned memory record, the atomic unit of the store.
//
// Records form supersede chains: when a fact changes (a life/state change
// rather than a correction), the old record is marked historical and a new
// record with SupersedesID pointing back becomes the active head. Exactly one
// record in a chain is active and non-historical at any time, and Version
// strictly increases along the chain.
//
// Type-specific attributes live in Payload, keyed by MemoryType, rather than
// as optional fields on the record itself.
type Record struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`

	MemoryType MemoryType `json:"memory_type"`
	Summary    string     `json:"summary"`
	Category   string     `json:"category,omitempty"`

	Importance      Importance `json:"importance"`
	ImportanceScore float64    `json:"importance_score"` // 0.0 to 1.0

	SentimentAverage float64   `json:"sentiment_average"`           // -1.0 to 1.0, rolling mean
	SentimentHistory []float64 `json:"sentiment_history,omitempty"` // bounded to SentimentWindowSize

	MentionCount int `json:"mention_count"`

	Status  Status `json:"status"`
	Version int    `json:"version"` // strictly increasing along a supersede chain

	SupersedesID string `json:"supersedes_id,omitempty"` // back link to the record this replaced
	SupersededBy string `json:"superseded_by,omitempty"` // forward link to the replacement
	IsHistorical bool   `json:"is_historical"`

	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`

	Sensitivity SensitivityLevel `json:"sensitivity_level"`
	Confidence  float64          `json:"confidence"` // 0.0 to 1.0

	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Payload carries the type-specific portion of the record. It may be nil
	// for types with no extra attributes (fact, preference, action).
	Payload Payload `json:"payload,omitempty"`
}

// Payload is the type-specific portion of a record, keyed by MemoryType.
type Payload interface {
	// PayloadType returns the memory type this payload belongs to.
	PayloadType() MemoryType
}

// EntityPayload holds entity-specific attributes.
type EntityPayload struct {
	// EntityKind is the kind of entity (person, organization, place, ...).
	EntityKind string `json:"entity_kind"`
}

// PayloadType implements Payload.
func (EntityPayload) PayloadType() MemoryType { return MemoryTypeEntity }

// EventPayload holds event-specific attributes.
type EventPayload struct {
	// Location is where the event takes place, if known.
	Location string `json:"location,omitempty"`

	// Recurrence describes a repeating schedule, if any.
	Recurrence *RecurrencePattern `json:"recurrence,omitempty"`
}

// PayloadType implements Payload.
func (EventPayload) PayloadType() MemoryType { return MemoryTypeEvent }

// GoalPayload holds goal-specific attributes.
type GoalPayload struct {
	// TargetDate is when the goal should be reached, if known.
	TargetDate *time.Time `json:"target_date,omitempty"`

	// Progress is the owner-reported completion fraction (0.0 to 1.0).
	Progress float64 `json:"progress,omitempty"`
}

// PayloadType implements Payload.
func (GoalPayload) PayloadType() MemoryType { return MemoryTypeGoal }

// ProcedurePayload holds procedure-specific attributes.
type ProcedurePayload struct {
	// Steps are the ordered steps of the procedure.
	Steps []string `json:"steps,omitempty"`
}

// PayloadType implements Payload.
func (ProcedurePayload) PayloadType() MemoryType { return MemoryTypeProcedure }

// DecisionPayload holds decision-specific attributes.
type DecisionPayload struct {
	// Rationale records why the decision was made.
	Rationale string `json:"rationale,omitempty"`
}

// PayloadType implements Payload.
func (DecisionPayload) PayloadType() MemoryType { return MemoryTypeDecision }

// RecurrencePattern describes a repeating schedule for an event.
type RecurrencePattern struct {
	// Frequency is one of "daily", "weekly", "monthly", "yearly".
	Frequency string `json:"frequency"`

	// Interval is the number of frequency units between occurrences (>= 1).
	Interval int `json:"interval,omitempty"`

	// Until bounds the recurrence, if set.
	Until *time.Time `json:"until,omitempty"`
}

// DecodePayload decodes a JSON payload blob for the given memory type.
// Returns (nil, nil) for types that carry no payload or for empty input.
func DecodePayload(memoryType MemoryType, data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	switch memoryType {
	case MemoryTypeEntity:
		var p EntityPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode entity payload: %w", err)
		}
		return p, nil
	case MemoryTypeEvent:
		var p EventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		return p, nil
	case MemoryTypeGoal:
		var p GoalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode goal payload: %w", err)
		}
		return p, nil
	case MemoryTypeProcedure:
		var p ProcedurePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode procedure payload: %w", err)
		}
		return p, nil
	case MemoryTypeDecision:
		var p DecisionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode decision payload: %w", err)
		}
		return p, nil
	default:
		// fact, preference, action carry no payload
		return nil, nil
	}
}

// UnmarshalJSON decodes a record, resolving the payload union via MemoryType.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	payload, err := DecodePayload(r.MemoryType, aux.Payload)
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

// Clone returns a deep copy of the record. Used for audit before/after
// snapshots so that later mutations don't leak into the log.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r

	if r.SentimentHistory != nil {
		clone.SentimentHistory = append([]float64(nil), r.SentimentHistory...)
	}
	if r.Embedding != nil {
		clone.Embedding = append([]float32(nil), r.Embedding...)
	}
	if r.EffectiveFrom != nil {
		t := *r.EffectiveFrom
		clone.EffectiveFrom = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		clone.ExpiresAt = &t
	}

	// Payloads are small value types; re-decode through JSON to copy any
	// pointer fields they carry.
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err == nil {
			if p, derr := DecodePayload(r.MemoryType, raw); derr == nil {
				clone.Payload = p
			}
		}
	}

	return &clone
}

// RecordSentiment appends a sentiment sample to the rolling history, trims it
// to SentimentWindowSize, and recomputes SentimentAverage as the arithmetic
// mean of the remaining window.
func (r *Record) RecordSentiment(sentiment float64) {
	r.SentimentHistory = append(r.SentimentHistory, sentiment)
	if len(r.SentimentHistory) > SentimentWindowSize {
		r.SentimentHistory = r.SentimentHistory[len(r.SentimentHistory)-SentimentWindowSize:]
	}

	var sum float64
	for _, s := range r.SentimentHistory {
		sum += s
	}
	r.SentimentAverage = sum / float64(len(r.SentimentHistory))
}
