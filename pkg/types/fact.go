package types

import "time"

// Fact is a subject-predicate-object triple extracted alongside a record.
// The subject always references a memory record; the object is either
// literal text or the ID of another record.
type Fact struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	SubjectID string `json:"subject_id"` // record ID of the subject
	Predicate string `json:"predicate"`

	// Object is the literal object text. Empty when ObjectID is set.
	Object string `json:"object,omitempty"`

	// ObjectID references another record as the object, when the object is
	// itself a known entity.
	ObjectID string `json:"object_id,omitempty"`

	Confidence float64   `json:"confidence"` // 0.0 to 1.0
	CreatedAt  time.Time `json:"created_at"`
}

// EntityLink is a graph edge between two memory records, used for graph
// traversal during retrieval.
type EntityLink struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	FromID       string    `json:"from_id"`
	ToID         string    `json:"to_id"`
	Relationship string    `json:"relationship_type"`
	Strength     float64   `json:"strength"` // 0.0 to 1.0
	CreatedAt    time.Time `json:"created_at"`
}
