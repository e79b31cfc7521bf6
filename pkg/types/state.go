package types

// Status is the lifecycle status of a memory record.
type Status string

// Record status constants.
const (
	StatusActive     Status = "active"     // The current truth for its supersede chain
	StatusSuperseded Status = "superseded" // Replaced by a newer record, kept as history
	StatusArchived   Status = "archived"   // Soft-deleted or merged away, kept as history
	StatusDeleted    Status = "deleted"    // Hard-deleted (only ever seen in audit entries)
)

// ValidStatuses contains all valid record status values.
var ValidStatuses = []Status{
	StatusActive,
	StatusSuperseded,
	StatusArchived,
	StatusDeleted,
}

// IsValidStatus checks if the given status is a valid record status.
func IsValidStatus(s Status) bool {
	for _, valid := range ValidStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

// CanTransitionTo validates record status transitions.
//
// Valid transitions:
//
//	(empty) -> active
//	active -> superseded | archived | deleted
//	superseded -> archived | deleted
//	archived -> deleted
//	deleted -> (terminal, no transitions out)
//
// Only the decision engine and the consolidation engine drive these
// transitions; no other component mutates record status.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case "": // new record, not yet persisted
		return next == StatusActive

	case StatusActive:
		return next == StatusSuperseded || next == StatusArchived || next == StatusDeleted

	case StatusSuperseded:
		return next == StatusArchived || next == StatusDeleted

	case StatusArchived:
		return next == StatusDeleted

	case StatusDeleted:
		return false // Terminal state, no transitions out

	default:
		return false // Unknown current status
	}
}
