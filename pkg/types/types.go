// Package types defines the core data structures for the Evermem memory
// system: versioned memory records, candidate facts, fact triples, entity
// links, category summaries, and audit entries.
package types

// MemoryType classifies what kind of knowledge a record captures.
type MemoryType string

// Memory type constants.
const (
	MemoryTypeEntity     MemoryType = "entity"     // A person, place, organization, or thing
	MemoryTypeFact       MemoryType = "fact"       // A standalone statement about the world
	MemoryTypePreference MemoryType = "preference" // A like, dislike, or habit of the owner
	MemoryTypeEvent      MemoryType = "event"      // Something that happened or will happen
	MemoryTypeGoal       MemoryType = "goal"       // An objective the owner is pursuing
	MemoryTypeProcedure  MemoryType = "procedure"  // A how-to or repeatable process
	MemoryTypeDecision   MemoryType = "decision"   // A choice that was made and why
	MemoryTypeAction     MemoryType = "action"     // A task or action item
)

// ValidMemoryTypes lists all valid memory types for validation.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeEntity,
	MemoryTypeFact,
	MemoryTypePreference,
	MemoryTypeEvent,
	MemoryTypeGoal,
	MemoryTypeProcedure,
	MemoryTypeDecision,
	MemoryTypeAction,
}

// IsValidMemoryType checks if the given memory type is valid.
func IsValidMemoryType(t MemoryType) bool {
	for _, valid := range ValidMemoryTypes {
		if valid == t {
			return true
		}
	}
	return false
}

// Importance is the qualitative importance level of a record.
type Importance string

// Importance level constants.
const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
	ImportanceTrivial  Importance = "trivial"
)

// importanceScores maps each importance level to its numeric score.
var importanceScores = map[Importance]float64{
	ImportanceCritical: 1.0,
	ImportanceHigh:     0.8,
	ImportanceMedium:   0.5,
	ImportanceLow:      0.3,
	ImportanceTrivial:  0.1,
}

// Score returns the numeric score for an importance level.
// Unknown levels map to the medium score.
func (i Importance) Score() float64 {
	if s, ok := importanceScores[i]; ok {
		return s
	}
	return importanceScores[ImportanceMedium]
}

// IsValidImportance checks if the given importance level is valid.
func IsValidImportance(i Importance) bool {
	_, ok := importanceScores[i]
	return ok
}

// SensitivityLevel controls how a record may be surfaced downstream.
type SensitivityLevel string

// Sensitivity level constants.
const (
	SensitivityNormal    SensitivityLevel = "normal"
	SensitivitySensitive SensitivityLevel = "sensitive"
	SensitivityPrivate   SensitivityLevel = "private"
)

// IsValidSensitivity checks if the given sensitivity level is valid.
func IsValidSensitivity(s SensitivityLevel) bool {
	switch s {
	case SensitivityNormal, SensitivitySensitive, SensitivityPrivate:
		return true
	}
	return false
}
