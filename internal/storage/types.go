package storage

import (
	"errors"

	"github.com/evermem/evermem/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found or is
	// not owned by the requesting owner.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict indicates that an optimistic version check failed:
	// the record was modified between read and write.
	ErrVersionConflict = errors.New("record version conflict")
)

// ScoredRecord pairs a record with its similarity score from vector search.
type ScoredRecord struct {
	// Record is the matched record.
	Record *types.Record

	// Similarity is the cosine similarity to the query vector (0.0 to 1.0).
	Similarity float64
}

// ListOptions provides filtering options for record listing.
type ListOptions struct {
	// Limit is the maximum number of records to return (default: 50, max: 500).
	Limit int

	// Offset is the number of records to skip.
	Offset int

	// Category filters by category. Empty string means no filter.
	Category string

	// MemoryType filters by memory type. Empty string means no filter.
	MemoryType types.MemoryType

	// RequireEmbedding restricts results to records that carry an embedding.
	// Used by the consolidation engine, which can only compare embedded records.
	RequireEmbedding bool
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// SimilarityOptions configures vector similarity search.
type SimilarityOptions struct {
	// Threshold is the minimum cosine similarity for a match (0.0 to 1.0).
	Threshold float64

	// Limit is the maximum number of results (default: 10, max: 100).
	Limit int
}

// Normalize applies defaults and validates the SimilarityOptions.
func (o *SimilarityOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Threshold < 0 {
		o.Threshold = 0
	}
	if o.Threshold > 1 {
		o.Threshold = 1
	}
}

// TraversalBounds prevents combinatorial explosion during graph traversal.
type TraversalBounds struct {
	// MaxDepth is the maximum number of hops from the seed record.
	MaxDepth int

	// MinStrength is the minimum edge strength to follow (0.0 to 1.0).
	MinStrength float64

	// MaxNodes is the maximum number of nodes to visit.
	MaxNodes int
}

// Normalize applies defaults and validates the TraversalBounds.
func (b *TraversalBounds) Normalize() {
	if b.MaxDepth < 1 {
		b.MaxDepth = 2
	}
	if b.MaxDepth > 5 {
		b.MaxDepth = 5
	}
	if b.MinStrength <= 0 {
		b.MinStrength = 0.3
	}
	if b.MaxNodes < 1 {
		b.MaxNodes = 100
	}
	if b.MaxNodes > 1000 {
		b.MaxNodes = 1000
	}
}

// GraphHop is one edge along a traversal path.
type GraphHop struct {
	// FromID is the record the hop started from.
	FromID string

	// ToID is the record the hop reached.
	ToID string

	// Relationship is the edge's relationship label.
	Relationship string

	// Strength is the edge strength (0.0 to 1.0).
	Strength float64
}

// GraphPath is the path that first reached a record during traversal.
type GraphPath struct {
	// TargetID is the record the path reached.
	TargetID string

	// Hops are the edges from the seed to the target, in order.
	Hops []GraphHop

	// Strength is the cumulative path strength: the product of the hop
	// strengths along the path.
	Strength float64

	// Depth is the number of hops (len(Hops)).
	Depth int
}
