package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem/pkg/types"
)

func seedLinked(t *testing.T, store *mockStore, fromID, toID string, strength float64) {
	t.Helper()
	require.NoError(t, store.StoreLink(context.Background(), &types.EntityLink{
		ID:           fromID + "-" + toID,
		OwnerID:      testOwner,
		FromID:       fromID,
		ToID:         toID,
		Relationship: "related_to",
		Strength:     strength,
	}))
}

func TestFusionDirectAndGraphScores(t *testing.T) {
	store := newMockStore()
	now := time.Now().UTC()
	seedEmbedded(t, store, "alice", "Alice", "Close friend from university", 0.8, 5, nil, now)
	seedEmbedded(t, store, "bookclub", "Book club", "Alice runs the book club", 0.5, 2, nil, now)
	seedLinked(t, store, "alice", "bookclub", 0.6)

	fusion := NewFusion(store, DefaultFusionConfig())
	results, err := fusion.Retrieve(context.Background(), testOwner, "What does Alice do?", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Direct hit: 1.0 · 0.5 = 0.5.
	assert.Equal(t, "alice", results[0].Record.ID)
	assert.InDelta(t, 0.5, results[0].CombinedScore, 1e-9)
	assert.Equal(t, []string{"direct"}, results[0].Sources)

	// Graph-only hit: 0.6 · 0.5 = 0.3, hydrated by batch fetch.
	assert.Equal(t, "bookclub", results[1].Record.ID)
	assert.InDelta(t, 0.3, results[1].CombinedScore, 1e-9)
	assert.Equal(t, []string{"graph"}, results[1].Sources)
	assert.Equal(t, "Book club", results[1].Record.Name)
}

func TestFusionCombinesDirectAndGraph(t *testing.T) {
	store := newMockStore()
	now := time.Now().UTC()
	seedEmbedded(t, store, "alice", "Alice", "Close friend", 0.8, 5, nil, now)
	seedEmbedded(t, store, "bob", "Bob", "Met through Alice", 0.5, 2, nil, now)
	// Bob is both directly matched and one hop from Alice.
	seedLinked(t, store, "alice", "bob", 0.6)

	fusion := NewFusion(store, DefaultFusionConfig())
	results, err := fusion.Retrieve(context.Background(), testOwner, "Tell me about Alice and Bob", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var bob *FusionResult
	for i := range results {
		if results[i].Record.ID == "bob" {
			bob = &results[i]
		}
	}
	require.NotNil(t, bob)

	// direct 1.0·0.5 + graph 0.6·0.5 = 0.8.
	assert.InDelta(t, 0.8, bob.CombinedScore, 1e-9)
	assert.Equal(t, []string{"direct", "graph"}, bob.Sources)
	assert.Equal(t, 1.0, bob.SubScores["direct"])
	assert.Equal(t, 0.6, bob.SubScores["graph"])
}

func TestFusionVectorDisabledByDefault(t *testing.T) {
	store := newMockStore()
	now := time.Now().UTC()
	seedEmbedded(t, store, "rec", "Meditation", "Practices morning meditation", 0.5, 1, []float32{1, 0, 0}, now)

	fusion := NewFusion(store, DefaultFusionConfig())
	results, err := fusion.Retrieve(context.Background(), testOwner, "mindfulness habits", []float32{1, 0, 0})
	require.NoError(t, err)

	// A perfect vector match contributes nothing while the channel is off.
	assert.Empty(t, results)
	assert.Equal(t, 0, store.callCount("SimilaritySearch"))
}

func TestFusionThreeWayIncludesVector(t *testing.T) {
	store := newMockStore()
	now := time.Now().UTC()
	seedEmbedded(t, store, "rec", "Meditation", "Practices morning meditation", 0.5, 1, []float32{1, 0, 0}, now)

	fusion := NewFusion(store, ThreeWayConfig())
	results, err := fusion.Retrieve(context.Background(), testOwner, "mindfulness habits", []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// vector 1.0 · 0.3 = 0.3.
	assert.InDelta(t, 0.3, results[0].CombinedScore, 1e-9)
	assert.Equal(t, []string{"vector"}, results[0].Sources)
}

func TestFusionGraphDepthAndStrengthBounds(t *testing.T) {
	store := newMockStore()
	now := time.Now().UTC()
	seedEmbedded(t, store, "a", "Alice", "Friend", 0.5, 1, nil, now)
	seedEmbedded(t, store, "b", "Studio", "Shared art studio", 0.5, 1, nil, now)
	seedEmbedded(t, store, "c", "Gallery", "Gallery the studio shows at", 0.5, 1, nil, now)
	seedEmbedded(t, store, "d", "Curator", "Curator at the gallery", 0.5, 1, nil, now)
	seedEmbedded(t, store, "weak", "Acquaintance", "Barely connected", 0.5, 1, nil, now)

	seedLinked(t, store, "a", "b", 0.9)
	seedLinked(t, store, "b", "c", 0.8)
	seedLinked(t, store, "c", "d", 0.8) // three hops out, beyond depth 2
	seedLinked(t, store, "a", "weak", 0.1)

	fusion := NewFusion(store, DefaultFusionConfig())
	results, err := fusion.Retrieve(context.Background(), testOwner, "Alice", nil)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.Record.ID] = true
	}
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
	assert.True(t, ids["c"])
	assert.False(t, ids["d"], "depth 3 must be out of reach")
	assert.False(t, ids["weak"], "edges below min strength must be ignored")
}
