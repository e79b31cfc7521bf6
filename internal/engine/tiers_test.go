package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem/internal/llm"
	"github.com/evermem/evermem/pkg/types"
)

func seedSummary(t *testing.T, store *mockStore, category, summary string) {
	t.Helper()
	require.NoError(t, store.UpsertSummary(context.Background(), &types.CategorySummary{
		OwnerID:     testOwner,
		Category:    category,
		Summary:     summary,
		EntityCount: 3,
		UpdatedAt:   time.Now().UTC(),
	}))
}

func newTestOrchestrator(store *mockStore, generator llm.TextGenerator, mode string) *Orchestrator {
	fusion := NewFusion(store, DefaultFusionConfig())
	return NewOrchestrator(store, generator, fusion, OrchestratorConfig{Mode: mode})
}

func TestTier1SufficientStopsEscalation(t *testing.T) {
	store := newMockStore()
	seedSummary(t, store, "work", "Works at Notion as a product engineer, mostly on search.")

	generator := &llm.MockTextGenerator{Responses: []string{
		`{"sufficient": true, "confidence": 0.9, "reasoning": "summary covers the work question"}`,
	}}
	o := newTestOrchestrator(store, generator, ModeAccurate)

	result, err := o.Retrieve(context.Background(), testOwner, "what is going on at work these days", nil)
	require.NoError(t, err)

	assert.Equal(t, TierSummaries, result.Tier)
	assert.Equal(t, 0.9, result.Confidence)
	require.Len(t, result.Summaries, 1)

	// Neither tier 2 nor tier 3 may have been consulted.
	assert.Equal(t, 0, store.callCount("TopRecords"))
	assert.Equal(t, 0, store.callCount("FindByName"))
}

func TestTier1InsufficientEscalatesToTier2(t *testing.T) {
	store := newMockStore()
	seedSummary(t, store, "work", "Works somewhere.")
	for i := 0; i < 5; i++ {
		seedRecord(t, store, string(rune('a'+i)), "Record", "Some fact")
	}

	generator := &llm.MockTextGenerator{Responses: []string{
		`{"sufficient": false, "confidence": 0.2, "reasoning": "too vague"}`,
	}}
	o := newTestOrchestrator(store, generator, ModeAccurate)

	result, err := o.Retrieve(context.Background(), testOwner, "what is going on at work these days", nil)
	require.NoError(t, err)

	assert.Equal(t, TierEntities, result.Tier)
	assert.Equal(t, 1.0, result.Confidence) // 5 records caps confidence
	assert.Len(t, result.Records, 5)
}

func TestTier2ThreeRecordsAnswerNonEntityQuery(t *testing.T) {
	store := newMockStore()
	for i := 0; i < 3; i++ {
		seedRecord(t, store, string(rune('a'+i)), "Record", "Some fact")
	}

	// No summaries, no named entities: the minimum of three records is
	// enough for tier 2 even though the scaled confidence is only 3/5.
	o := newTestOrchestrator(store, nil, ModeFast)

	result, err := o.Retrieve(context.Background(), testOwner, "what is going on at work these days", nil)
	require.NoError(t, err)

	assert.Equal(t, TierEntities, result.Tier)
	assert.InDelta(t, 0.6, result.Confidence, 1e-9)
	assert.Len(t, result.Records, 3)
	assert.Equal(t, 0, store.callCount("FindByName"))
}

func TestTier2EntityCoverageGate(t *testing.T) {
	store := newMockStore()
	// No summaries, so tier 1 is skipped. Top records don't mention the
	// named entity, forcing tier 3.
	for i := 0; i < 5; i++ {
		seedRecord(t, store, string(rune('a'+i)), "Record", "Some fact")
	}
	seedRecord(t, store, "z", "Margot", "Margot is a colleague")

	o := newTestOrchestrator(store, nil, ModeAccurate)

	result, err := o.Retrieve(context.Background(), testOwner, "does Margot still play tennis", nil)
	require.NoError(t, err)

	// "Margot" appears among the top records, so coverage is 1.0 and
	// tier 2 answers.
	assert.Equal(t, TierEntities, result.Tier)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestTier2InsufficientFallsThroughToFusion(t *testing.T) {
	store := newMockStore()
	seedRecord(t, store, "a", "Record", "Some fact")
	seedRecord(t, store, "b", "Castor", "Castor is the cat")

	o := newTestOrchestrator(store, nil, ModeAccurate)

	// The named entity is absent from top records' names only if it never
	// matches; here "Felix" matches nothing, coverage 0 < 0.7.
	result, err := o.Retrieve(context.Background(), testOwner, "who is Felix", nil)
	require.NoError(t, err)

	assert.Equal(t, TierFusion, result.Tier)
}

func TestFastModeEntityQuerySkipsToFusion(t *testing.T) {
	store := newMockStore()
	seedSummary(t, store, "relationships", "Has a close circle of friends.")
	seedRecord(t, store, "alice", "Alice", "Close friend from university")

	o := newTestOrchestrator(store, nil, ModeFast)

	result, err := o.Retrieve(context.Background(), testOwner, "where does Alice live", nil)
	require.NoError(t, err)

	assert.Equal(t, TierFusion, result.Tier)
	assert.Equal(t, 0, store.callCount("GetSummaries"))
	assert.Equal(t, 0, store.callCount("TopRecords"))
	require.Len(t, result.Results, 1)
	assert.Equal(t, "alice", result.Results[0].Record.ID)
}

func TestAccurateModeSufficiencyProviderFailureFallsBack(t *testing.T) {
	store := newMockStore()
	seedSummary(t, store, "work", "Works at Notion.")
	seedSummary(t, store, "finance", "Saving for a house deposit.")
	for i := 0; i < 5; i++ {
		seedRecord(t, store, string(rune('a'+i)), "Record", "Some fact")
	}

	generator := &llm.MockTextGenerator{Err: llm.ErrUpstream}
	o := newTestOrchestrator(store, generator, ModeAccurate)

	// Heuristic fallback: the query names no entities and two summaries
	// match, so tier 1 still answers.
	result, err := o.Retrieve(context.Background(), testOwner, "how are work and money going", nil)
	require.NoError(t, err)
	assert.Equal(t, TierSummaries, result.Tier)
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(store, nil, ModeAccurate)

	_, err := o.Retrieve(context.Background(), testOwner, "", nil)
	assert.Error(t, err)
}
