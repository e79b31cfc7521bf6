package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem/internal/llm"
	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

const testOwner = "owner-1"

func seedRecord(t *testing.T, store *mockStore, id, name, summary string) *types.Record {
	t.Helper()
	now := time.Now().UTC()
	rec := &types.Record{
		ID:              id,
		OwnerID:         testOwner,
		Name:            name,
		MemoryType:      types.MemoryTypeFact,
		Summary:         summary,
		Category:        "work",
		Importance:      types.ImportanceMedium,
		ImportanceScore: 0.5,
		MentionCount:    1,
		Status:          types.StatusActive,
		Version:         1,
		Confidence:      0.9,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, store.CreateRecord(context.Background(), rec))
	return rec
}

func floatPtr(v float64) *float64 { return &v }

func TestProcessEmptySimilarAlwaysAdds(t *testing.T) {
	store := newMockStore()
	engine := NewDecisionEngine(store, nil, nil, DecisionConfig{Mode: ModeFast})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Avery",
		MemoryType: types.MemoryTypeEntity,
		Content:    "Met Avery at the climbing gym",
		EntityKind: "person",
		Importance: types.ImportanceHigh,
		Confidence: 0.8,
	})
	require.NoError(t, err)

	assert.Equal(t, types.AuditOpAdd, result.Op)
	require.NotNil(t, result.Record)
	assert.Equal(t, 0.8, result.Record.ImportanceScore)
	assert.Equal(t, types.StatusActive, result.Record.Status)
	assert.Equal(t, 1, result.Record.Version)
	assert.Equal(t, 1, result.Record.MentionCount)

	stored := store.mustRecord(result.Record.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "Avery", stored.Name)

	entries := store.auditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.AuditOpAdd, entries[0].Op)
	assert.NotEmpty(t, entries[0].After)
}

func TestProcessReplaceUpdate(t *testing.T) {
	store := newMockStore()
	existing := seedRecord(t, store, "rec-1", "Employer", "Works at Google")

	generator := &llm.MockTextGenerator{Responses: []string{
		`{"action": "UPDATE", "target_id": "rec-1", "update_mode": "replace", "reasoning": "job change correction", "confidence": 0.9}`,
	}}
	engine := NewDecisionEngine(store, generator, nil, DecisionConfig{Mode: ModeAccurate})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Employer",
		MemoryType: types.MemoryTypeFact,
		Content:    "works at Notion now",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, types.AuditOpUpdate, result.Op)
	stored := store.mustRecord("rec-1")
	assert.Equal(t, "works at Notion now", stored.Summary)
	assert.Equal(t, existing.Version+1, stored.Version)
}

func TestProcessSupersedeBookkeeping(t *testing.T) {
	store := newMockStore()
	old := seedRecord(t, store, "rec-1", "City", "Lives in Berlin")

	generator := &llm.MockTextGenerator{Responses: []string{
		`{"action": "UPDATE", "target_id": "rec-1", "update_mode": "supersede", "reasoning": "moved cities", "confidence": 0.9}`,
	}}
	engine := NewDecisionEngine(store, generator, nil, DecisionConfig{Mode: ModeAccurate})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "City",
		MemoryType: types.MemoryTypeFact,
		Content:    "Lives in Lisbon",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	successor := result.Record
	require.NotNil(t, successor)

	oldStored := store.mustRecord(old.ID)
	assert.True(t, oldStored.IsHistorical)
	assert.Equal(t, types.StatusSuperseded, oldStored.Status)
	assert.Equal(t, successor.ID, oldStored.SupersededBy)

	newStored := store.mustRecord(successor.ID)
	assert.Equal(t, old.ID, newStored.SupersedesID)
	assert.Equal(t, old.Version+1, newStored.Version)
	assert.Equal(t, types.StatusActive, newStored.Status)
	assert.False(t, newStored.IsHistorical)
	assert.Equal(t, "Lives in Lisbon", newStored.Summary)
}

func TestProcessSecretNeverPersisted(t *testing.T) {
	store := newMockStore()
	engine := NewDecisionEngine(store, nil, nil, DecisionConfig{Mode: ModeFast})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Credentials",
		MemoryType: types.MemoryTypeFact,
		Content:    "my password is hunter2",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, types.AuditOpNoop, result.Op)
	assert.Nil(t, result.Record)
	assert.Equal(t, 0, store.callCount("CreateRecord"))

	entries := store.auditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.AuditOpNoop, entries[0].Op)
	assert.NotContains(t, entries[0].After, "hunter2")
}

func TestProcessDuplicateNoopBumpsMentions(t *testing.T) {
	store := newMockStore()
	existing := seedRecord(t, store, "rec-1", "Coffee", "Prefers oat milk lattes")
	existing.Embedding = []float32{1, 0, 0}
	require.NoError(t, store.UpdateRecord(context.Background(), existing, 1))

	embedder := &llm.MockEmbedder{Default: []float32{1, 0, 0}}
	engine := NewDecisionEngine(store, nil, embedder, DecisionConfig{Mode: ModeFast})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Coffee",
		MemoryType: types.MemoryTypePreference,
		Content:    "Prefers oat milk lattes",
		Sentiment:  floatPtr(0.6),
		Confidence: 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, types.AuditOpNoop, result.Op)
	stored := store.mustRecord("rec-1")
	assert.Equal(t, 2, stored.MentionCount)
	assert.InDelta(t, 0.6, stored.SentimentAverage, 1e-9)
}

func TestProcessConfidenceFloorNoop(t *testing.T) {
	store := newMockStore()
	seedRecord(t, store, "rec-1", "Coffee", "Prefers oat milk lattes")

	engine := NewDecisionEngine(store, nil, nil, DecisionConfig{Mode: ModeFast})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Coffee",
		MemoryType: types.MemoryTypePreference,
		Content:    "Maybe likes tea too",
		Confidence: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, types.AuditOpNoop, result.Op)
	assert.Equal(t, 0, store.callCount("CreateRecord"))
}

func TestProcessModelFailureFallsBackToHeuristics(t *testing.T) {
	store := newMockStore()
	seedRecord(t, store, "rec-1", "Coffee", "Prefers oat milk lattes")

	generator := &llm.MockTextGenerator{Err: fmt.Errorf("%w: provider down", llm.ErrUpstream)}
	engine := NewDecisionEngine(store, generator, nil, DecisionConfig{Mode: ModeAccurate})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Coffee",
		MemoryType: types.MemoryTypePreference,
		Content:    "Also enjoys flat whites",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	// Name-matched with zero similarity: the heuristic appends to the
	// existing record rather than creating a twin.
	assert.Equal(t, types.AuditOpUpdate, result.Op)
	stored := store.mustRecord("rec-1")
	assert.Equal(t, "Prefers oat milk lattes; Also enjoys flat whites", stored.Summary)
	assert.Equal(t, 2, stored.Version)
}

func TestProcessNoEmbedderExactNameDuplicateNoops(t *testing.T) {
	store := newMockStore()
	seedRecord(t, store, "rec-1", "Coffee", "Prefers oat milk lattes")

	engine := NewDecisionEngine(store, nil, nil, DecisionConfig{Mode: ModeFast})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Coffee",
		MemoryType: types.MemoryTypePreference,
		Content:    "Prefers oat milk lattes",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	// Identical name and content with no embedding available: consolidate
	// as a duplicate mention, don't add a twin record.
	assert.Equal(t, types.AuditOpNoop, result.Op)
	assert.Equal(t, 0, store.callCount("CreateRecord"))
	assert.Equal(t, 2, store.mustRecord("rec-1").MentionCount)
}

func TestProcessVersionConflictAborts(t *testing.T) {
	store := newMockStore()
	seedRecord(t, store, "rec-1", "Employer", "Works at Google")
	store.failUpdate = storage.ErrVersionConflict

	generator := &llm.MockTextGenerator{Responses: []string{
		`{"action": "UPDATE", "target_id": "rec-1", "update_mode": "replace", "confidence": 0.9}`,
	}}
	engine := NewDecisionEngine(store, generator, nil, DecisionConfig{Mode: ModeAccurate})

	_, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Employer",
		MemoryType: types.MemoryTypeFact,
		Content:    "works at Notion now",
		Confidence: 0.9,
	})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestProcessHardDelete(t *testing.T) {
	store := newMockStore()
	seedRecord(t, store, "rec-1", "Old Address", "Lived on Main Street")

	generator := &llm.MockTextGenerator{Responses: []string{
		`{"action": "DELETE", "target_id": "rec-1", "delete_mode": "hard", "reasoning": "user asked to forget", "confidence": 1.0}`,
	}}
	engine := NewDecisionEngine(store, generator, nil, DecisionConfig{Mode: ModeAccurate})

	result, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Old Address",
		MemoryType: types.MemoryTypeFact,
		Content:    "Forget my old address",
		Confidence: 1.0,
	})
	require.NoError(t, err)

	assert.Equal(t, types.AuditOpDelete, result.Op)
	assert.Nil(t, store.mustRecord("rec-1"))

	entries := store.auditEntries()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Before)
	assert.Empty(t, entries[0].After)
}

func TestProcessSoftDeleteArchives(t *testing.T) {
	store := newMockStore()
	seedRecord(t, store, "rec-1", "Old Gym", "Member of the downtown gym")

	generator := &llm.MockTextGenerator{Responses: []string{
		`{"action": "DELETE", "target_id": "rec-1", "delete_mode": "soft", "reasoning": "membership ended", "confidence": 0.9}`,
	}}
	engine := NewDecisionEngine(store, generator, nil, DecisionConfig{Mode: ModeAccurate})

	_, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Old Gym",
		MemoryType: types.MemoryTypeFact,
		Content:    "Cancelled the gym membership",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	stored := store.mustRecord("rec-1")
	require.NotNil(t, stored)
	assert.Equal(t, types.StatusArchived, stored.Status)
}

func TestProcessRejectsInvalidCandidate(t *testing.T) {
	store := newMockStore()
	engine := NewDecisionEngine(store, nil, nil, DecisionConfig{Mode: ModeFast})

	_, err := engine.Process(context.Background(), testOwner, &types.CandidateFact{
		MemoryType: types.MemoryTypeFact,
		Content:    "no name",
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = engine.Process(context.Background(), testOwner, &types.CandidateFact{
		Name:       "Thing",
		MemoryType: "blob",
		Content:    "bad type",
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
