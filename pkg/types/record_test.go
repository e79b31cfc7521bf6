package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem/pkg/types"
)

func TestImportanceScores(t *testing.T) {
	assert.Equal(t, 1.0, types.ImportanceCritical.Score())
	assert.Equal(t, 0.8, types.ImportanceHigh.Score())
	assert.Equal(t, 0.5, types.ImportanceMedium.Score())
	assert.Equal(t, 0.3, types.ImportanceLow.Score())
	assert.Equal(t, 0.1, types.ImportanceTrivial.Score())

	// Unknown levels fall back to medium.
	assert.Equal(t, 0.5, types.Importance("nonsense").Score())
}

func TestRecordPayloadUnion(t *testing.T) {
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := &types.Record{
		ID:         "rec-1",
		OwnerID:    "owner-1",
		Name:       "Morning run",
		MemoryType: types.MemoryTypeEvent,
		Status:     types.StatusActive,
		Version:    1,
		Payload: types.EventPayload{
			Location: "riverside park",
			Recurrence: &types.RecurrencePattern{
				Frequency: "weekly",
				Interval:  1,
				Until:     &until,
			},
		},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded types.Record
	require.NoError(t, json.Unmarshal(data, &decoded))

	payload, ok := decoded.Payload.(types.EventPayload)
	require.True(t, ok, "payload should decode as EventPayload")
	assert.Equal(t, "riverside park", payload.Location)
	require.NotNil(t, payload.Recurrence)
	assert.Equal(t, "weekly", payload.Recurrence.Frequency)
	assert.True(t, payload.Recurrence.Until.Equal(until))
}

func TestRecordPayloadAbsentForFact(t *testing.T) {
	rec := &types.Record{
		ID:         "rec-2",
		MemoryType: types.MemoryTypeFact,
		Summary:    "Prefers window seats",
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded types.Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded.Payload)
}

func TestRecordSentimentWindow(t *testing.T) {
	rec := &types.Record{}

	// Fill past the window: 25 samples of 1.0 then one of -1.0.
	for i := 0; i < types.SentimentWindowSize+5; i++ {
		rec.RecordSentiment(1.0)
	}
	rec.RecordSentiment(-1.0)

	assert.Len(t, rec.SentimentHistory, types.SentimentWindowSize)

	// 19 ones and one -1 -> mean 18/20.
	assert.InDelta(t, 18.0/20.0, rec.SentimentAverage, 1e-9)
}

func TestRecordClone(t *testing.T) {
	from := time.Now().UTC()
	rec := &types.Record{
		ID:            "rec-3",
		MemoryType:    types.MemoryTypeGoal,
		Embedding:     []float32{0.1, 0.2},
		EffectiveFrom: &from,
		Payload:       types.GoalPayload{Progress: 0.4},
	}
	rec.RecordSentiment(0.5)

	clone := rec.Clone()
	require.NotNil(t, clone)

	// Mutating the clone must not touch the original.
	clone.Embedding[0] = 9
	clone.SentimentHistory[0] = -1
	*clone.EffectiveFrom = from.Add(time.Hour)

	assert.Equal(t, float32(0.1), rec.Embedding[0])
	assert.Equal(t, 0.5, rec.SentimentHistory[0])
	assert.True(t, rec.EffectiveFrom.Equal(from))
}
