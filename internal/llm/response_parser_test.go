package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionPlainJSON(t *testing.T) {
	raw := `{"action": "ADD", "reasoning": "new information", "confidence": 0.9}`

	resp, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, "ADD", resp.Action)
	assert.Equal(t, 0.9, resp.Confidence)
}

func TestParseDecisionWithMarkdownFences(t *testing.T) {
	raw := "Here is my decision:\n```json\n{\"action\": \"update\", \"target_id\": \"rec-1\", \"update_mode\": \"supersede\", \"confidence\": 0.8}\n```\nDone."

	resp, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE", resp.Action)
	assert.Equal(t, "rec-1", resp.TargetID)
	assert.Equal(t, "supersede", resp.UpdateMode)
}

func TestParseDecisionUpdateDefaultsToReplace(t *testing.T) {
	resp, err := ParseDecision(`{"action": "UPDATE", "target_id": "rec-1"}`)
	require.NoError(t, err)
	assert.Equal(t, "replace", resp.UpdateMode)
}

func TestParseDecisionUpdateWithoutTarget(t *testing.T) {
	_, err := ParseDecision(`{"action": "UPDATE"}`)
	assert.Error(t, err)
}

func TestParseDecisionDeleteDefaultsToSoft(t *testing.T) {
	resp, err := ParseDecision(`{"action": "DELETE", "target_id": "rec-2"}`)
	require.NoError(t, err)
	assert.Equal(t, "soft", resp.DeleteMode)
}

func TestParseDecisionUnknownAction(t *testing.T) {
	_, err := ParseDecision(`{"action": "MERGE"}`)
	assert.Error(t, err)
}

func TestParseDecisionClampsConfidence(t *testing.T) {
	resp, err := ParseDecision(`{"action": "NOOP", "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.Confidence)
}

func TestParseSufficiency(t *testing.T) {
	resp, err := ParseSufficiency(`{"sufficient": true, "confidence": 0.75, "reasoning": "summaries cover it"}`)
	require.NoError(t, err)
	assert.True(t, resp.Sufficient)
	assert.Equal(t, 0.75, resp.Confidence)
}

func TestParseMergeEmptySummary(t *testing.T) {
	_, err := ParseMerge(`{"summary": "  "}`)
	assert.Error(t, err)
}

func TestExtractJSONBalancedBraces(t *testing.T) {
	raw := `prefix {"a": {"b": "close } inside string"}} suffix`
	assert.Equal(t, `{"a": {"b": "close } inside string"}}`, extractJSON(raw))
}
