package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecisionResponse is the parsed output of a memory decision prompt.
type DecisionResponse struct {
	Action     string  `json:"action"`      // ADD, UPDATE, DELETE, or NOOP
	TargetID   string  `json:"target_id"`   // existing record acted on, empty for ADD
	UpdateMode string  `json:"update_mode"` // replace, append, or supersede
	DeleteMode string  `json:"delete_mode"` // hard or soft
	Duplicate  bool    `json:"duplicate"`   // NOOP because content already known
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// SufficiencyResponse is the parsed output of a retrieval sufficiency check.
type SufficiencyResponse struct {
	Sufficient bool    `json:"sufficient"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// MergeResponse is the parsed output of a consolidation merge prompt.
type MergeResponse struct {
	Summary string `json:"summary"`
}

// ParseDecision extracts a DecisionResponse from raw LLM output.
func ParseDecision(raw string) (*DecisionResponse, error) {
	var resp DecisionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("llm: parse decision response: %w", err)
	}

	resp.Action = strings.ToUpper(strings.TrimSpace(resp.Action))
	switch resp.Action {
	case "ADD", "UPDATE", "DELETE", "NOOP":
	default:
		return nil, fmt.Errorf("llm: unknown decision action %q", resp.Action)
	}

	resp.UpdateMode = strings.ToLower(strings.TrimSpace(resp.UpdateMode))
	if resp.Action == "UPDATE" {
		switch resp.UpdateMode {
		case "replace", "append", "supersede":
		case "":
			resp.UpdateMode = "replace"
		default:
			return nil, fmt.Errorf("llm: unknown update mode %q", resp.UpdateMode)
		}
		if resp.TargetID == "" {
			return nil, fmt.Errorf("llm: UPDATE decision without target ID")
		}
	}

	resp.DeleteMode = strings.ToLower(strings.TrimSpace(resp.DeleteMode))
	if resp.Action == "DELETE" {
		if resp.DeleteMode == "" {
			resp.DeleteMode = "soft"
		}
		if resp.TargetID == "" {
			return nil, fmt.Errorf("llm: DELETE decision without target ID")
		}
	}

	resp.Confidence = clamp01(resp.Confidence)
	return &resp, nil
}

// ParseSufficiency extracts a SufficiencyResponse from raw LLM output.
func ParseSufficiency(raw string) (*SufficiencyResponse, error) {
	var resp SufficiencyResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("llm: parse sufficiency response: %w", err)
	}
	resp.Confidence = clamp01(resp.Confidence)
	return &resp, nil
}

// ParseMerge extracts a MergeResponse from raw LLM output.
func ParseMerge(raw string) (*MergeResponse, error) {
	var resp MergeResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("llm: parse merge response: %w", err)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return nil, fmt.Errorf("llm: merge response has empty summary")
	}
	return &resp, nil
}

// extractJSON pulls the first balanced JSON object out of text that may
// contain markdown fences or prose around it.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}

		switch char {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				braceCount++
			}
		case '}':
			if !inString {
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text[start:]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
