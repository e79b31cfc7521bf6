package llm

import (
	"fmt"
	"strings"

	"github.com/evermem/evermem/pkg/types"
)

// DecisionPrompt builds a strict JSON-only prompt asking the model to decide
// how a candidate fact relates to the user's existing memories.
func DecisionPrompt(candidate *types.CandidateFact, similar []*types.Record) string {
	var sb strings.Builder

	sb.WriteString(`TASK: Decide how a new piece of information relates to existing memories.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. Your response MUST start with { and end with }.

ACTIONS:
- ADD: the information is new, no existing memory covers it
- UPDATE: it changes or extends an existing memory (set target_id)
- DELETE: it invalidates an existing memory (set target_id)
- NOOP: it adds nothing, or is a secret that must not be stored

UPDATE MODES (only for UPDATE):
- replace: the old content is obsolete, overwrite it
- append: the new detail complements the old content, keep both
- supersede: a life change where history matters, keep the old memory as a historical version

DELETE MODES (only for DELETE):
- soft: mark the memory deleted but keep the row
- hard: remove the memory entirely (only when the user demands erasure)

Set "duplicate": true on NOOP when the information is already known verbatim.

REQUIRED JSON STRUCTURE:
{"action": "ADD", "target_id": "", "update_mode": "", "delete_mode": "", "duplicate": false, "reasoning": "...", "confidence": 0.9}

NEW INFORMATION:
`)
	fmt.Fprintf(&sb, "name: %s\ntype: %s\ncontent: %s\n", candidate.Name, candidate.MemoryType, candidate.Content)

	if len(similar) == 0 {
		sb.WriteString("\nEXISTING MEMORIES: none\n")
	} else {
		sb.WriteString("\nEXISTING MEMORIES:\n")
		for _, rec := range similar {
			fmt.Fprintf(&sb, "- id: %s | name: %s | type: %s | content: %s\n",
				rec.ID, rec.Name, rec.MemoryType, rec.Summary)
		}
	}

	sb.WriteString("\nRespond with JSON only.")
	return sb.String()
}

// SufficiencyPrompt builds a prompt asking whether the retrieved context is
// enough to answer the query.
func SufficiencyPrompt(query, context string) string {
	return fmt.Sprintf(`TASK: Judge whether the context below is sufficient to answer the question.
OUTPUT: ONLY valid JSON. NO markdown. Your response MUST start with { and end with }.

REQUIRED JSON STRUCTURE:
{"sufficient": true, "confidence": 0.8, "reasoning": "..."}

QUESTION:
%s

CONTEXT:
%s

Respond with JSON only.`, query, context)
}

// MergePrompt builds a prompt asking the model to merge near-duplicate
// memory summaries into one.
func MergePrompt(summaries []string) string {
	var sb strings.Builder
	sb.WriteString(`TASK: Merge the near-duplicate memories below into a single summary.
Preserve every distinct detail. Do not invent information.
OUTPUT: ONLY valid JSON. NO markdown. Your response MUST start with { and end with }.

REQUIRED JSON STRUCTURE:
{"summary": "..."}

MEMORIES:
`)
	for i, s := range summaries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	sb.WriteString("\nRespond with JSON only.")
	return sb.String()
}

// SummaryEvolvePrompt builds a prompt asking the model to fold a new memory
// into an existing category summary.
func SummaryEvolvePrompt(category, existing, addition string) string {
	if existing == "" {
		existing = "(no summary yet)"
	}
	return fmt.Sprintf(`TASK: Update a running summary of the user's "%s" memories to include new information.
Keep it under 100 words. Drop nothing that is still true.
OUTPUT: ONLY valid JSON. NO markdown. Your response MUST start with { and end with }.

REQUIRED JSON STRUCTURE:
{"summary": "..."}

CURRENT SUMMARY:
%s

NEW INFORMATION:
%s

Respond with JSON only.`, category, existing, addition)
}
