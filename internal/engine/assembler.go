package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/evermem/evermem/pkg/types"
)

// Scoring weights and constants for context assembly.
const (
	weightImportance = 0.3
	weightRecency    = 0.25
	weightRelevance  = 0.35
	weightMentions   = 0.1

	recencyHalfLifeDays = 14.0
	defaultRecency      = 0.5
	defaultRelevance    = 0.5

	mentionSaturation = 10.0

	// truncationFloor is the minimum remaining token budget worth filling
	// with a truncated item; below it the item is dropped instead.
	truncationFloor = 50
)

// AssemblerConfig configures context assembly.
type AssemblerConfig struct {
	// TokenBudget is the global token budget for the document. Default 2000.
	TokenBudget int

	// Section fractions of the global budget. Defaults 0.3 / 0.4 / 0.3.
	ProfileFraction  float64
	MemoryFraction   float64
	RelationFraction float64
}

func (c *AssemblerConfig) normalize() {
	if c.TokenBudget <= 0 {
		c.TokenBudget = 2000
	}
	if c.ProfileFraction <= 0 && c.MemoryFraction <= 0 && c.RelationFraction <= 0 {
		c.ProfileFraction = 0.3
		c.MemoryFraction = 0.4
		c.RelationFraction = 0.3
	}
}

// AssembleInput carries the retrieved material for one context document.
type AssembleInput struct {
	// Identity is optional static profile context prepended verbatim.
	Identity string

	Summaries []types.CategorySummary
	Entities  []*types.Record
	Results   []FusionResult

	// Now anchors recency scoring; the zero value means time.Now().
	Now time.Time
}

// Section is one assembled document section.
type Section struct {
	Type    string
	Header  string
	Content []string
	Tokens  int
}

// ContextDocument is the final prompt-ready document.
type ContextDocument struct {
	Sections    []Section
	TotalTokens int
	Text        string
}

// Assembler scores, ranks, and token-budgets retrieved material into a
// structured document.
type Assembler struct {
	cfg AssemblerConfig
}

// NewAssembler creates a context assembler.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	cfg.normalize()
	return &Assembler{cfg: cfg}
}

type scoredItem struct {
	content string
	score   float64
}

// Assemble builds the document: each section's items are scored, sorted
// descending, and packed greedily into that section's share of the token
// budget.
func (a *Assembler) Assemble(in AssembleInput) *ContextDocument {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	summaryItems := make([]scoredItem, 0, len(in.Summaries))
	for _, s := range in.Summaries {
		updated := s.UpdatedAt
		summaryItems = append(summaryItems, scoredItem{
			content: "[" + s.Category + "] " + s.Summary,
			score:   finalScore(0.5, recencyScore(&updated, now), defaultRelevance, 0),
		})
	}

	entityItems := make([]scoredItem, 0, len(in.Entities))
	for _, rec := range in.Entities {
		entityItems = append(entityItems, scoredItem{
			content: rec.Name + ": " + rec.Summary,
			score:   recordScore(rec, defaultRelevance, now),
		})
	}

	resultItems := make([]scoredItem, 0, len(in.Results))
	for _, r := range in.Results {
		if r.Record == nil {
			continue
		}
		relevance := r.CombinedScore
		if relevance <= 0 {
			relevance = defaultRelevance
		} else if relevance > 1 {
			relevance = 1
		}
		resultItems = append(resultItems, scoredItem{
			content: r.Record.Name + ": " + r.Record.Summary,
			score:   recordScore(r.Record, relevance, now),
		})
	}

	budget := a.cfg.TokenBudget
	doc := &ContextDocument{}

	sections := []struct {
		typ      string
		header   string
		items    []scoredItem
		fraction float64
	}{
		{"summaries", "## Category Summaries", summaryItems, a.cfg.ProfileFraction},
		{"entities", "## Key Memories", entityItems, a.cfg.MemoryFraction},
		{"results", "## Search Results", resultItems, a.cfg.RelationFraction},
	}

	for _, s := range sections {
		section := packSection(s.typ, s.header, s.items, int(float64(budget)*s.fraction))
		if len(section.Content) > 0 {
			doc.Sections = append(doc.Sections, section)
			doc.TotalTokens += section.Tokens
		}
	}

	var sb strings.Builder
	if in.Identity != "" {
		sb.WriteString(in.Identity)
		sb.WriteString("\n\n")
	}
	for i, section := range doc.Sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(section.Header)
		sb.WriteString("\n")
		for _, line := range section.Content {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	doc.Text = sb.String()

	return doc
}

// packSection sorts items by score descending and appends them greedily
// until the budget would be exceeded. When the remaining budget is at least
// the truncation floor, the next item is hard-truncated with an ellipsis to
// fill it; otherwise packing stops.
func packSection(typ, header string, items []scoredItem, budget int) Section {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	section := Section{Type: typ, Header: header}
	used := 0

	for _, item := range items {
		tokens := estimateTokens(item.content)
		if used+tokens <= budget {
			section.Content = append(section.Content, item.content)
			used += tokens
			continue
		}

		remaining := budget - used
		if remaining >= truncationFloor {
			truncated := truncateToTokens(item.content, remaining)
			section.Content = append(section.Content, truncated)
			used += estimateTokens(truncated)
		}
		break
	}

	section.Tokens = used
	return section
}

func recordScore(rec *types.Record, relevance float64, now time.Time) float64 {
	updated := rec.UpdatedAt
	var ts *time.Time
	if !updated.IsZero() {
		ts = &updated
	}
	return finalScore(rec.ImportanceScore, recencyScore(ts, now), relevance, mentionFrequency(rec.MentionCount))
}

func finalScore(importance, recency, relevance, mentionFreq float64) float64 {
	return importance*weightImportance +
		recency*weightRecency +
		relevance*weightRelevance +
		mentionFreq*weightMentions
}

// recencyScore halves every 14 days. Missing timestamps score the neutral
// default.
func recencyScore(t *time.Time, now time.Time) float64 {
	if t == nil || t.IsZero() {
		return defaultRecency
	}
	days := now.Sub(*t).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Pow(0.5, days/recencyHalfLifeDays)
}

func mentionFrequency(count int) float64 {
	f := float64(count) / mentionSaturation
	if f > 1 {
		return 1
	}
	return f
}

// estimateTokens approximates tokens as one per four characters, rounded up.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// truncateToTokens hard-truncates s to fit within tokens, ending with an
// ellipsis.
func truncateToTokens(s string, tokens int) string {
	maxChars := tokens * 4
	if len(s) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return "..."
	}
	return s[:maxChars-3] + "..."
}
