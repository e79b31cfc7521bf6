package engine

import (
	"sort"
	"strings"
)

// categoryKeywords maps category names to the keywords that signal them.
// Queries and candidate facts are scored by keyword overlap against this
// table; no model call is involved.
var categoryKeywords = map[string][]string{
	"work":          {"work", "job", "career", "company", "office", "project", "meeting", "colleague", "boss", "promotion", "salary", "startup"},
	"health":        {"health", "doctor", "exercise", "gym", "diet", "sleep", "medication", "injury", "therapy", "running", "weight"},
	"relationships": {"friend", "family", "partner", "wife", "husband", "mother", "father", "sister", "brother", "relationship", "wedding", "kids"},
	"hobbies":       {"hobby", "music", "guitar", "reading", "gaming", "painting", "photography", "cooking", "hiking", "climbing", "chess"},
	"finance":       {"money", "budget", "savings", "investment", "rent", "mortgage", "loan", "debt", "tax", "salary", "bank"},
	"travel":        {"travel", "trip", "flight", "vacation", "hotel", "visa", "airport", "city", "country", "abroad"},
	"education":     {"learn", "course", "study", "degree", "university", "school", "class", "exam", "book", "lecture"},
	"preferences":   {"favorite", "prefer", "like", "dislike", "hate", "love", "enjoy", "allergic", "vegetarian", "vegan"},
}

// categoryFor picks the single best category for a piece of content.
// Returns "general" when nothing in the table matches.
func categoryFor(content string) string {
	top := topCategories(content, 1)
	if len(top) == 0 {
		return "general"
	}
	return top[0]
}

// topCategories scores every category by keyword overlap with the text and
// returns up to n categories with a non-zero score, best first. Ties break
// alphabetically so results are stable.
func topCategories(text string, n int) []string {
	words := tokenize(text)
	if len(words) == 0 {
		return nil
	}

	type scored struct {
		category string
		score    int
	}

	var hits []scored
	for category, keywords := range categoryKeywords {
		score := 0
		for _, kw := range keywords {
			if words[kw] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{category, score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].category < hits[j].category
	})

	if len(hits) > n {
		hits = hits[:n]
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.category
	}
	return out
}

func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		words[w] = true
	}
	return words
}

// extractEntityNames pulls capitalized words out of a query as likely entity
// names. The first word of the query only counts when it is not a common
// question opener.
func extractEntityNames(query string) []string {
	fields := strings.Fields(query)
	var names []string
	seen := make(map[string]bool)

	for i, f := range fields {
		trimmed := strings.Trim(f, ".,!?;:'\"()")
		if trimmed == "" {
			continue
		}
		first := rune(trimmed[0])
		if first < 'A' || first > 'Z' {
			continue
		}
		if i == 0 && questionOpeners[strings.ToLower(trimmed)] {
			continue
		}
		if !seen[trimmed] {
			seen[trimmed] = true
			names = append(names, trimmed)
		}
	}

	return names
}

var questionOpeners = map[string]bool{
	"what": true, "where": true, "when": true, "who": true, "why": true,
	"how": true, "which": true, "does": true, "did": true, "do": true,
	"is": true, "are": true, "was": true, "tell": true, "the": true,
	"i": true, "my": true,
}
