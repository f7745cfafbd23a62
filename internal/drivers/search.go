package drivers

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agentoven/psymarket/pkg/models"
)

// Relevance scores how many query words appear in text. Very short texts
// are penalised. The result is in [0, 1].
func Relevance(query, text string) float64 {
	qWords := wordSet(query)
	if len(qWords) == 0 {
		return 0
	}
	tWords := wordSet(text)
	hits := 0
	for w := range qWords {
		if _, ok := tWords[w]; ok {
			hits++
		}
	}
	score := float64(hits) / float64(len(qWords))
	if len([]rune(text)) < 50 {
		score *= 0.7
	}
	return min(score, 1.0)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

// MinSnippetLength is the shortest snippet a usable hit may carry.
const MinSnippetLength = 30

// suspiciousURLParts reject hits whose URL looks like spam or ad tracking.
var suspiciousURLParts = []string{"spam", "ads", "click", "fake"}

// usableHit reports whether a hit has a title, an http(s) URL that is not
// suspicious and a snippet of at least MinSnippetLength characters.
func usableHit(h models.SearchHit) bool {
	if h.Title == "" || h.URL == "" || len([]rune(h.Snippet)) < MinSnippetLength {
		return false
	}
	url := strings.ToLower(h.URL)
	if !strings.HasPrefix(url, "http") {
		return false
	}
	for _, part := range suspiciousURLParts {
		if strings.Contains(url, part) {
			return false
		}
	}
	return true
}

// hitsResult drops unusable hits, scores the rest against query and
// renders them most relevant first as numbered text, so search output can
// be validated like any other provider content.
func hitsResult(query, model string, hits []models.SearchHit) *models.InvocationResult {
	kept := make([]models.SearchHit, 0, len(hits))
	for _, h := range hits {
		h.Title = strings.TrimSpace(h.Title)
		h.URL = strings.TrimSpace(h.URL)
		h.Snippet = strings.TrimSpace(h.Snippet)
		if !usableHit(h) {
			continue
		}
		h.RelevanceScore = Relevance(query, h.Title+" "+h.Snippet)
		kept = append(kept, h)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RelevanceScore > kept[j].RelevanceScore
	})
	return &models.InvocationResult{
		Content: FormatHits(kept),
		Model:   model,
		Results: kept,
	}
}

// FormatHits renders hits one per line as "N. title (url): snippet".
func FormatHits(hits []models.SearchHit) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, h.Title, h.URL)
		if h.Snippet != "" {
			b.WriteString(": ")
			b.WriteString(h.Snippet)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
