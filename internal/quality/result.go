// Package quality judges provider output and compiled reports.
//
// CheckResult gates each individual provider answer before the
// orchestrator accepts it. Validator scores a whole report out of 100 and
// decides whether it can be delivered.
package quality

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agentoven/psymarket/pkg/models"
)

// MinResultLength is the shortest acceptable provider answer, in characters.
const MinResultLength = 100

var forbiddenTokens = []string{
	"lorem ipsum",
	"placeholder",
	"exemplo",
	"simulado",
	"mocado",
	"teste",
	"sample",
	"dummy",
	"fake",
	"[insert",
	"[your",
	"replace with",
	"add your",
}

// CheckResult reports whether a single provider answer is usable, and why
// not when it is rejected.
func CheckResult(result *models.InvocationResult, class models.ServiceClass) (bool, string) {
	if result == nil {
		return false, "no result"
	}
	content := strings.TrimSpace(result.Content)
	if class == models.ServiceSearch && content == "" && len(result.Results) > 0 {
		content = strings.TrimSpace(resultsText(result.Results))
	}

	if n := utf8.RuneCountInString(content); n < MinResultLength {
		return false, fmt.Sprintf("content too short: %d characters (minimum %d)", n, MinResultLength)
	}

	lower := strings.ToLower(content)
	for _, tok := range forbiddenTokens {
		if strings.Contains(lower, tok) {
			return false, fmt.Sprintf("placeholder content detected: %q", tok)
		}
	}
	return true, ""
}

// ValidateResult is CheckResult without the reason.
func ValidateResult(result *models.InvocationResult, class models.ServiceClass) bool {
	ok, _ := CheckResult(result, class)
	return ok
}

func resultsText(hits []models.SearchHit) string {
	var b strings.Builder
	for _, h := range hits {
		b.WriteString(h.Title)
		b.WriteByte(' ')
		b.WriteString(h.Snippet)
		b.WriteByte('\n')
	}
	return b.String()
}
