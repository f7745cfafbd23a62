package quality

import (
	"time"

	"github.com/agentoven/psymarket/pkg/models"
)

// Grade maps a score to a letter grade.
func Grade(score float64) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 85:
		return "B+"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// QualityReport summarises verdict for the report endpoint.
func (v *Validator) QualityReport(verdict models.ValidationVerdict) *models.QualityReport {
	issues := verdict.Reasons
	if issues == nil {
		issues = []string{}
	}
	suggestions := verdict.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return &models.QualityReport{
		GeneratedAt:            time.Now().UTC(),
		OverallScore:           verdict.Score,
		Approved:               verdict.Passed,
		Grade:                  Grade(verdict.Score),
		IssuesFound:            len(issues),
		CriticalIssues:         issues,
		ImprovementSuggestions: suggestions,
		Metrics:                verdict.Metrics,
		NextSteps:              v.NextSteps(verdict),
	}
}

// NextSteps lists what to do with a report given its verdict.
func (v *Validator) NextSteps(verdict models.ValidationVerdict) []string {
	if verdict.Passed {
		return []string{"Relatório aprovado para entrega", "Realizar revisão final opcional"}
	}

	var steps []string
	switch {
	case verdict.Score < 70:
		steps = append(steps, "Revisão completa necessária", "Regenerar seções com baixa qualidade")
	case verdict.Score < v.threshold:
		steps = append(steps, "Melhorar seções específicas", "Adicionar mais dados e análises")
	}
	top := verdict.Suggestions
	if len(top) > 3 {
		top = top[:3]
	}
	return append(steps, top...)
}
