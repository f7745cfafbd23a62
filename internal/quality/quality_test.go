package quality_test

import (
	"strings"
	"testing"

	"github.com/agentoven/psymarket/internal/quality"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One line that satisfies every content, component and depth indicator.
const richLine = "A pesquisa mostrou que 68% dos empreendedores investem R$ 1500 por ano em capacitação desde 2021, " +
	"e os dados indicam crescimento; a análise revela que a psicologia do consumidor explica porque o comportamento muda, " +
	"com motivação de compra ligada ao processo de decisão, à influência social, aos aspectos emocionais, " +
	"aos padrões de comportamento e aos drivers inconscientes. Segundo a pesquisa do setor e baseado em dados do IBGE " +
	"(fonte: IBGE), o avatar psicológico, os drivers mentais, a análise de objeções, as estratégias de marketing, " +
	"a análise da concorrência, os dados de mercado, as recomendações e as métricas de sucesso formam o plano."

func richContent(lines int) string {
	return strings.TrimSpace(strings.Repeat(richLine+"\n", lines))
}

func richReport() models.Report {
	var r models.Report
	r = r.With(models.MapSection(models.SectionExecutiveSummary, "overview", "visão", "key_findings", "achados", "recommendations", "ações", "next_steps", "passos"))
	for _, name := range models.GeneratedSections {
		r = r.With(models.MapSection(name, "content", richContent(8), "service", "Provider", "model", "m-1", "tokens_used", "100"))
	}
	r = r.With(models.MapSection(models.SectionRecommendations, "phase_1", "um", "phase_2", "dois", "phase_3", "três"))
	r = r.With(models.MapSection(models.SectionMetrics, "conversion_metrics", "CAC", "engagement_metrics", "tempo", "psychology_metrics", "ressonância"))
	r = r.With(models.MapSection(models.SectionMetadata, "generated_at", "agora", "product", "Curso X", "target_market", "empreendedores"))
	return r
}

// ── Per-call validation ─────────────────────────────────────

func TestCheckResult(t *testing.T) {
	long := richContent(1)
	tests := []struct {
		name   string
		result *models.InvocationResult
		class  models.ServiceClass
		want   bool
	}{
		{"ok is rejected", &models.InvocationResult{Content: "ok"}, models.ServiceChat, false},
		{"nil", nil, models.ServiceChat, false},
		{"99 characters", &models.InvocationResult{Content: strings.Repeat("a", 99)}, models.ServiceChat, false},
		{"100 characters", &models.InvocationResult{Content: strings.Repeat("a", 100)}, models.ServiceChat, true},
		{"whitespace does not count", &models.InvocationResult{Content: "   " + strings.Repeat("á", 99) + "\n\n"}, models.ServiceChat, false},
		{"rich answer", &models.InvocationResult{Content: long}, models.ServiceAnalysis, true},
		{"lorem ipsum any case", &models.InvocationResult{Content: long + " Lorem Ipsum"}, models.ServiceAnalysis, false},
		{"bracket prompt", &models.InvocationResult{Content: long + " [Insert data]"}, models.ServiceChat, false},
		{"search hits only", &models.InvocationResult{Results: []models.SearchHit{
			{Title: "Mercado de cursos", Snippet: long},
		}}, models.ServiceSearch, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := quality.CheckResult(tt.result, tt.class)
			assert.Equal(t, tt.want, got, "reason: %s", reason)
			if !got {
				assert.NotEmpty(t, reason)
			}
			assert.Equal(t, got, quality.ValidateResult(tt.result, tt.class))
		})
	}
}

// ── Report validation ───────────────────────────────────────

func TestValidateReport_RichReportPasses(t *testing.T) {
	v := quality.NewValidator(0, 0)
	verdict := v.ValidateReport(richReport())

	assert.True(t, verdict.Passed, "reasons: %v", verdict.Reasons)
	assert.Empty(t, verdict.Reasons)
	assert.InDelta(t, 100.0, verdict.Score, 1e-9)
	assert.InDelta(t, 30.0, verdict.Breakdown.Content, 1e-9, "content is capped at 30")
	assert.GreaterOrEqual(t, verdict.Metrics.TotalCharacters, quality.DefaultMinReportLength)
}

func TestValidateReport_OneCharacterShort(t *testing.T) {
	v := quality.NewValidator(85, 25000)
	report := models.Report{}.With(models.TextSection(models.SectionAvatar, strings.Repeat("a", 24999)))

	verdict := v.ValidateReport(report)

	assert.False(t, verdict.Passed)
	assert.Equal(t, 24999, verdict.Metrics.TotalCharacters)
	assert.Contains(t, verdict.Reasons, "Relatório muito curto: 24,999 caracteres (faltam 1)")
}

func TestValidateReport_CountsRunesNotBytes(t *testing.T) {
	v := quality.NewValidator(85, 10)
	report := models.Report{}.With(models.TextSection(models.SectionAvatar, "ação ação"))

	verdict := v.ValidateReport(report)
	assert.Equal(t, 9, verdict.Metrics.TotalCharacters)
	assert.Contains(t, verdict.Reasons, "Relatório muito curto: 9 caracteres (faltam 1)")
}

func TestValidateReport_Deterministic(t *testing.T) {
	v := quality.NewValidator(85, 25000)
	for _, report := range []models.Report{richReport(), {}, models.Report{}.With(models.TextSection("x", "curto"))} {
		first := v.ValidateReport(report)
		second := v.ValidateReport(report)
		assert.Equal(t, first, second)
	}
}

func TestValidateReport_ForbiddenPatterns(t *testing.T) {
	v := quality.NewValidator(85, 25000)
	base := richReport()
	avatar, _ := base.Get(models.SectionAvatar)

	tests := []struct {
		name     string
		addition string
		wantHit  bool
	}{
		{"bracket placeholder", " [nome do produto]", true},
		{"coming soon", " coming soon", true},
		{"todo as a word", " todo: revisar", true},
		{"todos is portuguese", " todos os clientes", false},
		{"método contains todo", " o método funciona", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, _ := avatar.Value("content")
			report := base.With(avatar.WithField("content", content+tt.addition))
			verdict := v.ValidateReport(report)

			hit := false
			for _, r := range verdict.Reasons {
				if strings.HasPrefix(r, "Conteúdo simulado detectado") {
					hit = true
				}
			}
			assert.Equal(t, tt.wantHit, hit, "reasons: %v", verdict.Reasons)
			assert.Equal(t, !tt.wantHit, verdict.Passed)
		})
	}
}

func TestValidateReport_ShortSectionBlocksPass(t *testing.T) {
	v := quality.NewValidator(85, 25000)
	report := richReport().With(models.MapSection(models.SectionObjections,
		"content", richContent(1), "service", "s", "model", "m", "tokens_used", "1"))

	verdict := v.ValidateReport(report)
	require.False(t, verdict.Passed)
	found := false
	for _, r := range verdict.Reasons {
		if strings.HasPrefix(r, "Seção 'analise_objecoes' muito curta") {
			found = true
		}
	}
	assert.True(t, found, "reasons: %v", verdict.Reasons)
}

func TestValidateReport_EmptyReport(t *testing.T) {
	v := quality.NewValidator(85, 25000)
	verdict := v.ValidateReport(models.Report{})

	assert.False(t, verdict.Passed)
	assert.Zero(t, verdict.Breakdown.Structure)
	assert.Contains(t, verdict.Reasons, "Relatório sem estrutura de seções definida")
	assert.Contains(t, verdict.Suggestions, "Revisão completa necessária - qualidade muito baixa")
}

// ── Quality report ──────────────────────────────────────────

func TestGrade(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "A+"}, {95, "A+"}, {94.9, "A"}, {90, "A"}, {85, "B+"},
		{80, "B"}, {70, "C"}, {60, "D"}, {59.9, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := quality.Grade(tt.score); got != tt.want {
			t.Errorf("Grade(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestQualityReport(t *testing.T) {
	v := quality.NewValidator(85, 25000)

	approved := v.QualityReport(v.ValidateReport(richReport()))
	assert.True(t, approved.Approved)
	assert.Equal(t, "A+", approved.Grade)
	assert.Equal(t, []string{"Relatório aprovado para entrega", "Realizar revisão final opcional"}, approved.NextSteps)

	poor := v.QualityReport(v.ValidateReport(models.Report{}))
	assert.False(t, poor.Approved)
	assert.Equal(t, "F", poor.Grade)
	assert.Equal(t, len(poor.CriticalIssues), poor.IssuesFound)
	require.GreaterOrEqual(t, len(poor.NextSteps), 2)
	assert.Equal(t, "Revisão completa necessária", poor.NextSteps[0])
	assert.LessOrEqual(t, len(poor.NextSteps), 5)
}
