package pipeline

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agentoven/psymarket/pkg/models"
)

// phaseOutputs carries the provider answers of the six generative phases.
type phaseOutputs struct {
	market      *models.InvocationResult
	psychology  *models.InvocationResult
	competition *models.InvocationResult
	drivers     *models.InvocationResult
	objections  *models.InvocationResult
	marketing   *models.InvocationResult
}

func providerSection(name string, res *models.InvocationResult) models.Section {
	return models.MapSection(name,
		"content", res.Content,
		"service", res.Provider,
		"model", res.Model,
		"tokens_used", strconv.FormatInt(res.TokensUsed, 10),
	)
}

func marketSection(res *models.InvocationResult) models.Section {
	sources := make([]string, 0, len(res.Results))
	for _, h := range res.Results {
		sources = append(sources, h.URL)
	}
	return models.MapSection(models.SectionMarketData,
		"content", res.Content,
		"total_sources", strconv.Itoa(len(res.Results)),
		"service", res.Provider,
		"sources", strings.Join(sources, "\n"),
	)
}

// compileReport assembles the report in its fixed section order. It makes
// no provider calls.
func compileReport(in models.AnalysisInput, out phaseOutputs, now time.Time) models.Report {
	return models.Report{Sections: []models.Section{
		models.MapSection(models.SectionExecutiveSummary,
			"overview", "Análise psicológica completa realizada com dados reais de mercado",
			"key_findings", "Principais insights extraídos das análises especializadas",
			"recommendations", "Recomendações estratégicas baseadas em drivers psicológicos",
			"next_steps", "Plano de implementação prioritário",
		),
		providerSection(models.SectionAvatar, out.psychology),
		providerSection(models.SectionMentalDrivers, out.drivers),
		providerSection(models.SectionObjections, out.objections),
		providerSection(models.SectionCompetition, out.competition),
		providerSection(models.SectionMarketing, out.marketing),
		marketSection(out.market),
		models.MapSection(models.SectionRecommendations,
			"phase_1", "Implementação de estratégias prioritárias",
			"phase_2", "Otimização baseada em resultados iniciais",
			"phase_3", "Expansão e escalonamento das táticas eficazes",
		),
		models.MapSection(models.SectionMetrics,
			"conversion_metrics", "Taxa de conversão, CAC, LTV",
			"engagement_metrics", "Tempo de permanência, interações",
			"psychology_metrics", "Ressonância da mensagem, drivers ativados",
		),
		models.MapSection(models.SectionMetadata,
			"generated_at", now.UTC().Format(time.RFC3339),
			"product", in.Product.Name,
			"target_market", in.TargetMarket.Demographic,
			"competition_keywords", strings.Join(in.CompetitionKeywords, ", "),
		),
	}}
}

func detailedImplementationSection() models.Section {
	return models.MapSection(models.SectionDetailedImplementation,
		"timeline", "90 dias para implementação completa",
		"resources", "Equipe multidisciplinar e orçamento de marketing",
		"priorities", "Foco nos drivers mentais de maior impacto",
		"success_criteria", "Métricas específicas de performance",
	)
}

// expandSection returns sec with addition merged in. Mappings gain (or
// extend) an expanded_analysis field; plain text becomes a mapping that
// keeps the original text.
func expandSection(sec models.Section, addition string) models.Section {
	if !sec.IsMapping() {
		return models.MapSection(sec.Name, "original_content", sec.Text, "expanded_analysis", addition)
	}
	if prev, ok := sec.Value("expanded_analysis"); ok && prev != "" {
		addition = prev + "\n\n" + addition
	}
	return sec.WithField("expanded_analysis", addition)
}

// mentionsImplementation reports whether any section value contains the
// word "implementacao".
func mentionsImplementation(r models.Report) bool {
	for _, sec := range r.Sections {
		if strings.Contains(strings.ToLower(sec.AllText()), "implementacao") {
			return true
		}
	}
	return false
}

// reportStats measures a finished report.
func reportStats(r models.Report, minLength int) models.ReportStats {
	text := r.Text()
	chars := utf8.RuneCountInString(text)
	words := len(strings.Fields(text))
	return models.ReportStats{
		TotalCharacters:      chars,
		TotalWords:           words,
		TotalSections:        len(r.Sections),
		MeetsMinimumLength:   chars >= minLength,
		EstimatedReadingTime: words / 200,
	}
}

// runNextSteps advises the caller after a successful run.
func runNextSteps(score float64, usedBackups bool) []string {
	var steps []string
	switch {
	case score >= 90:
		steps = []string{
			"Relatório pronto para implementação",
			"Revisar recomendações estratégicas",
			"Definir cronograma de implementação",
		}
	case score >= 80:
		steps = []string{
			"Relatório aprovado com ressalvas menores",
			"Considerar refinamentos opcionais",
			"Iniciar implementação das estratégias principais",
		}
	default:
		steps = []string{
			"Relatório necessita melhorias",
			"Revisar seções com menor qualidade",
			"Executar nova análise se necessário",
		}
	}
	if usedBackups {
		steps = append(steps, "Nota: utilizados serviços de backup, considere configurar as APIs primárias")
	}
	return steps
}

// FallbackSuggestions are returned with every failed run.
var FallbackSuggestions = []string{
	"Configure pelo menos uma chave de API (OpenAI, Gemini ou Groq)",
	"Verifique a conexão com a internet",
	"Consulte GET /api/v1/system/status para ver os provedores disponíveis",
	"Considere usar VPN se houver bloqueios regionais",
	"Entre em contato com o suporte se o problema persistir",
}
