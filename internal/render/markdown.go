// Package render turns a finished analysis into documents: Markdown for
// reading and exporting, PDF for sharing.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/dustin/go-humanize"
)

var sectionTitles = map[string]string{
	models.SectionExecutiveSummary:       "Resumo Executivo",
	models.SectionAvatar:                 "Avatar Psicológico",
	models.SectionMentalDrivers:          "Drivers Mentais",
	models.SectionObjections:             "Análise de Objeções",
	models.SectionCompetition:            "Análise da Concorrência",
	models.SectionMarketing:              "Estratégias de Marketing",
	models.SectionMarketData:             "Dados de Mercado",
	models.SectionRecommendations:        "Recomendações de Implementação",
	models.SectionMetrics:                "Métricas de Acompanhamento",
	models.SectionMetadata:               "Metadados",
	models.SectionDetailedImplementation: "Plano de Implementação Detalhado",
}

var fieldLabels = map[string]string{
	"content":              "Análise",
	"expanded_analysis":    "Análise Aprofundada",
	"original_content":     "Conteúdo Original",
	"service":              "Serviço",
	"model":                "Modelo",
	"tokens_used":          "Tokens",
	"total_sources":        "Total de Fontes",
	"sources":              "Fontes",
	"overview":             "Visão Geral",
	"key_findings":         "Principais Descobertas",
	"recommendations":      "Recomendações",
	"next_steps":           "Próximos Passos",
	"phase_1":              "Fase 1",
	"phase_2":              "Fase 2",
	"phase_3":              "Fase 3",
	"conversion_metrics":   "Métricas de Conversão",
	"engagement_metrics":   "Métricas de Engajamento",
	"psychology_metrics":   "Métricas Psicológicas",
	"generated_at":         "Gerado em",
	"product":              "Produto",
	"target_market":        "Mercado-Alvo",
	"competition_keywords": "Palavras-Chave de Concorrência",
	"timeline":             "Cronograma",
	"resources":            "Recursos",
	"priorities":           "Prioridades",
	"success_criteria":     "Critérios de Sucesso",
}

// metaFields are rendered inline rather than as subsections.
var metaFields = map[string]bool{"service": true, "model": true, "tokens_used": true, "total_sources": true}

// SectionTitle returns the display title of a section name.
func SectionTitle(name string) string {
	if t, ok := sectionTitles[name]; ok {
		return t
	}
	return labelize(name)
}

func fieldLabel(key string) string {
	if l, ok := fieldLabels[key]; ok {
		return l
	}
	return labelize(key)
}

func labelize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Markdown renders run as a Markdown document with sections in report
// order. Runs without a report render their failure instead.
func Markdown(run *models.AnalysisRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Análise Psicológica de Mercado: %s\n\n", run.Input.Product.Name)
	if d := run.Input.TargetMarket.Demographic; d != "" {
		fmt.Fprintf(&b, "**Público-alvo:** %s  \n", d)
	}
	if run.CompletedAt != nil {
		fmt.Fprintf(&b, "**Concluída em:** %s  \n", run.CompletedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "**Status:** %s\n\n", run.Status)

	if !run.Success {
		b.WriteString("## Falha na Análise\n\n")
		if run.ErrorMessage != "" {
			b.WriteString(run.ErrorMessage + "\n\n")
		}
		if run.FailedPhase != "" {
			fmt.Fprintf(&b, "**Fase:** %s\n\n", run.FailedPhase)
		}
		writeList(&b, run.FallbackSuggestions)
		return b.String()
	}

	writeQuality(&b, run)

	for _, sec := range run.Report.Sections {
		fmt.Fprintf(&b, "## %s\n\n", SectionTitle(sec.Name))
		if !sec.IsMapping() {
			b.WriteString(strings.TrimSpace(sec.Text) + "\n\n")
			continue
		}
		writeMeta(&b, sec)
		for _, f := range sec.Fields {
			if metaFields[f.Key] || strings.TrimSpace(f.Value) == "" {
				continue
			}
			if f.Key == "sources" {
				fmt.Fprintf(&b, "### %s\n\n", fieldLabel(f.Key))
				writeList(&b, strings.Split(f.Value, "\n"))
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", fieldLabel(f.Key), strings.TrimSpace(f.Value))
		}
	}

	if len(run.NextSteps) > 0 {
		b.WriteString("## Próximos Passos\n\n")
		writeList(&b, run.NextSteps)
	}
	return b.String()
}

func writeQuality(b *strings.Builder, run *models.AnalysisRun) {
	b.WriteString("## Qualidade do Relatório\n\n")
	grade := ""
	if run.Quality != nil {
		grade = " (" + run.Quality.Grade + ")"
	}
	fmt.Fprintf(b, "- Pontuação: %s%%%s\n", humanize.FtoaWithDigits(run.QualityScore, 1), grade)
	fmt.Fprintf(b, "- Iterações de melhoria: %d\n", run.QualityIterations)
	fmt.Fprintf(b, "- Caracteres: %s\n", humanize.Comma(int64(run.Stats.TotalCharacters)))
	fmt.Fprintf(b, "- Tempo estimado de leitura: %d min\n", run.Stats.EstimatedReadingTime)
	if len(run.ServicesUsed) > 0 {
		fmt.Fprintf(b, "- Serviços utilizados: %s\n", strings.Join(run.ServicesUsed, ", "))
	}
	if len(run.BackupServicesUsed) > 0 {
		fmt.Fprintf(b, "- Serviços de backup: %s\n", strings.Join(run.BackupServicesUsed, ", "))
	}
	b.WriteString("\n")
	if len(run.Warnings) > 0 {
		b.WriteString("**Avisos:**\n\n")
		writeList(b, run.Warnings)
	}
}

func writeMeta(b *strings.Builder, sec models.Section) {
	var parts []string
	for _, key := range []string{"service", "model", "tokens_used", "total_sources"} {
		if v, ok := sec.Value(key); ok && v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", fieldLabel(key), v))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, "*%s*\n\n", strings.Join(parts, " · "))
	}
}

func writeList(b *strings.Builder, items []string) {
	wrote := false
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.WriteString("- " + it + "\n")
			wrote = true
		}
	}
	if wrote {
		b.WriteString("\n")
	}
}
