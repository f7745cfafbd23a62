package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/dustin/go-humanize"
)

// Defaults for NewValidator.
const (
	DefaultThreshold       = 85.0
	DefaultMinReportLength = 25000
	MinSectionLength       = 800
)

// ── Pattern tables ──────────────────────────────────────────

type namedPattern struct {
	source string
	re     *regexp.Regexp
	word   bool
}

// find returns every match of p in text. Word patterns report the word
// without the delimiters around it.
func (p namedPattern) find(text string) []string {
	if !p.word {
		return p.re.FindAllString(text, -1)
	}
	var out []string
	for _, m := range p.re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// word matches s only as a whole word, so "todo" does not fire inside
// "todos" or "método".
func word(s string) namedPattern {
	return namedPattern{
		source: s,
		re:     regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(` + s + `)(?:[^\p{L}\p{N}_]|$)`),
		word:   true,
	}
}

func compile(sources ...string) []namedPattern {
	out := make([]namedPattern, len(sources))
	for i, s := range sources {
		out[i] = namedPattern{source: s, re: regexp.MustCompile("(?i)" + s)}
	}
	return out
}

var (
	forbiddenPatterns = append(compile(
		`\[.*?\]`,
		`lorem ipsum`,
		`exemplo.*genérico`,
		`simulado`,
		`mocado`,
		`placeholder`,
		`your.*here`,
		`insert.*content`,
		`add.*information`,
		`replace.*with`,
		`coming soon`,
		`to be added`,
		`xxx+`,
	), word("pending"), word("tbd"), word("todo"))

	requiredPatterns = compile(
		`\d+%`,
		`R\$\s*\d+`,
		`\d{4}`,
		`pesquisa.*mostrou?`,
		`dados.*indicam`,
		`análise.*revela`,
	)

	citationPatterns = compile(
		`segundo.*pesquisa`,
		`estudo.*mostrou`,
		`dados.*ibge`,
		`relatório.*mostra`,
		`fonte:`,
		`baseado.*em`,
	)

	// Matched against section keys, which carry no accents.
	structurePatterns = compile(
		`avatar`,
		`drivers.*mentais`,
		`analise.*objecoes`,
		`estrategias.*marketing`,
		`concorrencia`,
		`mercado`,
		`recomendacoes`,
		`metricas`,
	)

	depthPatterns = compile(
		`porque.*comportamento`,
		`psicologia.*consumidor`,
		`motivação.*compra`,
		`processo.*decisão`,
		`influência.*social`,
		`aspectos.*emocionais`,
		`padrões.*comportamento`,
		`drivers.*inconscientes`,
	)
)

type component struct {
	name     string
	patterns []namedPattern
}

var components = []component{
	{"avatar_psicologico", compile(`avatar.*psicológico`, `perfil.*demográfico`, `persona`)},
	{"drivers_mentais", compile(`drivers.*mentais`, `gatilhos.*psicológicos`, `motivadores`)},
	{"analise_objecoes", compile(`análise.*objeções`, `objeções.*cliente`, `resistências`)},
	{"estrategias_marketing", compile(`estratégias.*marketing`, `plano.*marketing`, `táticas`)},
	{"analise_concorrencia", compile(`análise.*concorrência`, `concorrentes`, `competidores`)},
	{"dados_mercado", compile(`dados.*mercado`, `mercado.*alvo`, `segmentação`)},
	{"recomendacoes_acao", compile(`recomendações`, `plano.*ação`, `próximos.*passos`)},
	{"metricas_sucesso", compile(`métricas.*sucesso`, `indicadores`, `kpis`)},
}

// ── Validator ───────────────────────────────────────────────

// Validator scores compiled reports. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	threshold float64
	minLength int
}

// NewValidator creates a Validator. Non-positive arguments select the
// defaults.
func NewValidator(threshold float64, minLength int) *Validator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if minLength <= 0 {
		minLength = DefaultMinReportLength
	}
	return &Validator{threshold: threshold, minLength: minLength}
}

// Threshold is the minimum passing score.
func (v *Validator) Threshold() float64 { return v.threshold }

// MinLength is the minimum report length in characters.
func (v *Validator) MinLength() int { return v.minLength }

// ValidateReport scores report. The same report always yields the same
// verdict.
func (v *Validator) ValidateReport(report models.Report) models.ValidationVerdict {
	text := report.Text()
	lower := strings.ToLower(text)

	var verdict models.ValidationVerdict
	verdict.Reasons = []string{}

	length, issues, metrics := v.scoreLength(report, text)
	verdict.Breakdown.Length = length
	verdict.Reasons = append(verdict.Reasons, issues...)
	verdict.Metrics = metrics

	content, issues, suggestions := scoreContent(lower)
	verdict.Breakdown.Content = content
	verdict.Reasons = append(verdict.Reasons, issues...)
	verdict.Suggestions = append(verdict.Suggestions, suggestions...)

	structure, issues := scoreStructure(report)
	verdict.Breakdown.Structure = structure
	verdict.Reasons = append(verdict.Reasons, issues...)

	comps, issues := scoreComponents(lower)
	verdict.Breakdown.Components = comps
	verdict.Reasons = append(verdict.Reasons, issues...)

	depth, issues := scoreDepth(lower)
	verdict.Breakdown.Depth = depth
	verdict.Reasons = append(verdict.Reasons, issues...)

	verdict.Score = length + content + structure + comps + depth
	verdict.Passed = verdict.Score >= v.threshold && len(verdict.Reasons) == 0

	if verdict.Score < v.threshold {
		verdict.Suggestions = append(verdict.Suggestions,
			fmt.Sprintf("Relatório não atinge qualidade mínima de %s%%", humanize.Ftoa(v.threshold)))
	}
	if verdict.Score < 70 {
		verdict.Suggestions = append(verdict.Suggestions, "Revisão completa necessária - qualidade muito baixa")
	}
	return verdict
}

// Length: 15 for the minimum total, 5 for a balanced distribution.
func (v *Validator) scoreLength(report models.Report, text string) (float64, []string, models.ReportMetrics) {
	var issues []string
	total := utf8.RuneCountInString(text)
	metrics := models.ReportMetrics{
		TotalCharacters: total,
		TotalWords:      len(strings.Fields(text)),
		SectionLengths:  make(map[string]int),
	}

	var score float64
	if total >= v.minLength {
		score = 15
	} else {
		issues = append(issues, fmt.Sprintf("Relatório muito curto: %s caracteres (faltam %s)",
			humanize.Comma(int64(total)), humanize.Comma(int64(v.minLength-total))))
		score = float64(total) / float64(v.minLength) * 15
	}

	long := 0
	for _, name := range models.GeneratedSections {
		sec, ok := report.Get(name)
		if !ok {
			continue
		}
		n := utf8.RuneCountInString(sec.AllText())
		metrics.SectionLengths[name] = n
		if n < MinSectionLength {
			issues = append(issues, fmt.Sprintf("Seção '%s' muito curta: %d caracteres", name, n))
		} else {
			long++
		}
	}
	if long >= 6 {
		score += 5
	}
	return score, issues, metrics
}

// Real content: 15 without placeholders, 15 for concrete data, up to 5
// bonus for citations. Capped at 30.
func scoreContent(lower string) (float64, []string, []string) {
	var issues, suggestions []string
	var score float64

	forbidden := 0
	for _, p := range forbiddenPatterns {
		matches := p.find(lower)
		if len(matches) == 0 {
			continue
		}
		forbidden += len(matches)
		issues = append(issues, fmt.Sprintf("Conteúdo simulado detectado: '%s' (padrão: %s)", matches[0], p.source))
	}
	if forbidden == 0 {
		score += 15
	} else {
		score += math.Max(0, 15-math.Min(15, float64(forbidden)*2))
		suggestions = append(suggestions, "Remover todo conteúdo simulado, mocado ou placeholder")
	}

	required := countMatches(requiredPatterns, lower)
	if required >= 10 {
		score += 15
	} else {
		score += float64(required) / 10 * 15
		suggestions = append(suggestions, "Adicionar mais dados específicos (percentuais, valores, datas)")
	}

	citations := countMatches(citationPatterns, lower)
	if citations >= 5 {
		score += math.Min(5, float64(citations))
	} else {
		suggestions = append(suggestions, "Adicionar mais referências e citações de fontes confiáveis")
	}

	return math.Min(30, score), issues, suggestions
}

// Structure: 15 for the expected section names, 5 for subsection count.
func scoreStructure(report models.Report) (float64, []string) {
	if len(report.Sections) == 0 {
		return 0, []string{"Relatório sem estrutura de seções definida"}
	}

	var issues []string
	found := 0
	for _, p := range structurePatterns {
		hit := false
		for _, name := range report.Names() {
			if p.re.MatchString(name) {
				hit = true
				break
			}
		}
		if hit {
			found++
		} else {
			issues = append(issues, "Seção obrigatória ausente: "+p.source)
		}
	}
	score := float64(found) / float64(len(structurePatterns)) * 15

	subsections := 0
	for _, sec := range report.Sections {
		if !sec.IsMapping() {
			continue
		}
		n := len(sec.Fields)
		subsections += n
		if n < 3 {
			issues = append(issues, fmt.Sprintf("Seção '%s' tem poucas subseções: %d", sec.Name, n))
		}
	}
	score += math.Min(1, float64(subsections)/20) * 5
	return score, issues
}

// Components: 20 scaled by the fraction of required components mentioned.
func scoreComponents(lower string) (float64, []string) {
	var issues []string
	found := 0
	for _, c := range components {
		hit := false
		for _, p := range c.patterns {
			if p.re.MatchString(lower) {
				hit = true
				break
			}
		}
		if hit {
			found++
		} else {
			issues = append(issues, "Componente obrigatório ausente: "+c.name)
		}
	}
	return float64(found) / float64(len(components)) * 20, issues
}

// Depth: 10 scaled by psychological depth indicators, full marks at 15.
func scoreDepth(lower string) (float64, []string) {
	n := countMatches(depthPatterns, lower)
	if n >= 15 {
		return 10, nil
	}
	var issues []string
	if n < 8 {
		issues = append(issues, "Análise psicológica muito superficial - necessária maior profundidade")
	}
	return float64(n) / 15 * 10, issues
}

func countMatches(patterns []namedPattern, text string) int {
	n := 0
	for _, p := range patterns {
		n += len(p.find(text))
	}
	return n
}
