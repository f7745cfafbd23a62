package pipeline

import (
	"fmt"
	"strings"

	"github.com/agentoven/psymarket/pkg/models"
)

// ── Phase prompts ───────────────────────────────────────────

func marketQuery(in models.AnalysisInput) string {
	parts := []string{in.Product.Name, in.Product.Category, in.TargetMarket.Demographic}
	kw := in.CompetitionKeywords
	if len(kw) > 3 {
		kw = kw[:3]
	}
	parts = append(parts, kw...)
	parts = append(parts, "mercado brasileiro")

	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// summarizeMarketData lists the top five hits for use inside prompts.
func summarizeMarketData(res *models.InvocationResult) string {
	if res == nil || (len(res.Results) == 0 && strings.TrimSpace(res.Content) == "") {
		return "Nenhum dado de mercado disponível"
	}
	if len(res.Results) == 0 {
		return res.Content
	}
	var lines []string
	for i, h := range res.Results {
		if i == 5 {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, h.Title, h.Snippet))
	}
	return strings.Join(lines, "\n")
}

func psychologyPrompt(in models.AnalysisInput, market string) string {
	return fmt.Sprintf(`Realize uma análise psicológica PROFUNDA e ESPECÍFICA do perfil de consumidor para:

PRODUTO: %s - %s
CATEGORIA: %s
PREÇO: %s

MERCADO-ALVO:
- Demografia: %s
- Localização: %s
- Renda: %s

DADOS DE MERCADO COLETADOS:
%s

FORNEÇA UMA ANÁLISE DETALHADA (MÍNIMO 2000 CARACTERES) COM:

1. PERFIL PSICOLÓGICO DETALHADO:
- Motivações primárias e secundárias
- Medos e ansiedades específicos
- Valores e crenças fundamentais
- Padrões de comportamento de compra

2. PROCESSO DE DECISÃO:
- Gatilhos emocionais específicos
- Fatores racionais vs emocionais
- Influenciadores no processo
- Timing de decisão

3. ASPECTOS COMPORTAMENTAIS:
- Canais de pesquisa preferidos
- Momentos de consumo
- Rituais associados ao produto
- Aspectos sociais da compra

4. DRIVERS PSICOLÓGICOS ESPECÍFICOS:
- Status e reconhecimento social
- Segurança e proteção
- Conveniência e praticidade
- Realização pessoal

IMPORTANTE: Use APENAS dados específicos e reais.
Baseie-se nos dados de mercado fornecidos e cite fontes quando possível.`,
		in.Product.Name, in.Product.Description, in.Product.Category, in.Product.Price,
		in.TargetMarket.Demographic, in.TargetMarket.Location, in.TargetMarket.Income,
		market)
}

func competitionPrompt(in models.AnalysisInput, market string) string {
	return fmt.Sprintf(`Analise DETALHADAMENTE a concorrência baseado nos dados coletados:

PALAVRAS-CHAVE DE CONCORRÊNCIA: %s

DADOS DE MERCADO:
%s

FORNEÇA ANÁLISE COMPLETA (MÍNIMO 1500 CARACTERES) COM:

1. PRINCIPAIS CONCORRENTES IDENTIFICADOS:
- Nomes específicos das empresas
- Posicionamento de cada um
- Pontos fortes e fracos
- Participação de mercado estimada

2. ESTRATÉGIAS COMPETITIVAS:
- Mensagens principais utilizadas
- Canais de marketing preferidos
- Preços praticados
- Diferenciais competitivos

3. GAPS DE MERCADO:
- Necessidades não atendidas
- Segmentos mal servidos
- Oportunidades de posicionamento

4. AMEAÇAS E OPORTUNIDADES:
- Tendências que favorecem cada player
- Vulnerabilidades dos concorrentes
- Barreiras de entrada

Use APENAS informações reais e específicas dos dados fornecidos.`,
		strings.Join(in.CompetitionKeywords, ", "), market)
}

func driversPrompt(in models.AnalysisInput, psychology string) string {
	return fmt.Sprintf(`Com base na análise psicológica realizada, identifique os DRIVERS MENTAIS ESPECÍFICOS:

PRODUTO: %s

ANÁLISE PSICOLÓGICA:
%s

IDENTIFIQUE E DETALHE (MÍNIMO 1800 CARACTERES):

1. OS 5 DRIVERS MENTAIS MAIS PODEROSOS:
Para cada driver, forneça:
- Nome do driver psicológico
- Como se manifesta neste público específico
- Gatilhos específicos para ativá-lo
- Aplicações práticas

2. HIERARQUIA DE IMPORTÂNCIA:
- Driver primário (mais forte)
- Drivers secundários (apoio)
- Drivers de urgência (quando aplicar)

3. COMBINAÇÕES PODEROSAS:
- Quais drivers funcionam melhor juntos
- Sequências de ativação eficazes
- Momentos ideais para cada combinação

4. IMPLEMENTAÇÃO PRÁTICA:
- Como incorporar em mensagens
- Elementos visuais que reforçam
- Timing ideal de aplicação

Baseie-se EXCLUSIVAMENTE na análise psicológica fornecida.`,
		in.Product.Name, psychology)
}

func objectionsPrompt(in models.AnalysisInput, psychology string) string {
	return fmt.Sprintf(`Baseado na análise psicológica, identifique e analise as OBJEÇÕES ESPECÍFICAS:

PRODUTO: %s - %s
PÚBLICO: %s

ANÁLISE PSICOLÓGICA:
%s

ANALISE PROFUNDAMENTE (MÍNIMO 1600 CARACTERES):

1. OBJEÇÕES CONSCIENTES:
- Preço vs valor percebido
- Qualidade e confiabilidade
- Necessidade real vs desejo
- Timing de compra

2. OBJEÇÕES INCONSCIENTES:
- Medos não verbalizados
- Status social e julgamentos
- Mudança de hábitos
- Riscos emocionais

3. ANTI-OBJEÇÕES ESPECÍFICAS:
Para cada objeção identificada:
- Argumento lógico de resposta
- Elemento emocional de neutralização
- Prova social aplicável
- Momento ideal de abordagem

4. ESTRATÉGIAS DE PREVENÇÃO:
- Como evitar que a objeção surja
- Elementos que criam confiança prévia
- Estrutura de apresentação ideal

Use APENAS insights da análise psicológica fornecida.`,
		in.Product.Name, in.Product.Price, in.TargetMarket.Demographic, psychology)
}

func marketingPrompt(in models.AnalysisInput, psychology, drivers string) string {
	return fmt.Sprintf(`Desenvolva ESTRATÉGIAS DE MARKETING ESPECÍFICAS baseadas nas análises:

PRODUTO: %s

ANÁLISE PSICOLÓGICA:
%s

DRIVERS MENTAIS:
%s

DESENVOLVA ESTRATÉGIAS DETALHADAS (MÍNIMO 2000 CARACTERES):

1. MENSAGEM PRINCIPAL:
- Headline magnético específico
- Proposta de valor única
- Call-to-action psicologicamente otimizado

2. CAMPANHAS POR CANAL:
- Estratégia para redes sociais
- Abordagem para Google Ads
- Email marketing personalizado
- Marketing de conteúdo direcionado

3. FUNIL DE CONVERSÃO:
- Ponto de entrada ideal
- Sequência de nutrição específica
- Momentos de conversão otimizados
- Follow-up pós-venda

4. ELEMENTOS CRIATIVOS:
- Cores e elementos visuais específicos
- Tom de voz ideal
- Storytelling apropriado
- Provas sociais mais eficazes

5. MÉTRICAS DE SUCESSO:
- KPIs específicos para acompanhar
- Metas realistas baseadas no mercado
- Indicadores de otimização

Baseie-se INTEGRALMENTE nas análises anteriores.`,
		in.Product.Name, psychology, drivers)
}

// ── Expansion prompts ───────────────────────────────────────

var expansionAsks = map[string]struct {
	intro string
	adds  []string
}{
	models.SectionAvatar: {
		intro: "Expanda a análise psicológica com mais profundidade:",
		adds: []string{
			"Padrões de comportamento específicos",
			"Influências culturais e sociais",
			"Sazonalidade de comportamento",
			"Evolução do perfil ao longo do tempo",
			"Subcategorias de consumidores",
		},
	},
	models.SectionMentalDrivers: {
		intro: "Detalhe mais os drivers mentais:",
		adds: []string{
			"Gatilhos específicos por contexto",
			"Combinações avançadas de drivers",
			"Aplicação em diferentes momentos",
			"Personalização por segmento",
		},
	},
	models.SectionMarketing: {
		intro: "Expanda as estratégias de marketing:",
		adds: []string{
			"Táticas específicas por canal",
			"Cronograma detalhado de implementação",
			"Orçamento sugerido por atividade",
			"Variações de mensagem por público",
			"Experimentos A/B recomendados",
		},
	},
}

func expansionPrompt(section, current string) string {
	ask := expansionAsks[section]
	var b strings.Builder
	b.WriteString(ask.intro)
	b.WriteString("\n\nCONTEÚDO ATUAL:\n")
	b.WriteString(current)
	b.WriteString("\n\nADICIONE (MÍNIMO 1000 CARACTERES ADICIONAIS):\n")
	for _, a := range ask.adds {
		b.WriteString("- ")
		b.WriteString(a)
		b.WriteByte('\n')
	}
	return b.String()
}
