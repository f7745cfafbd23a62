package drivers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentoven/psymarket/internal/drivers"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatDesc(kind, endpoint string) models.ProviderDescriptor {
	return models.ProviderDescriptor{Name: "test " + kind, Class: models.ServiceChat, Kind: kind, Model: "m-1", Endpoint: endpoint}
}

func TestOpenAI_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m-1", body["model"])
		assert.EqualValues(t, 2000, body["max_tokens"])
		assert.InDelta(t, drivers.DefaultTemperature, body["temperature"], 1e-9)
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "olá", msgs[1].(map[string]any)["content"])

		fmt.Fprint(w, `{"choices":[{"message":{"content":"resposta"}}],"usage":{"total_tokens":17}}`)
	}))
	defer srv.Close()

	d := drivers.NewOpenAI(srv.Client())
	res, err := d.Call(context.Background(), chatDesc("openai", srv.URL+"/v1"),
		models.InvocationRequest{Class: models.ServiceChat, Prompt: "olá", Options: models.InvocationOptions{MaxTokens: 2000}},
		map[string]string{"OPENAI_API_KEY": "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "resposta", res.Content)
	assert.EqualValues(t, 17, res.TokensUsed)
}

func TestOpenAI_Temperature(t *testing.T) {
	tests := []struct {
		name string
		opts models.InvocationOptions
		want float64
	}{
		{"zero is honored", models.InvocationOptions{}.WithTemperature(0), 0},
		{"explicit value", models.InvocationOptions{}.WithTemperature(0.2), 0.2},
		{"clamped to one", models.InvocationOptions{}.WithTemperature(1.7), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				got = body["temperature"]
				fmt.Fprint(w, `{"choices":[{"message":{"content":"resposta"}}]}`)
			}))
			defer srv.Close()

			_, err := drivers.NewOpenAI(srv.Client()).Call(context.Background(), chatDesc("openai", srv.URL+"/v1"),
				models.InvocationRequest{Prompt: "olá", Options: tt.opts}, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestOpenAI_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := drivers.NewGroq(srv.Client())
	assert.Equal(t, "groq", d.Kind())
	_, err := d.Call(context.Background(), chatDesc("groq", srv.URL), models.InvocationRequest{Prompt: "x"},
		map[string]string{"GROQ_API_KEY": "g"})

	var statusErr *drivers.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Contains(t, statusErr.Body, "quota exceeded")
}

func TestAnthropic_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), "path = %s", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m-1",
			"content":[{"type":"text","text":"análise "},{"type":"text","text":"completa"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	d := drivers.NewAnthropic(srv.Client())
	res, err := d.Call(context.Background(), chatDesc("anthropic", srv.URL), models.InvocationRequest{Prompt: "x"},
		map[string]string{"ANTHROPIC_API_KEY": "ak-test"})
	require.NoError(t, err)
	assert.Equal(t, "análise completa", res.Content)
	assert.EqualValues(t, 15, res.TokensUsed)
}

func TestGemini_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "m-1:generateContent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"texto gerado"}]}}],
			"usageMetadata":{"totalTokenCount":42}}`)
	}))
	defer srv.Close()

	d := drivers.NewGemini(srv.Client())
	res, err := d.Call(context.Background(), chatDesc("gemini", srv.URL), models.InvocationRequest{Prompt: "x"},
		map[string]string{"GEMINI_API_KEY": "gk"})
	require.NoError(t, err)
	assert.Equal(t, "texto gerado", res.Content)
	assert.EqualValues(t, 42, res.TokensUsed)
}

func TestHuggingFace_ListAndObjectResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"list", `[{"generated_text":"lista"}]`, "lista"},
		{"object", `{"generated_text":"objeto"}`, "objeto"},
		{"empty list", `[]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/org/model", r.URL.Path)
				assert.Empty(t, r.Header.Get("Authorization"), "key is optional")
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			desc := chatDesc("huggingface", srv.URL)
			desc.Model = "org/model"
			res, err := drivers.NewHuggingFace(srv.Client()).Call(context.Background(), desc, models.InvocationRequest{Prompt: "x"}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Content)
		})
	}
}

func searchDesc(kind, endpoint string) models.ProviderDescriptor {
	return models.ProviderDescriptor{Name: "test " + kind, Class: models.ServiceSearch, Kind: kind, Endpoint: endpoint}
}

func TestGoogleCSE_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("key"))
		assert.Equal(t, "cx1", q.Get("cx"))
		assert.Equal(t, "10", q.Get("num"), "num is capped at 10")
		assert.Equal(t, "lang_pt", q.Get("lr"))
		fmt.Fprint(w, `{"items":[
			{"title":"Mercado de cursos online","link":"https://a.example","snippet":"Crescimento do mercado de cursos online no Brasil em 2024"},
			{"title":"","link":"https://b.example","snippet":"sem título mas com um trecho longo o bastante"}
		]}`)
	}))
	defer srv.Close()

	req := models.InvocationRequest{Class: models.ServiceSearch, Prompt: "mercado cursos online", Options: models.InvocationOptions{NumResults: 25}}
	res, err := drivers.NewGoogleCSE(srv.Client()).Call(context.Background(), searchDesc("google_cse", srv.URL), req,
		map[string]string{"GOOGLE_API_KEY": "k", "GOOGLE_CSE_ID": "cx1"})
	require.NoError(t, err)

	require.Len(t, res.Results, 1, "hits without a title are dropped")
	assert.Equal(t, "https://a.example", res.Results[0].URL)
	assert.InDelta(t, 1.0, res.Results[0].RelevanceScore, 1e-9)
	assert.True(t, strings.HasPrefix(res.Content, "1. Mercado de cursos online (https://a.example): "))
}

func TestSerpAPI_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "google", q.Get("engine"))
		assert.Equal(t, "sk", q.Get("api_key"))
		assert.Equal(t, "pt-br", q.Get("hl"))
		fmt.Fprint(w, `{"organic_results":[{"title":"Concorrentes","link":"https://c.example","snippet":"lista dos principais concorrentes do setor"}]}`)
	}))
	defer srv.Close()

	res, err := drivers.NewSerpAPI(srv.Client()).Call(context.Background(), searchDesc("serpapi", srv.URL),
		models.InvocationRequest{Prompt: "concorrentes"}, map[string]string{"SERPAPI_KEY": "sk"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "test serpapi", res.Results[0].Source)
}

const ddgPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexemplo.com.br%2Fcurso&rut=x">Curso de marketing digital</a>
  <a class="result__snippet">Aprenda marketing digital para empreendedores.</a>
</div>
<div class="result">
  <a class="result__a" href="https://direto.example/">Resultado direto</a>
  <div class="result__snippet">Outro trecho com conteúdo suficiente para a busca</div>
</div>
</body></html>`

func TestDuckDuckGo_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "curso marketing", r.Form.Get("q"))
		fmt.Fprint(w, ddgPage)
	}))
	defer srv.Close()

	res, err := drivers.NewDuckDuckGo(srv.Client()).Call(context.Background(), searchDesc("duckduckgo", srv.URL),
		models.InvocationRequest{Prompt: "curso marketing"}, nil)
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.Equal(t, "https://exemplo.com.br/curso", res.Results[0].URL)
	assert.Equal(t, "Curso de marketing digital", res.Results[0].Title)
	assert.Equal(t, "Aprenda marketing digital para empreendedores.", res.Results[0].Snippet)
	assert.Equal(t, "https://direto.example/", res.Results[1].URL)
}

func TestDuckDuckGo_RespectsNumResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, ddgPage)
	}))
	defer srv.Close()

	res, err := drivers.NewDuckDuckGo(srv.Client()).Call(context.Background(), searchDesc("duckduckgo", srv.URL),
		models.InvocationRequest{Prompt: "x", Options: models.InvocationOptions{NumResults: 1}}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
}

func TestHitsResult_FiltersAndSorts(t *testing.T) {
	hits := []models.SearchHit{
		{Title: "Link vazio", URL: "javascript:void(0)", Snippet: "x"},
		{Title: "Sem trecho", URL: "https://a.example", Snippet: "curto demais"},
		{Title: "Anúncio", URL: "https://ads.example/curso", Snippet: "Curso de marketing com desconto imperdível hoje"},
		{Title: "Rastreador", URL: "https://track.example/click?id=1", Snippet: "Curso de marketing com desconto imperdível hoje"},
		{Title: "FTP", URL: "ftp://files.example/curso", Snippet: "Curso de marketing para download em arquivo"},
		{Title: "Notícias", URL: "https://news.example/economia", Snippet: "Panorama econômico do trimestre no Brasil"},
		{Title: "Curso de marketing", URL: "https://curso.example", Snippet: "Curso de marketing digital para empreendedores"},
	}

	res := drivers.HitsResult("curso marketing", "m-1", hits)

	require.Len(t, res.Results, 2)
	assert.Equal(t, "https://curso.example", res.Results[0].URL, "most relevant first")
	assert.Equal(t, "https://news.example/economia", res.Results[1].URL)
	assert.Greater(t, res.Results[0].RelevanceScore, res.Results[1].RelevanceScore)
	assert.True(t, strings.HasPrefix(res.Content, "1. Curso de marketing (https://curso.example)"))
	assert.NotContains(t, res.Content, "javascript:")
}

func TestRelevance(t *testing.T) {
	long := "um texto suficientemente longo sobre cursos de marketing digital no Brasil"
	assert.InDelta(t, 1.0, drivers.Relevance("marketing digital", long), 1e-9)
	assert.InDelta(t, 0.5, drivers.Relevance("marketing vendas", long), 1e-9)
	assert.InDelta(t, 0.7, drivers.Relevance("marketing", "marketing curto"), 1e-9, "short texts are penalised")
	assert.Zero(t, drivers.Relevance("", long))
}

func TestAll_UniqueKinds(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range drivers.All(nil) {
		assert.False(t, seen[d.Kind()], "duplicate kind %s", d.Kind())
		seen[d.Kind()] = true
	}
	assert.Len(t, seen, 8)
}
