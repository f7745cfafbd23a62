// Package drivers holds one ProviderDriver per upstream provider kind.
//
// A driver performs a single request against its provider and maps the
// answer into an InvocationResult. Drivers never read the environment and
// never retry; credentials arrive from the invoker and fallback is decided
// by the orchestrator.
package drivers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentoven/psymarket/pkg/contracts"
	"github.com/agentoven/psymarket/pkg/models"
)

// Request defaults applied when InvocationOptions leaves a field unset.
const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.7
	DefaultNumResults  = 10
)

// SystemPrompt frames every generative call.
const SystemPrompt = "Você é um especialista em psicologia do consumidor e análise de mercado. " +
	"Responda sempre em português do Brasil, com dados concretos, exemplos específicos e " +
	"profundidade analítica. Nunca use conteúdo fictício, simulado ou placeholders."

const userAgent = "psymarket/1.0"

func maxTokens(o models.InvocationOptions) int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return DefaultMaxTokens
}

func temperature(o models.InvocationOptions) float64 {
	if o.Temperature != nil {
		return min(max(*o.Temperature, 0), 1)
	}
	return DefaultTemperature
}

func numResults(o models.InvocationOptions) int {
	if o.NumResults > 0 {
		return o.NumResults
	}
	return DefaultNumResults
}

func endpointOr(desc models.ProviderDescriptor, fallback string) string {
	if desc.Endpoint != "" {
		return desc.Endpoint
	}
	return fallback
}

// All returns every built-in driver sharing one HTTP client.
func All(client *http.Client) []contracts.ProviderDriver {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return []contracts.ProviderDriver{
		NewOpenAI(client),
		NewGroq(client),
		NewGemini(client),
		NewAnthropic(client),
		NewHuggingFace(client),
		NewGoogleCSE(client),
		NewSerpAPI(client),
		NewDuckDuckGo(client),
	}
}

// ── HTTP helpers ────────────────────────────────────────────

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{Code: resp.StatusCode, Body: string(body)}
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(client, req, out)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
