package drivers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/agentoven/psymarket/pkg/models"
	"google.golang.org/genai"
)

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	client *http.Client
}

// NewGemini returns the driver for kind "gemini".
func NewGemini(client *http.Client) *Gemini { return &Gemini{client: client} }

func (d *Gemini) Kind() string { return "gemini" }

func (d *Gemini) Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error) {
	cfg := &genai.ClientConfig{
		APIKey:     firstCred(creds, "GEMINI_API_KEY"),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: d.client,
	}
	if desc.Endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: desc.Endpoint}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(temperature(req.Options))),
		MaxOutputTokens:   int32(maxTokens(req.Options)),
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
	}
	resp, err := client.Models.GenerateContent(ctx, desc.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if text.Len() > 0 {
			break
		}
	}

	var tokens int64
	if resp.UsageMetadata != nil {
		tokens = int64(resp.UsageMetadata.TotalTokenCount)
	}
	return &models.InvocationResult{
		Content:    text.String(),
		Model:      desc.Model,
		TokensUsed: tokens,
	}, nil
}
