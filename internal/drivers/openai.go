package drivers

import (
	"context"
	"net/http"
	"strings"

	"github.com/agentoven/psymarket/pkg/models"
)

// ── OpenAI-compatible chat completions ──────────────────────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAI speaks the /chat/completions protocol. Groq serves the same API
// under a different base URL and key, so both kinds share this driver.
type OpenAI struct {
	client   *http.Client
	kind     string
	endpoint string
	keyName  string
}

// NewOpenAI returns the driver for kind "openai".
func NewOpenAI(client *http.Client) *OpenAI {
	return &OpenAI{client: client, kind: "openai", endpoint: "https://api.openai.com/v1", keyName: "OPENAI_API_KEY"}
}

// NewGroq returns the driver for kind "groq".
func NewGroq(client *http.Client) *OpenAI {
	return &OpenAI{client: client, kind: "groq", endpoint: "https://api.groq.com/openai/v1", keyName: "GROQ_API_KEY"}
}

func (d *OpenAI) Kind() string { return d.kind }

func (d *OpenAI) Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error) {
	body := chatRequest{
		Model: desc.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   maxTokens(req.Options),
		Temperature: temperature(req.Options),
	}

	headers := map[string]string{}
	if key := firstCred(creds, d.keyName); key != "" {
		headers["Authorization"] = "Bearer " + key
	}

	url := strings.TrimRight(endpointOr(desc, d.endpoint), "/") + "/chat/completions"
	var resp chatResponse
	if err := postJSON(ctx, d.client, url, headers, body, &resp); err != nil {
		return nil, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return &models.InvocationResult{
		Content:    content,
		Model:      desc.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// firstCred returns creds[preferred], or the only credential passed when the
// descriptor names its key differently.
func firstCred(creds map[string]string, preferred string) string {
	if v := creds[preferred]; v != "" {
		return v
	}
	if len(creds) == 1 {
		for _, v := range creds {
			return v
		}
	}
	return ""
}
