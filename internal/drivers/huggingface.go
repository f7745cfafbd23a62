package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/agentoven/psymarket/pkg/models"
)

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens"`
		Temperature    float64 `json:"temperature"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// HuggingFace calls the hosted Inference API text-generation task. The
// API key is optional; anonymous calls are rate limited upstream.
type HuggingFace struct {
	client *http.Client
}

// NewHuggingFace returns the driver for kind "huggingface".
func NewHuggingFace(client *http.Client) *HuggingFace { return &HuggingFace{client: client} }

func (d *HuggingFace) Kind() string { return "huggingface" }

func (d *HuggingFace) Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error) {
	var body hfRequest
	body.Inputs = SystemPrompt + "\n\n" + req.Prompt
	// The free tier rejects large generations.
	body.Parameters.MaxNewTokens = min(maxTokens(req.Options), 1024)
	body.Parameters.Temperature = temperature(req.Options)

	headers := map[string]string{}
	if key := creds["HUGGINGFACE_API_KEY"]; key != "" {
		headers["Authorization"] = "Bearer " + key
	}

	url := strings.TrimRight(endpointOr(desc, "https://api-inference.huggingface.co/models"), "/") + "/" + desc.Model
	var raw json.RawMessage
	if err := postJSON(ctx, d.client, url, headers, body, &raw); err != nil {
		return nil, err
	}

	// The API answers with a list for most models and an object for some.
	var list []hfGeneration
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return &models.InvocationResult{Model: desc.Model}, nil
		}
		return &models.InvocationResult{Content: list[0].GeneratedText, Model: desc.Model}, nil
	}
	var single hfGeneration
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &models.InvocationResult{Content: single.GeneratedText, Model: desc.Model}, nil
}
