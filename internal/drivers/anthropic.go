package drivers

import (
	"context"
	"net/http"
	"strings"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic calls the Messages API through the official SDK.
type Anthropic struct {
	client *http.Client
}

// NewAnthropic returns the driver for kind "anthropic".
func NewAnthropic(client *http.Client) *Anthropic { return &Anthropic{client: client} }

func (d *Anthropic) Kind() string { return "anthropic" }

func (d *Anthropic) Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(firstCred(creds, "ANTHROPIC_API_KEY")),
		option.WithHTTPClient(d.client),
		option.WithMaxRetries(0),
	}
	if desc.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(desc.Endpoint))
	}
	client := anthropic.NewClient(opts...)

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(desc.Model),
		MaxTokens: int64(maxTokens(req.Options)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		System:      []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Temperature: anthropic.Float(temperature(req.Options)),
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &models.InvocationResult{
		Content:    text.String(),
		Model:      desc.Model,
		TokensUsed: msg.Usage.InputTokens + msg.Usage.OutputTokens,
	}, nil
}
