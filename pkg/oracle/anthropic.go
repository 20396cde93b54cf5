package oracle

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient wraps the Anthropic API client to implement the Client
// interface.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient creates a raw Anthropic client; middleware is applied at
// a higher level.
func NewAnthropicClient(apiKey, model string) Client {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		client: client,
		model:  anthropic.Model(model),
	}
}

// Complete implements the Client interface.
func (c *AnthropicClient) Complete(ctx context.Context, in Request) (Response, error) {
	system, user := splitMessages(in.Messages)
	if user == "" {
		return Response{}, NewError(ErrorTypeBadPrompt, "request has no user content")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(in.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: system,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, Classify(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return Response{}, NewError(ErrorTypeEmptyResponse, "received empty or nil response from Anthropic API")
	}

	var text string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			textBlock := block.AsText()
			text += textBlock.Text
		}
	}

	return Response{
		Content:    text,
		StopReason: string(resp.StopReason),
	}, nil
}

// ModelName returns the model name for this client.
func (c *AnthropicClient) ModelName() string {
	return string(c.model)
}
