package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient wraps the Google GenAI client to implement the Client
// interface.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGeminiClient creates a raw Gemini client; middleware is applied at a
// higher level. Client construction needs a context, so it is deferred to
// the first Complete call.
func NewGeminiClient(apiKey, model string) Client {
	return &GeminiClient{
		client: nil, // Created on first use
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the Client interface.
func (g *GeminiClient) Complete(ctx context.Context, in Request) (Response, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return Response{}, WrapError(ErrorTypeTransient, "failed to create Gemini client", err)
		}
		g.client = client
	}

	system, user := splitMessages(in.Messages)
	if user == "" {
		return Response{}, NewError(ErrorTypeBadPrompt, "request has no user content")
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: user}},
	}}

	//nolint:gosec // MaxTokens validated at config load, overflow acceptable
	maxTokens := int32(in.MaxTokens)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Response{}, Classify(fmt.Errorf("Gemini API call failed: %w", err))
	}
	if result == nil || result.Text() == "" {
		return Response{}, NewError(ErrorTypeEmptyResponse, "received empty response from Gemini API")
	}

	return Response{Content: result.Text()}, nil
}

// ModelName returns the model name for this client.
func (g *GeminiClient) ModelName() string {
	return g.model
}
