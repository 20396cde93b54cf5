package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaClient wraps the Ollama API client to implement the Client interface
// for locally hosted models.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a raw Ollama client; middleware is applied at a
// higher level. An empty hostURL falls back to the default local daemon.
func NewOllamaClient(hostURL, model string) (Client, error) {
	if hostURL == "" {
		hostURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama host URL %q: %w", hostURL, err)
	}

	return &OllamaClient{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}, nil
}

// Complete implements the Client interface.
func (o *OllamaClient) Complete(ctx context.Context, in Request) (Response, error) {
	system, user := splitMessages(in.Messages)
	if user == "" {
		return Response{}, NewError(ErrorTypeBadPrompt, "request has no user content")
	}

	messages := make([]api.Message, 0, 2)
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	messages = append(messages, api.Message{Role: "user", Content: user})

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var content string
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return Response{}, Classify(fmt.Errorf("Ollama chat request failed: %w", err))
	}
	if content == "" {
		return Response{}, NewError(ErrorTypeEmptyResponse, "received empty response from Ollama")
	}

	return Response{Content: content}, nil
}

// ModelName returns the model name for this client.
func (o *OllamaClient) ModelName() string {
	return o.model
}
