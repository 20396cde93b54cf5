package oracle

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient wraps the official OpenAI Go client to implement the Client
// interface.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a raw OpenAI client; middleware is applied at a
// higher level.
func NewOpenAIClient(apiKey, model string) Client {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		client: client,
		model:  model,
	}
}

// Complete implements the Client interface using the Responses API.
func (o *OpenAIClient) Complete(ctx context.Context, in Request) (Response, error) {
	system, user := splitMessages(in.Messages)
	if user == "" {
		return Response{}, NewError(ErrorTypeBadPrompt, "request has no user content")
	}

	// The responses API takes a single input string; fold the system prompt in.
	inputText := user
	if system != "" {
		inputText = fmt.Sprintf("System: %s\n\n%s", system, user)
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, Classify(err)
	}
	if resp == nil {
		return Response{}, NewError(ErrorTypeEmptyResponse, "received nil response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return Response{}, NewError(ErrorTypeEmptyResponse, "received empty output from OpenAI Responses API")
	}

	return Response{Content: content}, nil
}

// ModelName returns the model name for this client.
func (o *OpenAIClient) ModelName() string {
	return o.model
}
