// Package oracle provides the natural-language judgment boundary used for
// importance scoring and reply interpretation, with interchangeable vendor
// clients and resilience middleware.
package oracle

import (
	"context"
)

// Role represents the role of a message in a judgment request.
type Role string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem Role = "system"
	// RoleUser indicates a message carrying the material to judge.
	RoleUser Role = "user"
)

// Message represents a message in a judgment request.
type Message struct {
	Role    Role
	Content string
}

// Request represents a one-shot judgment request. The assistant never holds
// multi-turn conversations with the oracle; every call is self-contained.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Response represents the oracle's raw reply.
type Response struct {
	Content    string
	StopReason string
}

// Client defines the interface for oracle interactions.
type Client interface {
	// Complete generates a judgment synchronously.
	Complete(ctx context.Context, in Request) (Response, error)

	// ModelName returns the model name for this client.
	ModelName() string
}

// NewRequest creates a judgment request with default limits from a system
// instruction and the user content to judge.
func NewRequest(system, user string) Request {
	return Request{
		Messages:    []Message{SystemMessage(system), UserMessage(user)},
		MaxTokens:   800,
		Temperature: 0.1, // Judgments should be near-deterministic
	}
}

// SystemMessage creates a new system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a new user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// splitMessages separates system instructions from user content. Vendor
// clients all want the system prompt out-of-band.
func splitMessages(messages []Message) (system string, user string) {
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case RoleUser:
			if user != "" {
				user += "\n\n"
			}
			user += msg.Content
		}
	}
	return system, user
}
