package scoring

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tiktoken-go/tokenizer"

	"assistant/pkg/proto"
)

// maxBodyTokens bounds how much email body goes into a scoring prompt.
// Long threads add cost without improving the judgment.
const maxBodyTokens = 400

const scoreSystemPrompt = `You are an assistant that triages a user's email and calendar.
Respond with a single JSON object and nothing else. Fields:
- importance_score: float from 0.0 to 1.0, where 1.0 is most important
- requires_action: boolean
- action_type: one of "reply", "schedule", "urgent", "delegate", "archive", "none"
- urgency: one of "low", "medium", "high", "critical"
- summary: brief summary of the item
- suggested_action: what to do about it, or an empty string

Consider sender importance (boss, client, family), urgency keywords
(urgent, asap, deadline), requests for meetings or decisions, and
time-sensitive information.`

//nolint:gochecknoglobals // Tokenizer codec is immutable after load
var (
	codec     tokenizer.Codec
	codecOnce sync.Once
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			panic(fmt.Sprintf("tokenizer unavailable: %v", err))
		}
		codec = c
	})
	return codec
}

// truncateTokens cuts text to at most max tokens, appending an ellipsis when
// anything was dropped.
func truncateTokens(text string, max int) string {
	ids, _, err := getCodec().Encode(text)
	if err != nil || len(ids) <= max {
		return text
	}
	head, err := getCodec().Decode(ids[:max])
	if err != nil {
		// Fall back to a crude byte cut; 4 bytes/token is a fair estimate.
		if len(text) > max*4 {
			return text[:max*4] + "..."
		}
		return text
	}
	return head + "..."
}

// buildScorePrompt renders the user prompt for one monitored item.
func buildScorePrompt(item *proto.MonitoredItem) string {
	var b strings.Builder

	switch {
	case item.Source == proto.SourceEmail && item.Email != nil:
		fmt.Fprintf(&b, "Analyze this email.\n\n")
		fmt.Fprintf(&b, "From: %s\n", item.Email.Sender)
		fmt.Fprintf(&b, "Subject: %s\n", item.Email.Subject)
		fmt.Fprintf(&b, "Received: %s\n", item.Email.ReceivedAt.Format(time.RFC1123))
		fmt.Fprintf(&b, "Body:\n%s\n", truncateTokens(item.Email.Body, maxBodyTokens))
	case item.Source == proto.SourceCalendar && item.Event != nil:
		fmt.Fprintf(&b, "Analyze this calendar event.\n\n")
		fmt.Fprintf(&b, "Title: %s\n", item.Event.Title)
		fmt.Fprintf(&b, "Start: %s\n", item.Event.Start.Format(time.RFC1123))
		fmt.Fprintf(&b, "End: %s\n", item.Event.End.Format(time.RFC1123))
		fmt.Fprintf(&b, "Location: %s\n", item.Event.Location)
	default:
		// Payload missing; give the oracle what little there is.
		fmt.Fprintf(&b, "Analyze this item.\n\nID: %s\nSource: %s\n", item.ID, item.Source)
	}

	return b.String()
}
