package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"assistant/pkg/logx"
	"assistant/pkg/oracle"
	"assistant/pkg/proto"
)

// minConfidence is the floor below which an interpreted intent is treated
// as unclear and sent back for clarification.
const minConfidence = 0.5

const interpretSystemPrompt = `You translate a user's spoken reply about their schedule into a command.
Respond with a single JSON object and nothing else. Fields:
- intent: one of "reschedule", "cancel", "send_reply", "confirm", "no_op", "clarification_needed"
- target_id: the id of the item the command applies to, or ""
- new_start: RFC3339 time for a reschedule, or ""
- recipient: email address for a send_reply, or ""
- reply_body: text of the reply to send, or ""
- confidence: float from 0.0 to 1.0

If the reply is ambiguous, use "clarification_needed" with low confidence.`

// Interpreter maps a free-text reply to a structured Intent. A nil oracle
// client means keyword matching only.
type Interpreter struct {
	client oracle.Client
	logger *logx.Logger
}

// NewInterpreter creates an intent interpreter.
func NewInterpreter(client oracle.Client) *Interpreter {
	return &Interpreter{
		client: client,
		logger: logx.NewLogger("interpret"),
	}
}

// Interpret extracts a command from the reply. It never fails outward:
// oracle trouble drops to the keyword matcher, and anything ambiguous comes
// back as clarification_needed rather than a guessed action.
func (p *Interpreter) Interpret(ctx context.Context, reply string, flagged []*proto.MonitoredItem) proto.Intent {
	if p.client != nil {
		intent, err := p.interpretOracle(ctx, reply, flagged)
		if err == nil {
			return intent
		}
		p.logger.Warn("Oracle interpretation failed, using keyword matcher: %v", err)
	}
	return FallbackIntent(reply)
}

func (p *Interpreter) interpretOracle(ctx context.Context, reply string, flagged []*proto.MonitoredItem) (proto.Intent, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The user was told about these items:\n")
	for _, item := range flagged {
		fmt.Fprintf(&b, "- id=%s: %s\n", item.ID, describeItem(item))
	}
	fmt.Fprintf(&b, "\nThe user replied: %q\n", reply)

	resp, err := p.client.Complete(ctx, oracle.NewRequest(interpretSystemPrompt, b.String()))
	if err != nil {
		return proto.Intent{}, err
	}
	return parseIntent(resp.Content)
}

// rawIntent mirrors the oracle's intent contract.
type rawIntent struct {
	Intent     *string  `json:"intent"`
	TargetID   string   `json:"target_id"`
	NewStart   string   `json:"new_start"`
	Recipient  string   `json:"recipient"`
	ReplyBody  string   `json:"reply_body"`
	Confidence *float64 `json:"confidence"`
}

// parseIntent strictly validates an oracle intent reply. Out-of-contract
// fields fail the whole reply.
func parseIntent(content string) (proto.Intent, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return proto.Intent{}, oracle.NewError(oracle.ErrorTypeMalformed, "intent reply contains no JSON object")
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return proto.Intent{}, oracle.WrapError(oracle.ErrorTypeMalformed, "intent reply is not valid JSON", err)
	}
	if raw.Intent == nil || raw.Confidence == nil {
		return proto.Intent{}, oracle.NewError(oracle.ErrorTypeMalformed, "intent reply is missing required fields")
	}
	if !proto.ValidIntentKind(*raw.Intent) {
		return proto.Intent{}, oracle.NewError(oracle.ErrorTypeMalformed, "unknown intent "+*raw.Intent)
	}

	intent := proto.Intent{
		Kind:       proto.IntentKind(*raw.Intent),
		TargetID:   raw.TargetID,
		Recipient:  raw.Recipient,
		ReplyBody:  raw.ReplyBody,
		Confidence: *raw.Confidence,
	}
	if raw.NewStart != "" {
		t, err := time.Parse(time.RFC3339, raw.NewStart)
		if err != nil {
			return proto.Intent{}, oracle.WrapError(oracle.ErrorTypeMalformed, "bad new_start time", err)
		}
		intent.NewStart = &t
	}

	if intent.Confidence < minConfidence && intent.Kind != proto.IntentClarificationNeeded {
		intent.Kind = proto.IntentClarificationNeeded
	}
	return intent, nil
}

// FallbackIntent is the rule-based keyword matcher used when the oracle is
// unavailable. Unmatched replies come back as clarification_needed.
func FallbackIntent(reply string) proto.Intent {
	lower := strings.ToLower(reply)

	switch {
	// Cancel before reschedule: "remove" contains "move".
	case containsAny(lower, "cancel", "delete", "remove"):
		return proto.Intent{Kind: proto.IntentCancel, Confidence: 0.7}
	case containsAny(lower, "reschedule", "move", "change time", "push back"):
		return proto.Intent{Kind: proto.IntentReschedule, Confidence: 0.7}
	case containsAny(lower, "reply", "respond", "write back"):
		return proto.Intent{Kind: proto.IntentSendReply, Confidence: 0.6}
	case containsAny(lower, "yes", "confirm", "ok", "sounds good"):
		return proto.Intent{Kind: proto.IntentConfirm, Confidence: 0.6}
	case containsAny(lower, "nothing", "no", "leave it", "ignore"):
		return proto.Intent{Kind: proto.IntentNoOp, Confidence: 0.6}
	default:
		return proto.Intent{Kind: proto.IntentClarificationNeeded, Confidence: 0.3}
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
