package proto

import (
	"time"
)

// IntentKind classifies the interpreted user command from a reply.
type IntentKind string

const (
	IntentReschedule          IntentKind = "reschedule"
	IntentCancel              IntentKind = "cancel"
	IntentSendReply           IntentKind = "send_reply"
	IntentConfirm             IntentKind = "confirm"
	IntentNoOp                IntentKind = "no_op"
	IntentClarificationNeeded IntentKind = "clarification_needed"
)

// ValidIntentKind reports whether the string is a known intent kind.
func ValidIntentKind(s string) bool {
	switch IntentKind(s) {
	case IntentReschedule, IntentCancel, IntentSendReply, IntentConfirm,
		IntentNoOp, IntentClarificationNeeded:
		return true
	default:
		return false
	}
}

// Intent is a structured command extracted from a user's free-text reply.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	TargetID   string     `json:"target_id,omitempty"` // Item the command applies to
	NewStart   *time.Time `json:"new_start,omitempty"` // Reschedule target time
	NewEnd     *time.Time `json:"new_end,omitempty"`
	Recipient  string     `json:"recipient,omitempty"` // Reply recipient
	ReplyBody  string     `json:"reply_body,omitempty"`
	Confidence float64    `json:"confidence"` // [0,1]
}

// Actionable reports whether the intent should reach the executor.
func (i *Intent) Actionable() bool {
	switch i.Kind {
	case IntentReschedule, IntentCancel, IntentSendReply:
		return true
	default:
		return false
	}
}

// InteractionStatus tracks the lifecycle of a voice/console interaction.
type InteractionStatus string

const (
	InteractionPending  InteractionStatus = "pending"
	InteractionAnswered InteractionStatus = "answered"
	InteractionTimedOut InteractionStatus = "timed_out"
)

// Terminal reports whether the status is final.
func (s InteractionStatus) Terminal() bool {
	return s == InteractionAnswered || s == InteractionTimedOut
}
