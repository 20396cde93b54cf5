// Package executor applies an interpreted intent to the outside world as a
// sequence of calendar and email mutations, with per-step retry and precise
// partial-failure reporting.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"assistant/pkg/logx"
	"assistant/pkg/metrics"
	"assistant/pkg/proto"
	"assistant/pkg/source"
)

// Per-step retry budget for transient failures.
const (
	maxAttempts  = 3
	initialDelay = 200 * time.Millisecond
)

// StepKind identifies one external call within an intent.
type StepKind string

const (
	StepCancelEvent StepKind = "cancel_event"
	StepCreateEvent StepKind = "create_event"
	StepUpdateEvent StepKind = "update_event"
	StepSendEmail   StepKind = "send_email"
	StepDraftEmail  StepKind = "draft_email"
)

// StepResult records one step's outcome.
type StepResult struct {
	Kind     StepKind `json:"kind"`
	Target   string   `json:"target,omitempty"`
	OK       bool     `json:"ok"`
	Attempts int      `json:"attempts"`
	Error    string   `json:"error,omitempty"`
}

// ExecutionResult reports an intent's steps individually so a partial
// failure can be described precisely, never as all-or-nothing.
type ExecutionResult struct {
	Intent     proto.Intent `json:"intent"`
	Steps      []StepResult `json:"steps"`
	ExecutedAt time.Time    `json:"executed_at"`
}

// Succeeded reports whether every step completed.
func (r *ExecutionResult) Succeeded() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return len(r.Steps) > 0
}

// Partial reports whether some but not all steps completed.
func (r *ExecutionResult) Partial() bool {
	ok := 0
	for _, s := range r.Steps {
		if s.OK {
			ok++
		}
	}
	return ok > 0 && ok < len(r.Steps)
}

// Summary renders a one-line human description of the outcome.
func (r *ExecutionResult) Summary() string {
	parts := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		if s.OK {
			parts = append(parts, fmt.Sprintf("%s ok", s.Kind))
		} else {
			parts = append(parts, fmt.Sprintf("%s FAILED (%s)", s.Kind, s.Error))
		}
	}
	return strings.Join(parts, ", ")
}

// Executor translates intents into collaborator calls.
type Executor struct {
	calendar           source.CalendarSource
	sender             source.EmailSender
	logger             *logx.Logger
	draftInsteadOfSend bool
}

// NewExecutor creates an executor. With draftInsteadOfSend set, send_reply
// intents save a draft instead of sending mail directly.
func NewExecutor(calendar source.CalendarSource, sender source.EmailSender, draftInsteadOfSend bool) *Executor {
	return &Executor{
		calendar:           calendar,
		sender:             sender,
		logger:             logx.NewLogger("executor"),
		draftInsteadOfSend: draftInsteadOfSend,
	}
}

// Execute applies the intent. Steps run in order; a failed step does not
// stop later independent steps from being reported, but a reschedule's
// create is skipped when its cancel failed, since the pair is one logical
// move.
func (e *Executor) Execute(ctx context.Context, intent proto.Intent, known map[string]*proto.MonitoredItem) ExecutionResult {
	result := ExecutionResult{Intent: intent, ExecutedAt: time.Now()}

	switch intent.Kind {
	case proto.IntentCancel:
		step := e.runStep(ctx, StepCancelEvent, intent.TargetID, func(ctx context.Context) error {
			return e.calendar.Apply(ctx, source.CalendarMutation{
				Kind:    source.MutationCancel,
				EventID: intent.TargetID,
			})
		})
		result.Steps = append(result.Steps, step)

	case proto.IntentReschedule:
		result.Steps = e.reschedule(ctx, intent, known)

	case proto.IntentSendReply:
		kind := StepSendEmail
		if e.draftInsteadOfSend {
			kind = StepDraftEmail
		}
		step := e.runStep(ctx, kind, intent.Recipient, func(ctx context.Context) error {
			return e.sender.Send(ctx, source.OutboundEmail{
				To:      intent.Recipient,
				Subject: replySubject(intent, known),
				Body:    intent.ReplyBody,
				Draft:   e.draftInsteadOfSend,
			})
		})
		result.Steps = append(result.Steps, step)

	default:
		// Confirm, no-op, and clarification intents never reach here;
		// nothing to do if they somehow do.
		e.logger.Warn("Execute called with non-actionable intent %s", intent.Kind)
	}

	e.logger.Info("Executed %s: %s", intent.Kind, result.Summary())
	return result
}

// reschedule moves an event by cancelling the old slot and creating the new
// one. A failed cancel skips the create so the calendar never holds both.
func (e *Executor) reschedule(ctx context.Context, intent proto.Intent, known map[string]*proto.MonitoredItem) []StepResult {
	old, ok := known[intent.TargetID]
	if !ok || old.Event == nil || intent.NewStart == nil {
		return []StepResult{{
			Kind:   StepUpdateEvent,
			Target: intent.TargetID,
			Error:  "reschedule target or new time missing",
		}}
	}

	newEvent := *old.Event
	newEvent.Start = *intent.NewStart
	if intent.NewEnd != nil {
		newEvent.End = *intent.NewEnd
	} else {
		newEvent.End = intent.NewStart.Add(old.Event.End.Sub(old.Event.Start))
	}

	cancel := e.runStep(ctx, StepCancelEvent, intent.TargetID, func(ctx context.Context) error {
		return e.calendar.Apply(ctx, source.CalendarMutation{
			Kind:    source.MutationCancel,
			EventID: intent.TargetID,
		})
	})
	if !cancel.OK {
		return []StepResult{cancel, {
			Kind:   StepCreateEvent,
			Target: newEvent.Title,
			Error:  "skipped: cancel of old slot failed",
		}}
	}

	create := e.runStep(ctx, StepCreateEvent, newEvent.Title, func(ctx context.Context) error {
		return e.calendar.Apply(ctx, source.CalendarMutation{
			Kind:  source.MutationCreate,
			Event: &newEvent,
		})
	})
	return []StepResult{cancel, create}
}

// runStep executes one external call with transient-only retry.
func (e *Executor) runStep(ctx context.Context, kind StepKind, target string, call func(context.Context) error) StepResult {
	step := StepResult{Kind: kind, Target: target}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		step.Attempts = attempt
		err = call(ctx)
		if err == nil {
			step.OK = true
			metrics.ActionsExecuted.WithLabelValues(string(kind), "ok").Inc()
			return step
		}
		if !isTransient(err) || attempt == maxAttempts {
			break
		}

		delay := initialDelay << (attempt - 1)
		e.logger.Debug("Step %s attempt %d failed (%v), retrying in %s", kind, attempt, err, delay)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = maxAttempts
		case <-time.After(delay):
		}
	}

	step.Error = err.Error()
	metrics.ActionsExecuted.WithLabelValues(string(kind), "error").Inc()
	return step
}

// isTransient reports whether a collaborator failure is worth retrying.
// Validation and not-found failures are permanent.
func isTransient(err error) bool {
	var fetchErr *source.FetchError
	if errors.As(err, &fetchErr) {
		err = fetchErr.Cause
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection", "network", "temporar", "unavailable", "503", "502", "500"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func replySubject(intent proto.Intent, known map[string]*proto.MonitoredItem) string {
	if item, ok := known[intent.TargetID]; ok && item.Email != nil {
		return "Re: " + item.Email.Subject
	}
	return "Re: your message"
}
