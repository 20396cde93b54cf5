// Package source defines the boundary to external inbox and calendar
// providers. The monitor loop depends only on these interfaces; real Google
// API clients, demo generators, and test doubles all sit behind them.
package source

import (
	"context"
	"fmt"
	"time"

	"assistant/pkg/proto"
)

// EmailSource fetches inbox messages.
type EmailSource interface {
	// FetchEmails returns messages received after the watermark, oldest
	// first. Spam and trash are excluded by the provider.
	FetchEmails(ctx context.Context, since time.Time) ([]proto.MonitoredItem, error)
}

// CalendarSource fetches events and applies schedule changes.
type CalendarSource interface {
	// FetchEvents returns events starting within [from, to), ordered by
	// start time.
	FetchEvents(ctx context.Context, from, to time.Time) ([]proto.MonitoredItem, error)

	// Apply performs a single calendar mutation.
	Apply(ctx context.Context, mut CalendarMutation) error
}

// EmailSender delivers outbound mail on the user's behalf.
type EmailSender interface {
	Send(ctx context.Context, msg OutboundEmail) error
}

// MutationKind enumerates the calendar writes the executor can request.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationCancel MutationKind = "cancel"
)

// CalendarMutation is a single calendar write. EventID is required for
// update and cancel; Event carries the new values for create and update.
type CalendarMutation struct {
	Kind    MutationKind
	EventID string
	Event   *proto.CalendarEvent
}

// Validate checks the mutation shape before it reaches the provider.
func (m *CalendarMutation) Validate() error {
	switch m.Kind {
	case MutationCreate:
		if m.Event == nil {
			return fmt.Errorf("create mutation requires an event")
		}
	case MutationUpdate:
		if m.EventID == "" || m.Event == nil {
			return fmt.Errorf("update mutation requires an event id and new values")
		}
	case MutationCancel:
		if m.EventID == "" {
			return fmt.Errorf("cancel mutation requires an event id")
		}
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	return nil
}

// OutboundEmail is a message to send or draft.
type OutboundEmail struct {
	To      string
	Subject string
	Body    string
	Draft   bool // Save as draft instead of sending
}

// FetchError marks a provider fetch failure. The driver aborts the cycle
// on any fetch failure and enters backoff; no partial ingestion.
type FetchError struct {
	Source proto.Source
	Cause  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %v", e.Source, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}
