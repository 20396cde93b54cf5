package source

import (
	"context"
	"sync"
	"time"

	"assistant/pkg/proto"
)

// ScriptedEmailSource is a scriptable EmailSource for tests. Queued batches
// are consumed one per fetch; an empty queue yields no items.
type ScriptedEmailSource struct {
	mu      sync.Mutex
	batches []emailBatch
	fetches []time.Time
}

type emailBatch struct {
	items []proto.MonitoredItem
	err   error
}

// NewScriptedEmailSource creates an empty scripted email source.
func NewScriptedEmailSource() *ScriptedEmailSource {
	return &ScriptedEmailSource{}
}

// QueueBatch appends a successful fetch result to the script.
func (s *ScriptedEmailSource) QueueBatch(items ...proto.MonitoredItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, emailBatch{items: items})
}

// QueueError appends a failing fetch to the script.
func (s *ScriptedEmailSource) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, emailBatch{err: err})
}

// FetchEmails implements EmailSource.
func (s *ScriptedEmailSource) FetchEmails(ctx context.Context, since time.Time) ([]proto.MonitoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, since)

	if len(s.batches) == 0 {
		return nil, nil
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	if next.err != nil {
		return nil, &FetchError{Source: proto.SourceEmail, Cause: next.err}
	}
	return next.items, nil
}

// FetchCount returns how many fetches were made.
func (s *ScriptedEmailSource) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetches)
}

// LastSince returns the watermark passed to the most recent fetch.
func (s *ScriptedEmailSource) LastSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fetches) == 0 {
		return time.Time{}, false
	}
	return s.fetches[len(s.fetches)-1], true
}

// ScriptedCalendarSource is a scriptable CalendarSource for tests. Fetches
// return the current event set; Apply mutates it in place and records the
// mutation.
type ScriptedCalendarSource struct {
	mu        sync.Mutex
	events    []proto.MonitoredItem
	fetchErr  error
	applyErrs []error
	applied   []CalendarMutation
}

// NewScriptedCalendarSource creates a calendar source holding the given events.
func NewScriptedCalendarSource(events ...proto.MonitoredItem) *ScriptedCalendarSource {
	return &ScriptedCalendarSource{events: events}
}

// SetEvents replaces the event set returned by subsequent fetches.
func (s *ScriptedCalendarSource) SetEvents(events ...proto.MonitoredItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

// FailNextFetch makes the next (and all following) fetches fail with err.
// Pass nil to clear.
func (s *ScriptedCalendarSource) FailNextFetch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// QueueApplyError makes upcoming Apply calls fail in order; once the queue
// drains, Apply succeeds again.
func (s *ScriptedCalendarSource) QueueApplyError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErrs = append(s.applyErrs, err)
}

// FetchEvents implements CalendarSource. Only events starting within
// [from, to) are returned.
func (s *ScriptedCalendarSource) FetchEvents(ctx context.Context, from, to time.Time) ([]proto.MonitoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchErr != nil {
		return nil, &FetchError{Source: proto.SourceCalendar, Cause: s.fetchErr}
	}

	var out []proto.MonitoredItem
	for _, ev := range s.events {
		if ev.Event == nil {
			continue
		}
		if ev.Event.Start.Before(from) || !ev.Event.Start.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Apply implements CalendarSource.
func (s *ScriptedCalendarSource) Apply(ctx context.Context, mut CalendarMutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mut.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.applyErrs) > 0 {
		err := s.applyErrs[0]
		s.applyErrs = s.applyErrs[1:]
		if err != nil {
			return err
		}
	}

	s.applied = append(s.applied, mut)
	switch mut.Kind {
	case MutationCancel:
		for i, ev := range s.events {
			if ev.ID == mut.EventID {
				s.events = append(s.events[:i], s.events[i+1:]...)
				break
			}
		}
	case MutationUpdate:
		for i := range s.events {
			if s.events[i].ID == mut.EventID {
				s.events[i].Event = mut.Event
				break
			}
		}
	case MutationCreate:
		s.events = append(s.events, proto.MonitoredItem{
			ID:     mut.EventID,
			Source: proto.SourceCalendar,
			Event:  mut.Event,
		})
	}
	return nil
}

// Applied returns a copy of the mutations applied so far.
func (s *ScriptedCalendarSource) Applied() []CalendarMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CalendarMutation, len(s.applied))
	copy(out, s.applied)
	return out
}

// ScriptedSender is a scriptable EmailSender recording outbound mail.
type ScriptedSender struct {
	mu       sync.Mutex
	sendErrs []error
	sent     []OutboundEmail
}

// NewScriptedSender creates an empty scripted sender.
func NewScriptedSender() *ScriptedSender {
	return &ScriptedSender{}
}

// QueueSendError makes upcoming Send calls fail in order.
func (s *ScriptedSender) QueueSendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErrs = append(s.sendErrs, err)
}

// Send implements EmailSender.
func (s *ScriptedSender) Send(ctx context.Context, msg OutboundEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sendErrs) > 0 {
		err := s.sendErrs[0]
		s.sendErrs = s.sendErrs[1:]
		if err != nil {
			return err
		}
	}

	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of the messages sent so far.
func (s *ScriptedSender) Sent() []OutboundEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OutboundEmail, len(s.sent))
	copy(out, s.sent)
	return out
}
