package source

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"assistant/pkg/proto"
)

// DemoSource serves a fixed inbox-and-calendar scenario for demo runs: one
// urgent email from the boss, one routine message, and a pair of overlapping
// meetings plus a tight cross-town follow-up. It implements EmailSource,
// CalendarSource, and EmailSender.
type DemoSource struct {
	mu        sync.Mutex
	emails    []proto.MonitoredItem
	events    []proto.MonitoredItem
	delivered bool
	sent      []OutboundEmail
	mutations []CalendarMutation
}

// NewDemoSource builds the scenario around the given reference time.
func NewDemoSource(now time.Time) *DemoSource {
	d := &DemoSource{}

	d.emails = []proto.MonitoredItem{
		{
			ID:     "demo-email-" + uuid.NewString(),
			Source: proto.SourceEmail,
			Email: &proto.Email{
				Sender:     "boss@example.com",
				Subject:    "URGENT: client escalation needs a response today",
				Body:       "The Meridian account is threatening to walk. I need your input before the 2pm sync. This is an emergency.",
				ReceivedAt: now.Add(-20 * time.Minute),
			},
		},
		{
			ID:     "demo-email-" + uuid.NewString(),
			Source: proto.SourceEmail,
			Email: &proto.Email{
				Sender:     "newsletter@example.com",
				Subject:    "Weekly engineering digest",
				Body:       "This week in the org: three new design docs and a brown bag on Thursday.",
				ReceivedAt: now.Add(-2 * time.Hour),
			},
		},
	}

	today := func(h, m int) time.Time {
		return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	}
	d.events = []proto.MonitoredItem{
		{
			ID:     "demo-event-standup",
			Source: proto.SourceCalendar,
			Event: &proto.CalendarEvent{
				Title:    "Team standup",
				Start:    today(14, 0),
				End:      today(15, 0),
				Location: "HQ room 4",
			},
		},
		{
			ID:     "demo-event-client-sync",
			Source: proto.SourceCalendar,
			Event: &proto.CalendarEvent{
				Title:    "Meridian client sync",
				Start:    today(14, 30),
				End:      today(15, 30),
				Location: "HQ room 4",
			},
		},
		{
			ID:     "demo-event-offsite",
			Source: proto.SourceCalendar,
			Event: &proto.CalendarEvent{
				Title:    "Vendor review",
				Start:    today(15, 35),
				End:      today(16, 30),
				Location: "Downtown office",
			},
		},
	}

	return d
}

// FetchEmails implements EmailSource. The scripted inbox is delivered once;
// later fetches find nothing new, matching a quiet inbox.
func (d *DemoSource) FetchEmails(ctx context.Context, since time.Time) ([]proto.MonitoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delivered {
		return nil, nil
	}
	d.delivered = true

	var out []proto.MonitoredItem
	for _, item := range d.emails {
		if item.Email.ReceivedAt.After(since) {
			out = append(out, item)
		}
	}
	return out, nil
}

// FetchEvents implements CalendarSource.
func (d *DemoSource) FetchEvents(ctx context.Context, from, to time.Time) ([]proto.MonitoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var out []proto.MonitoredItem
	for _, ev := range d.events {
		if ev.Event.Start.Before(from) || !ev.Event.Start.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Apply implements CalendarSource against the in-memory schedule.
func (d *DemoSource) Apply(ctx context.Context, mut CalendarMutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mut.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.mutations = append(d.mutations, mut)

	switch mut.Kind {
	case MutationCancel:
		for i, ev := range d.events {
			if ev.ID == mut.EventID {
				d.events = append(d.events[:i], d.events[i+1:]...)
				break
			}
		}
	case MutationUpdate:
		for i := range d.events {
			if d.events[i].ID == mut.EventID {
				d.events[i].Event = mut.Event
				break
			}
		}
	case MutationCreate:
		d.events = append(d.events, proto.MonitoredItem{
			ID:     "demo-event-" + uuid.NewString(),
			Source: proto.SourceCalendar,
			Event:  mut.Event,
		})
	}
	return nil
}

// Send implements EmailSender by recording the message.
func (d *DemoSource) Send(ctx context.Context, msg OutboundEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return nil
}
