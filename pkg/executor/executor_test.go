package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/pkg/proto"
	"assistant/pkg/source"
)

func knownEvent(id string, start, end time.Time) map[string]*proto.MonitoredItem {
	return map[string]*proto.MonitoredItem{
		id: {
			ID:     id,
			Source: proto.SourceCalendar,
			Event:  &proto.CalendarEvent{Title: "sync", Start: start, End: end, Location: "HQ"},
		},
	}
}

func TestExecuteCancel(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	cal := source.NewScriptedCalendarSource(proto.MonitoredItem{
		ID:     "c1",
		Source: proto.SourceCalendar,
		Event:  &proto.CalendarEvent{Title: "sync", Start: start, End: start.Add(time.Hour)},
	})
	ex := NewExecutor(cal, source.NewScriptedSender(), false)

	result := ex.Execute(context.Background(), proto.Intent{Kind: proto.IntentCancel, TargetID: "c1"}, nil)

	assert.True(t, result.Succeeded())
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepCancelEvent, result.Steps[0].Kind)

	applied := cal.Applied()
	require.Len(t, applied, 1)
	assert.Equal(t, source.MutationCancel, applied[0].Kind)
}

func TestExecuteReschedulePreservesDuration(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	known := knownEvent("c1", start, start.Add(90*time.Minute))
	cal := source.NewScriptedCalendarSource(*known["c1"])
	ex := NewExecutor(cal, source.NewScriptedSender(), false)

	newStart := start.Add(24 * time.Hour)
	result := ex.Execute(context.Background(), proto.Intent{
		Kind:     proto.IntentReschedule,
		TargetID: "c1",
		NewStart: &newStart,
	}, known)

	require.True(t, result.Succeeded())
	require.Len(t, result.Steps, 2)

	applied := cal.Applied()
	require.Len(t, applied, 2)
	assert.Equal(t, source.MutationCancel, applied[0].Kind)
	assert.Equal(t, source.MutationCreate, applied[1].Kind)
	assert.Equal(t, newStart, applied[1].Event.Start)
	assert.Equal(t, newStart.Add(90*time.Minute), applied[1].Event.End)
}

func TestRescheduleSkipsCreateWhenCancelFails(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	known := knownEvent("c1", start, start.Add(time.Hour))
	cal := source.NewScriptedCalendarSource(*known["c1"])
	cal.QueueApplyError(errors.New("event not found"))
	ex := NewExecutor(cal, source.NewScriptedSender(), false)

	newStart := start.Add(time.Hour)
	result := ex.Execute(context.Background(), proto.Intent{
		Kind:     proto.IntentReschedule,
		TargetID: "c1",
		NewStart: &newStart,
	}, known)

	assert.False(t, result.Succeeded())
	assert.False(t, result.Partial())
	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].OK)
	assert.Contains(t, result.Steps[1].Error, "skipped")
	assert.Empty(t, cal.Applied())
}

func TestStepRetriesTransientFailures(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	cal := source.NewScriptedCalendarSource(proto.MonitoredItem{
		ID:     "c1",
		Source: proto.SourceCalendar,
		Event:  &proto.CalendarEvent{Start: start, End: start.Add(time.Hour)},
	})
	cal.QueueApplyError(errors.New("connection refused"))
	cal.QueueApplyError(errors.New("network timeout"))
	ex := NewExecutor(cal, source.NewScriptedSender(), false)

	result := ex.Execute(context.Background(), proto.Intent{Kind: proto.IntentCancel, TargetID: "c1"}, nil)

	require.True(t, result.Succeeded())
	assert.Equal(t, 3, result.Steps[0].Attempts)
}

func TestStepDoesNotRetryPermanentFailures(t *testing.T) {
	cal := source.NewScriptedCalendarSource()
	cal.QueueApplyError(errors.New("validation failed: no such event"))
	ex := NewExecutor(cal, source.NewScriptedSender(), false)

	result := ex.Execute(context.Background(), proto.Intent{Kind: proto.IntentCancel, TargetID: "c1"}, nil)

	assert.False(t, result.Succeeded())
	assert.Equal(t, 1, result.Steps[0].Attempts)
}

func TestSendReplyRespectsDraftMode(t *testing.T) {
	sender := source.NewScriptedSender()
	ex := NewExecutor(source.NewScriptedCalendarSource(), sender, true)

	known := map[string]*proto.MonitoredItem{
		"e1": {
			ID:     "e1",
			Source: proto.SourceEmail,
			Email:  &proto.Email{Sender: "boss@co.com", Subject: "escalation"},
		},
	}
	result := ex.Execute(context.Background(), proto.Intent{
		Kind:      proto.IntentSendReply,
		TargetID:  "e1",
		Recipient: "boss@co.com",
		ReplyBody: "On it.",
	}, known)

	require.True(t, result.Succeeded())
	assert.Equal(t, StepDraftEmail, result.Steps[0].Kind)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Draft)
	assert.Equal(t, "Re: escalation", sent[0].Subject)
}

func TestPartialFailureIsReportedPerStep(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	known := knownEvent("c1", start, start.Add(time.Hour))
	cal := source.NewScriptedCalendarSource(*known["c1"])
	// Cancel succeeds, create hits a permanent failure.
	cal.QueueApplyError(nil)
	cal.QueueApplyError(errors.New("calendar is read only"))
	ex := NewExecutor(cal, source.NewScriptedSender(), false)

	newStart := start.Add(2 * time.Hour)
	result := ex.Execute(context.Background(), proto.Intent{
		Kind:     proto.IntentReschedule,
		TargetID: "c1",
		NewStart: &newStart,
	}, known)

	assert.False(t, result.Succeeded())
	assert.True(t, result.Partial())
	assert.True(t, result.Steps[0].OK)
	assert.False(t, result.Steps[1].OK)
	assert.Contains(t, result.Summary(), "FAILED")
}
