package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/pkg/config"
	"assistant/pkg/conflict"
	"assistant/pkg/executor"
	"assistant/pkg/interaction"
	"assistant/pkg/oracle"
	"assistant/pkg/proto"
	"assistant/pkg/scoring"
	"assistant/pkg/source"
)

const criticalReply = `{"importance_score": 0.95, "requires_action": true, "action_type": "urgent",
	"urgency": "critical", "summary": "drop everything", "suggested_action": "respond now"}`

const routineReply = `{"importance_score": 0.2, "requires_action": false, "action_type": "none",
	"urgency": "low", "summary": "nothing much", "suggested_action": ""}`

// scriptedChannel is an in-test interaction channel.
type scriptedChannel struct {
	mu        sync.Mutex
	replies   []string
	delivered int
}

func (c *scriptedChannel) Deliver(ctx context.Context, prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered++
	return nil
}

func (c *scriptedChannel) AwaitReply(ctx context.Context, deadline time.Time) (string, error) {
	c.mu.Lock()
	if len(c.replies) > 0 {
		reply := c.replies[0]
		c.replies = c.replies[1:]
		c.mu.Unlock()
		return reply, nil
	}
	c.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", context.DeadlineExceeded
	}
}

func (c *scriptedChannel) deliveredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MonitorInterval:      model.Duration(time.Hour),
		CalendarLookahead:    model.Duration(7 * 24 * time.Hour),
		TravelBuffer:         model.Duration(15 * time.Minute),
		ResponseWindow:       model.Duration(50 * time.Millisecond),
		InteractionThreshold: "critical",
		ErrorBackoffBase:     model.Duration(time.Millisecond),
		ErrorBackoffCap:      model.Duration(4 * time.Millisecond),
		ScoringWorkers:       2,
		EmailLookbackOnStart: model.Duration(24 * time.Hour),
	}
}

type fixture struct {
	driver    *Driver
	emails    *source.ScriptedEmailSource
	calendar  *source.ScriptedCalendarSource
	sender    *source.ScriptedSender
	scoreLLM  *oracle.MockClient
	intentLLM *oracle.MockClient
	channel   *scriptedChannel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		emails:    source.NewScriptedEmailSource(),
		calendar:  source.NewScriptedCalendarSource(),
		sender:    source.NewScriptedSender(),
		scoreLLM:  oracle.NewMockClient(routineReply),
		intentLLM: oracle.NewMockClient(""),
		channel:   &scriptedChannel{},
	}

	cfg := testAgentConfig()
	f.driver = NewDriver(cfg, Collaborators{
		Emails:       f.emails,
		Calendar:     f.calendar,
		Engine:       scoring.NewEngine(f.scoreLLM, cfg.ScoringWorkers),
		Detector:     conflict.NewDetector(time.Duration(cfg.TravelBuffer)),
		Interactions: interaction.NewManager(f.channel, interaction.NewInterpreter(f.intentLLM), time.Duration(cfg.ResponseWindow)),
		Executor:     executor.NewExecutor(f.calendar, f.sender, false),
	})
	return f
}

func email(id, subject string, received time.Time) proto.MonitoredItem {
	return proto.MonitoredItem{
		ID:     id,
		Source: proto.SourceEmail,
		Email:  &proto.Email{Sender: "a@b.com", Subject: subject, Body: "body", ReceivedAt: received},
	}
}

func calEvent(id string, start, end time.Time, location string) proto.MonitoredItem {
	return proto.MonitoredItem{
		ID:     id,
		Source: proto.SourceCalendar,
		Event:  &proto.CalendarEvent{Title: id, Start: start, End: end, Location: location},
	}
}

func TestCycleIngestsAndScoresNewItems(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.emails.QueueBatch(email("e1", "hello", now.Add(-time.Minute)))

	f.driver.cycle(context.Background())

	snap := f.driver.GetSnapshot()
	assert.Equal(t, 1, snap.KnownItems)
	assert.Equal(t, proto.StateMonitoring, snap.State)
	assert.Equal(t, 0, snap.ConsecutiveErrors)
	// Watermark advanced to the newest email.
	assert.True(t, snap.FetchWatermark.Equal(now.Add(-time.Minute)))
}

func TestCycleSkipsAlreadyKnownItems(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.emails.QueueBatch(email("e1", "hello", now.Add(-time.Minute)))
	f.emails.QueueBatch(email("e1", "hello", now.Add(-time.Minute)))

	f.driver.cycle(context.Background())
	scoredOnce := f.scoreLLM.CallCount()
	f.driver.cycle(context.Background())

	snap := f.driver.GetSnapshot()
	assert.Equal(t, 1, snap.KnownItems)
	// Re-fetched item is not rescored within a later cycle.
	assert.Equal(t, scoredOnce, f.scoreLLM.CallCount())
}

func TestFetchFailureEntersBackoffAndRecovers(t *testing.T) {
	f := newFixture(t)
	f.emails.QueueError(assert.AnError)

	f.driver.cycle(context.Background())
	snap := f.driver.GetSnapshot()
	assert.Equal(t, 1, snap.ConsecutiveErrors)
	assert.Equal(t, proto.StateMonitoring, snap.State)

	// A clean pass resets the escalation counter.
	f.driver.cycle(context.Background())
	snap = f.driver.GetSnapshot()
	assert.Equal(t, 0, snap.ConsecutiveErrors)

	// The backoff transition was recorded.
	sawBackoff := false
	for _, tr := range f.driver.History() {
		if tr.ToState == proto.StateErrorBackoff {
			sawBackoff = true
		}
	}
	assert.True(t, sawBackoff)
}

func TestNewConflictTriggersInteractionAndExecution(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	a := calEvent("standup", now.Add(time.Hour), now.Add(2*time.Hour), "HQ")
	b := calEvent("sync", now.Add(90*time.Minute), now.Add(150*time.Minute), "HQ")
	f.calendar.SetEvents(a, b)

	f.channel.replies = []string{"cancel the sync"}
	f.intentLLM.QueueResponse(`{"intent": "cancel", "target_id": "sync", "confidence": 0.9}`)

	f.driver.cycle(context.Background())

	snap := f.driver.GetSnapshot()
	require.Len(t, snap.ActiveConflicts, 1)
	assert.Equal(t, 1, f.channel.deliveredCount())

	applied := f.calendar.Applied()
	require.Len(t, applied, 1)
	assert.Equal(t, source.MutationCancel, applied[0].Kind)
	assert.Equal(t, "sync", applied[0].EventID)
}

func TestSameConflictDoesNotReopenDialogue(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.calendar.SetEvents(
		calEvent("standup", now.Add(time.Hour), now.Add(2*time.Hour), "HQ"),
		calEvent("sync", now.Add(90*time.Minute), now.Add(150*time.Minute), "HQ"),
	)

	// No reply: the turn times out and the conflict stays.
	f.driver.cycle(context.Background())
	require.Equal(t, 1, f.channel.deliveredCount())

	// The same conflict next cycle is not news; no second call.
	f.driver.cycle(context.Background())
	assert.Equal(t, 1, f.channel.deliveredCount())
}

func TestCriticalItemResurfacesAfterTimeout(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.scoreLLM.QueueResponse(criticalReply)
	f.emails.QueueBatch(email("e1", "URGENT", now.Add(-time.Minute)))

	// No reply queued: the window times out, nothing executes.
	f.driver.cycle(context.Background())
	require.Equal(t, 1, f.channel.deliveredCount())

	// Still critical and unhandled, so the next cycle asks again.
	f.driver.cycle(context.Background())
	assert.Equal(t, 2, f.channel.deliveredCount())
}

func TestAcknowledgedItemStopsResurfacing(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.scoreLLM.QueueResponse(criticalReply)
	f.emails.QueueBatch(email("e1", "URGENT", now.Add(-time.Minute)))

	f.channel.replies = []string{"nothing, leave it"}
	f.intentLLM.QueueResponse(`{"intent": "no_op", "confidence": 0.9}`)

	f.driver.cycle(context.Background())
	require.Equal(t, 1, f.channel.deliveredCount())

	f.driver.cycle(context.Background())
	assert.Equal(t, 1, f.channel.deliveredCount())
}

func TestExternallyCancelledEventClearsConflict(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.calendar.SetEvents(
		calEvent("standup", now.Add(time.Hour), now.Add(2*time.Hour), "HQ"),
		calEvent("sync", now.Add(90*time.Minute), now.Add(150*time.Minute), "HQ"),
	)
	f.driver.cycle(context.Background())
	require.Len(t, f.driver.GetSnapshot().ActiveConflicts, 1)

	// One meeting disappears upstream; the conflict must not linger.
	f.calendar.SetEvents(calEvent("standup", now.Add(time.Hour), now.Add(2*time.Hour), "HQ"))
	f.driver.cycle(context.Background())
	assert.Empty(t, f.driver.GetSnapshot().ActiveConflicts)
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.driver.Start())
	assert.Error(t, f.driver.Start(), "second start must fail")
	assert.True(t, f.driver.Running())

	f.driver.Stop()
	assert.False(t, f.driver.Running())
	assert.Equal(t, proto.StateIdle, f.driver.GetSnapshot().State)

	// Stop twice is harmless.
	f.driver.Stop()
}

func TestForceCheckRunsImmediateCycle(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	require.NoError(t, f.driver.Start())
	defer f.driver.Stop()

	// Wait for the startup cycle to land.
	require.Eventually(t, func() bool {
		return !f.driver.GetSnapshot().LastCycleAt.IsZero()
	}, time.Second, 5*time.Millisecond)
	first := f.driver.GetSnapshot().LastCycleAt

	f.emails.QueueBatch(email("e9", "later", now))
	f.driver.ForceCheck()

	require.Eventually(t, func() bool {
		snap := f.driver.GetSnapshot()
		return snap.LastCycleAt.After(first) && snap.KnownItems == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInvalidTransitionRejected(t *testing.T) {
	sm := NewStateMachine(proto.StateIdle, nil)
	err := sm.TransitionTo(proto.StateExecuting, "shortcut")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, proto.StateIdle, sm.Current())
}

func TestTransitionTableCoversAllStates(t *testing.T) {
	for _, s := range AllStates {
		if s == proto.StateIdle {
			continue
		}
		_, ok := ValidTransitions[s]
		assert.True(t, ok, "state %s has no outgoing transitions", s)
	}
}
