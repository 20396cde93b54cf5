package interaction

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/pkg/oracle"
	"assistant/pkg/proto"
)

// fakeChannel scripts delivery and replies for tests.
type fakeChannel struct {
	mu        sync.Mutex
	delivered []string
	replies   []string
}

func (f *fakeChannel) Deliver(ctx context.Context, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, prompt)
	return nil
}

func (f *fakeChannel) AwaitReply(ctx context.Context, deadline time.Time) (string, error) {
	f.mu.Lock()
	if len(f.replies) > 0 {
		reply := f.replies[0]
		f.replies = f.replies[1:]
		f.mu.Unlock()
		return reply, nil
	}
	f.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", context.DeadlineExceeded
	}
}

func (f *fakeChannel) deliveredPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.delivered...)
}

func flaggedEmail(id string, urgency proto.Urgency) *proto.MonitoredItem {
	return &proto.MonitoredItem{
		ID:     id,
		Source: proto.SourceEmail,
		Email: &proto.Email{
			Sender:     "boss@co.com",
			Subject:    "subject " + id,
			ReceivedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
		Analysis: &proto.Analysis{Urgency: urgency, Summary: "summary " + id},
	}
}

func TestConverseAnswersWithKeywordIntent(t *testing.T) {
	ch := &fakeChannel{replies: []string{"please cancel it"}}
	m := NewManager(ch, NewInterpreter(nil), time.Second)

	inter, err := m.Converse(context.Background(), []*proto.MonitoredItem{flaggedEmail("e1", proto.UrgencyCritical)}, nil)
	require.NoError(t, err)

	assert.Equal(t, proto.InteractionAnswered, inter.Status)
	assert.Equal(t, "please cancel it", inter.RawReply)
	require.NotNil(t, inter.Intent)
	assert.Equal(t, proto.IntentCancel, inter.Intent.Kind)
}

func TestConverseTimesOutSilently(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(ch, NewInterpreter(nil), 30*time.Millisecond)

	inter, err := m.Converse(context.Background(), []*proto.MonitoredItem{flaggedEmail("e1", proto.UrgencyHigh)}, nil)
	require.NoError(t, err)

	assert.Equal(t, proto.InteractionTimedOut, inter.Status)
	assert.Nil(t, inter.Intent)
}

func TestLateReplyIsStaleAndDoesNotReviveTimeout(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(ch, NewInterpreter(nil), 20*time.Millisecond)

	inter, err := m.Converse(context.Background(), []*proto.MonitoredItem{flaggedEmail("e1", proto.UrgencyHigh)}, nil)
	require.NoError(t, err)
	require.Equal(t, proto.InteractionTimedOut, inter.Status)

	err = m.SubmitReply(inter.ID, "cancel it")
	assert.ErrorIs(t, err, ErrStaleInteraction)

	snap := m.Active()
	require.NotNil(t, snap)
	assert.Equal(t, proto.InteractionTimedOut, snap.Status)
}

func TestSubmitReplyUnknownIDIsStale(t *testing.T) {
	m := NewManager(&fakeChannel{}, NewInterpreter(nil), time.Second)
	err := m.SubmitReply("nope", "hello")
	assert.ErrorIs(t, err, ErrStaleInteraction)
}

func TestUnclearReplyReopensWithClarification(t *testing.T) {
	ch := &fakeChannel{replies: []string{"mumble mumble", "cancel the meeting"}}
	m := NewManager(ch, NewInterpreter(nil), time.Second)

	inter, err := m.Converse(context.Background(), []*proto.MonitoredItem{flaggedEmail("e1", proto.UrgencyCritical)}, nil)
	require.NoError(t, err)

	assert.Equal(t, proto.IntentCancel, inter.Intent.Kind)
	prompts := ch.deliveredPrompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "didn't catch")
}

func TestConverseCancelledByContext(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(ch, NewInterpreter(nil), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	inter, err := m.Converse(ctx, []*proto.MonitoredItem{flaggedEmail("e1", proto.UrgencyHigh)}, nil)
	require.Error(t, err)
	assert.Equal(t, proto.InteractionTimedOut, inter.Status)
}

func TestComposePromptOrdersBySeverityThenTime(t *testing.T) {
	low := flaggedEmail("low", proto.UrgencyLow)
	critical := flaggedEmail("critical", proto.UrgencyCritical)
	prompt := ComposePrompt([]*proto.MonitoredItem{low, critical}, nil)

	criticalPos := strings.Index(prompt, "summary critical")
	lowPos := strings.Index(prompt, "summary low")
	require.GreaterOrEqual(t, criticalPos, 0)
	require.GreaterOrEqual(t, lowPos, 0)
	assert.Less(t, criticalPos, lowPos)
}

func TestInterpretUsesOracleIntent(t *testing.T) {
	mock := oracle.NewMockClient("")
	mock.QueueResponse(`{"intent": "reschedule", "target_id": "c1", "new_start": "2026-03-03T15:00:00Z", "confidence": 0.9}`)
	p := NewInterpreter(mock)

	intent := p.Interpret(context.Background(), "move it to tomorrow 3pm", nil)
	assert.Equal(t, proto.IntentReschedule, intent.Kind)
	assert.Equal(t, "c1", intent.TargetID)
	require.NotNil(t, intent.NewStart)
	assert.Equal(t, 15, intent.NewStart.Hour())
}

func TestInterpretLowConfidenceBecomesClarification(t *testing.T) {
	mock := oracle.NewMockClient("")
	mock.QueueResponse(`{"intent": "cancel", "confidence": 0.2}`)
	p := NewInterpreter(mock)

	intent := p.Interpret(context.Background(), "uh maybe", nil)
	assert.Equal(t, proto.IntentClarificationNeeded, intent.Kind)
}

func TestInterpretFallsBackOnOracleFailure(t *testing.T) {
	mock := oracle.NewMockClient("")
	mock.QueueError(oracle.NewError(oracle.ErrorTypeAuth, "dead"))
	p := NewInterpreter(mock)

	intent := p.Interpret(context.Background(), "reschedule the sync", nil)
	assert.Equal(t, proto.IntentReschedule, intent.Kind)
}

func TestFallbackIntentTable(t *testing.T) {
	tests := []struct {
		reply string
		want  proto.IntentKind
	}{
		{"reschedule it", proto.IntentReschedule},
		{"move the meeting", proto.IntentReschedule},
		{"change time please", proto.IntentReschedule},
		{"cancel that", proto.IntentCancel},
		{"delete the event", proto.IntentCancel},
		{"remove it", proto.IntentCancel},
		{"removed from my calendar please", proto.IntentCancel},
		{"gibberish words", proto.IntentClarificationNeeded},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got := FallbackIntent(tt.reply)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}
