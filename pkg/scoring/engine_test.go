package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/pkg/oracle"
	"assistant/pkg/proto"
)

func emailItem(id, sender, subject, body string) *proto.MonitoredItem {
	return &proto.MonitoredItem{
		ID:     id,
		Source: proto.SourceEmail,
		Email: &proto.Email{
			Sender:     sender,
			Subject:    subject,
			Body:       body,
			ReceivedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
	}
}

const goodReply = `{
	"importance_score": 0.9,
	"requires_action": true,
	"action_type": "reply",
	"urgency": "critical",
	"summary": "Client escalation",
	"suggested_action": "Reply before the 2pm sync"
}`

func TestScoreUsesOracleJudgment(t *testing.T) {
	mock := oracle.NewMockClient("")
	mock.QueueResponse(goodReply)
	engine := NewEngine(mock, 2)

	analysis := engine.Score(context.Background(), emailItem("e1", "boss@co.com", "escalation", "call me"))

	assert.InDelta(t, 0.9, analysis.ImportanceScore, 1e-9)
	assert.True(t, analysis.RequiresAction)
	assert.Equal(t, proto.ActionReply, analysis.ActionType)
	assert.Equal(t, proto.UrgencyCritical, analysis.Urgency)
	assert.False(t, analysis.Fallback)
}

func TestScoreToleratesFencedJSON(t *testing.T) {
	mock := oracle.NewMockClient("")
	mock.QueueResponse("Here you go:\n```json\n" + goodReply + "\n```")
	engine := NewEngine(mock, 2)

	analysis := engine.Score(context.Background(), emailItem("e1", "a@b.com", "x", "y"))
	assert.False(t, analysis.Fallback)
	assert.Equal(t, "Client escalation", analysis.Summary)
}

func TestScoreClampsOutOfRangeScore(t *testing.T) {
	mock := oracle.NewMockClient("")
	mock.QueueResponse(`{"importance_score": 1.7, "requires_action": false, "action_type": "none", "urgency": "low", "summary": "s"}`)
	engine := NewEngine(mock, 2)

	analysis := engine.Score(context.Background(), emailItem("e1", "a@b.com", "x", "y"))
	assert.Equal(t, 1.0, analysis.ImportanceScore)
	assert.False(t, analysis.Fallback)
}

func TestScoreFallsBackOnMalformedReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "I think this email is quite important."},
		{"missing fields", `{"importance_score": 0.5}`},
		{"bad urgency", `{"importance_score": 0.5, "requires_action": true, "urgency": "apocalyptic", "summary": "s"}`},
		{"bad action type", `{"importance_score": 0.5, "requires_action": true, "action_type": "panic", "urgency": "high", "summary": "s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := oracle.NewMockClient("")
			mock.QueueResponse(tt.reply)
			engine := NewEngine(mock, 2)

			analysis := engine.Score(context.Background(), emailItem("e1", "a@b.com", "hello", "world"))
			assert.True(t, analysis.Fallback)
			assert.GreaterOrEqual(t, analysis.ImportanceScore, 0.0)
			assert.LessOrEqual(t, analysis.ImportanceScore, 1.0)
		})
	}
}

func TestFallbackScoresUrgentBossEmail(t *testing.T) {
	// "URGENT deadline" from boss: 0.3 baseline + 0.4 urgency + 0.3
	// authority = 1.0. Fallback urgency tops out at high, never critical.
	engine := NewEngine(nil, 2)
	analysis := engine.Score(context.Background(), emailItem("e1", "boss@co.com", "URGENT deadline", "need this now"))

	assert.True(t, analysis.Fallback)
	assert.Equal(t, 1.0, analysis.ImportanceScore)
	assert.True(t, analysis.RequiresAction)
	assert.Equal(t, proto.UrgencyHigh, analysis.Urgency)
	assert.Equal(t, proto.ActionUrgent, analysis.ActionType)
}

func TestFallbackScoresRoutineEmailLow(t *testing.T) {
	engine := NewEngine(nil, 2)
	analysis := engine.Score(context.Background(), emailItem("e2", "newsletter@list.com", "weekly digest", "enjoy"))

	assert.True(t, analysis.Fallback)
	assert.InDelta(t, 0.3, analysis.ImportanceScore, 1e-9)
	assert.False(t, analysis.RequiresAction)
	assert.Equal(t, proto.UrgencyLow, analysis.Urgency)
	assert.Equal(t, proto.ActionArchive, analysis.ActionType)
}

func TestFallbackScoresCalendarEvent(t *testing.T) {
	item := &proto.MonitoredItem{
		ID:     "c1",
		Source: proto.SourceCalendar,
		Event: &proto.CalendarEvent{
			Title: "Executive review presentation",
			Start: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		},
	}
	engine := NewEngine(nil, 2)
	analysis := engine.Score(context.Background(), item)

	// 0.4 baseline + 0.4 executive + 0.2 review + 0.3 presentation, clamped.
	assert.True(t, analysis.Fallback)
	assert.Equal(t, 1.0, analysis.ImportanceScore)
	assert.True(t, analysis.RequiresAction)
}

func TestScoreBatchIsolatesFailures(t *testing.T) {
	mock := oracle.NewMockClient(goodReply)
	mock.QueueError(oracle.NewError(oracle.ErrorTypeAuth, "dead oracle"))
	engine := NewEngine(mock, 3)

	items := []*proto.MonitoredItem{
		emailItem("e1", "a@b.com", "first", "body"),
		emailItem("e2", "a@b.com", "second", "body"),
		emailItem("e3", "a@b.com", "third", "body"),
	}
	engine.ScoreBatch(context.Background(), items)

	fallbacks := 0
	for _, item := range items {
		require.NotNil(t, item.Analysis)
		if item.Analysis.Fallback {
			fallbacks++
		}
	}
	assert.Equal(t, 1, fallbacks)
}

func TestScoreNeverReturnsOutOfRange(t *testing.T) {
	engine := NewEngine(nil, 2)
	items := []*proto.MonitoredItem{
		emailItem("e1", "boss ceo director", "urgent asap emergency deadline", "meeting schedule urgent"),
		{ID: "empty", Source: proto.SourceEmail},
		{ID: "mystery", Source: proto.Source("pager")},
	}
	for _, item := range items {
		analysis := engine.Score(context.Background(), item)
		assert.GreaterOrEqual(t, analysis.ImportanceScore, 0.0, "item %s", item.ID)
		assert.LessOrEqual(t, analysis.ImportanceScore, 1.0, "item %s", item.ID)
	}
}

func TestScoreHandlesMissingPayloadOnOraclePath(t *testing.T) {
	// A payload-less item must survive prompt building, not just fallback.
	engine := NewEngine(oracle.NewMockClient(goodReply), 2)
	items := []*proto.MonitoredItem{
		{ID: "empty-email", Source: proto.SourceEmail},
		{ID: "empty-event", Source: proto.SourceCalendar},
	}
	for _, item := range items {
		analysis := engine.Score(context.Background(), item)
		assert.GreaterOrEqual(t, analysis.ImportanceScore, 0.0, "item %s", item.ID)
		assert.LessOrEqual(t, analysis.ImportanceScore, 1.0, "item %s", item.ID)
	}
}

func TestBuildScorePromptMissingPayload(t *testing.T) {
	prompt := buildScorePrompt(&proto.MonitoredItem{ID: "bare", Source: proto.SourceEmail})
	assert.Contains(t, prompt, "bare")
}

func TestTruncateTokensBoundsLongBodies(t *testing.T) {
	long := ""
	for i := 0; i < 2000; i++ {
		long += "word "
	}
	short := truncateTokens(long, 50)
	assert.Less(t, len(short), len(long))
	assert.True(t, len(short) > 0)
}
