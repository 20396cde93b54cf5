// Package interaction turns flagged items into a bounded voice or console
// dialogue turn and maps the user's free-text reply to a structured intent.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"assistant/pkg/logx"
	"assistant/pkg/metrics"
	"assistant/pkg/proto"
)

// ErrStaleInteraction marks a reply that arrived late, twice, or for the
// wrong interaction. Stale replies are rejected without mutating state.
var ErrStaleInteraction = errors.New("stale interaction reply")

// maxClarifications bounds how many times an unclear reply reopens the
// window before the turn is abandoned.
const maxClarifications = 2

// Channel delivers a prompt to the user and collects a reply. The voice
// gateway and the console both implement it.
type Channel interface {
	// Deliver presents the prompt to the user.
	Deliver(ctx context.Context, prompt string) error

	// AwaitReply blocks for the user's reply until the deadline. It
	// returns context.DeadlineExceeded when the window elapses silently.
	AwaitReply(ctx context.Context, deadline time.Time) (string, error)
}

// Interaction is one dialogue turn. Terminal once Status leaves pending.
type Interaction struct {
	ID       string                  `json:"id"`
	Prompt   string                  `json:"prompt"`
	OpenedAt time.Time               `json:"opened_at"`
	Deadline time.Time               `json:"deadline"`
	Status   proto.InteractionStatus `json:"status"`
	RawReply string                  `json:"raw_reply,omitempty"`
	Intent   *proto.Intent           `json:"intent,omitempty"`
}

// Manager owns the single active interaction. At most one dialogue turn is
// open at a time; new critical items arriving mid-turn queue behind it.
type Manager struct {
	channel Channel
	interp  *Interpreter
	window  time.Duration
	logger  *logx.Logger

	mu      sync.Mutex
	active  *Interaction
	replyCh chan string
}

// NewManager creates an interaction manager with the given reply window.
func NewManager(channel Channel, interp *Interpreter, window time.Duration) *Manager {
	return &Manager{
		channel: channel,
		interp:  interp,
		window:  window,
		logger:  logx.NewLogger("interaction"),
	}
}

// Active returns a snapshot of the current interaction, or nil.
func (m *Manager) Active() *Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	cp := *m.active
	return &cp
}

// SubmitReply records a reply for the pending interaction. Replies after
// the deadline, after an earlier reply, or for an unknown id are rejected
// with ErrStaleInteraction and change nothing; a timed-out interaction
// stays timed out.
func (m *Manager) SubmitReply(id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ID != id {
		return fmt.Errorf("no pending interaction %s: %w", id, ErrStaleInteraction)
	}
	if m.active.Status != proto.InteractionPending {
		return fmt.Errorf("interaction %s already %s: %w", id, m.active.Status, ErrStaleInteraction)
	}
	if time.Now().After(m.active.Deadline) {
		return fmt.Errorf("reply after deadline: %w", ErrStaleInteraction)
	}

	select {
	case m.replyCh <- text:
		return nil
	default:
		return fmt.Errorf("reply already submitted: %w", ErrStaleInteraction)
	}
}

// Converse runs a full dialogue turn for the flagged items: compose, open a
// bounded window, collect and interpret the reply, clarifying when needed.
// A silent window returns a timed-out interaction with no intent. Cancelling
// ctx abandons the turn without executing anything.
func (m *Manager) Converse(ctx context.Context, flagged []*proto.MonitoredItem, conflicts []proto.Conflict) (*Interaction, error) {
	prompt := ComposePrompt(flagged, conflicts)

	for attempt := 0; ; attempt++ {
		inter, err := m.runTurn(ctx, prompt, flagged)
		if err != nil {
			return inter, err
		}

		if inter.Status == proto.InteractionTimedOut {
			metrics.Interactions.WithLabelValues(string(proto.InteractionTimedOut)).Inc()
			return inter, nil
		}

		metrics.Interactions.WithLabelValues(string(proto.InteractionAnswered)).Inc()
		if inter.Intent.Kind != proto.IntentClarificationNeeded || attempt >= maxClarifications {
			return inter, nil
		}

		m.logger.Info("Reply unclear, asking for clarification (attempt %d)", attempt+1)
		prompt = ClarifyPrompt(flagged)
	}
}

// runTurn opens one bounded window and resolves it to answered or timed out.
func (m *Manager) runTurn(ctx context.Context, prompt string, flagged []*proto.MonitoredItem) (*Interaction, error) {
	now := time.Now()
	inter := &Interaction{
		ID:       uuid.NewString(),
		Prompt:   prompt,
		OpenedAt: now,
		Deadline: now.Add(m.window),
		Status:   proto.InteractionPending,
	}

	m.mu.Lock()
	m.active = inter
	m.replyCh = make(chan string, 1)
	replyCh := m.replyCh
	m.mu.Unlock()

	if err := m.channel.Deliver(ctx, prompt); err != nil {
		m.finish(inter, proto.InteractionTimedOut, "", nil)
		return inter, fmt.Errorf("failed to deliver prompt: %w", err)
	}

	// The channel's own listener funnels through SubmitReply so voice,
	// console, and dashboard replies share one staleness check.
	go func() {
		text, err := m.channel.AwaitReply(ctx, inter.Deadline)
		if err != nil {
			return
		}
		if err := m.SubmitReply(inter.ID, text); err != nil {
			m.logger.Debug("Channel reply rejected: %v", err)
		}
	}()

	timer := time.NewTimer(time.Until(inter.Deadline))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		m.finish(inter, proto.InteractionTimedOut, "", nil)
		return inter, ctx.Err()

	case <-timer.C:
		m.finish(inter, proto.InteractionTimedOut, "", nil)
		m.logger.Info("Interaction %s timed out after %s", inter.ID, m.window)
		return inter, nil

	case text := <-replyCh:
		intent := m.interp.Interpret(ctx, text, flagged)
		m.finish(inter, proto.InteractionAnswered, text, &intent)
		return inter, nil
	}
}

func (m *Manager) finish(inter *Interaction, status proto.InteractionStatus, reply string, intent *proto.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inter.Status = status
	inter.RawReply = reply
	inter.Intent = intent
}

// Abandon drops the active interaction reference after the agent has
// consumed its outcome.
func (m *Manager) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
}
