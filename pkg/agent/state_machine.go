package agent

import (
	"fmt"
	"sync"
	"time"

	"assistant/pkg/logx"
	"assistant/pkg/metrics"
	"assistant/pkg/proto"
)

// transitionHistoryCap bounds the in-memory transition log.
const transitionHistoryCap = 200

// StateTransition records one state change.
type StateTransition struct {
	FromState proto.State `json:"from"`
	ToState   proto.State `json:"to"`
	Timestamp time.Time   `json:"timestamp"`
	Reason    string      `json:"reason,omitempty"`
}

// StateMachine validates and records the agent's state changes. All
// mutation goes through TransitionTo; readers always see a settled state.
type StateMachine struct {
	mu          sync.Mutex
	current     proto.State
	transitions []StateTransition
	table       TransitionTable
	logger      *logx.Logger
}

// NewStateMachine creates a state machine starting at the given state. A
// nil table uses ValidTransitions.
func NewStateMachine(initial proto.State, table TransitionTable) *StateMachine {
	if table == nil {
		table = ValidTransitions
	}
	return &StateMachine{
		current: initial,
		table:   table,
		logger:  logx.NewLogger("agent"),
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() proto.State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// IsValidTransition reports whether from -> to is allowed.
func (sm *StateMachine) IsValidTransition(from, to proto.State) bool {
	for _, allowed := range sm.table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves to a new state, validating against the table and
// recording the transition. Transitioning to the current state is a no-op.
func (sm *StateMachine) TransitionTo(newState proto.State, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	oldState := sm.current
	if oldState == newState {
		return nil
	}
	if !sm.IsValidTransition(oldState, newState) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, oldState, newState)
	}

	sm.transitions = append(sm.transitions, StateTransition{
		FromState: oldState,
		ToState:   newState,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
	if len(sm.transitions) > transitionHistoryCap {
		sm.transitions = sm.transitions[len(sm.transitions)-transitionHistoryCap:]
	}
	sm.current = newState

	sm.logger.Info("State transition: %s -> %s (%s)", oldState, newState, reason)
	metrics.SetAgentState(StateNames(), string(newState))
	return nil
}

// History returns a copy of the recorded transitions.
func (sm *StateMachine) History() []StateTransition {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]StateTransition, len(sm.transitions))
	copy(out, sm.transitions)
	return out
}
