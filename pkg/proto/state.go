// Package proto defines the shared data model for the assistant: agent
// states, monitored items, analyses, conflicts, and interpreted intents.
package proto

// State represents an agent lifecycle state.
type State string

// Agent states. The driver loops Monitoring -> Analyzing -> (Interacting ->
// Executing) -> Monitoring; ErrorBackoff is reachable from any state on
// collaborator failure.
const (
	StateIdle         State = "IDLE"
	StateMonitoring   State = "MONITORING"
	StateAnalyzing    State = "ANALYZING"
	StateInteracting  State = "INTERACTING"
	StateExecuting    State = "EXECUTING"
	StateErrorBackoff State = "ERROR_BACKOFF"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends the agent lifecycle.
// Only Idle after an explicit stop is terminal; the agent otherwise degrades
// rather than stopping.
func (s State) IsTerminal() bool {
	return s == StateIdle
}
