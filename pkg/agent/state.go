package agent

import (
	"errors"

	"assistant/pkg/proto"
)

// ErrInvalidTransition is returned when a state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionTable represents valid state transitions for the agent.
type TransitionTable map[proto.State][]proto.State

// ValidTransitions is the agent's transition table. ErrorBackoff is
// reachable from every working state; Idle is only entered by an explicit
// stop.
//
//nolint:gochecknoglobals // Static transition table
var ValidTransitions = TransitionTable{
	proto.StateIdle: {
		proto.StateMonitoring,
	},
	proto.StateMonitoring: {
		proto.StateAnalyzing,
		proto.StateErrorBackoff,
		proto.StateIdle,
	},
	proto.StateAnalyzing: {
		proto.StateInteracting,
		proto.StateMonitoring,
		proto.StateErrorBackoff,
		proto.StateIdle,
	},
	proto.StateInteracting: {
		proto.StateExecuting,
		proto.StateMonitoring,
		proto.StateErrorBackoff,
		proto.StateIdle,
	},
	proto.StateExecuting: {
		proto.StateMonitoring,
		proto.StateErrorBackoff,
		proto.StateIdle,
	},
	proto.StateErrorBackoff: {
		proto.StateMonitoring,
		proto.StateIdle,
	},
}

// AllStates lists every agent state, for metrics and validation.
//
//nolint:gochecknoglobals // Static list
var AllStates = []proto.State{
	proto.StateIdle,
	proto.StateMonitoring,
	proto.StateAnalyzing,
	proto.StateInteracting,
	proto.StateExecuting,
	proto.StateErrorBackoff,
}

// StateNames returns the state list as strings.
func StateNames() []string {
	out := make([]string, len(AllStates))
	for i, s := range AllStates {
		out[i] = string(s)
	}
	return out
}
