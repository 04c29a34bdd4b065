package models

// AgentState is the lifecycle state of an orchestrator.
type AgentState string

const (
	AgentStateIdle      AgentState = "idle"
	AgentStatePlanning  AgentState = "planning"
	AgentStateExecuting AgentState = "executing"
	AgentStateVerifying AgentState = "verifying"
	AgentStatePaused    AgentState = "paused"
	AgentStateCompleted AgentState = "completed"
	AgentStateFailed    AgentState = "failed"
	AgentStateCancelled AgentState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateIdle, AgentStatePlanning, AgentStateExecuting, AgentStateVerifying,
		AgentStatePaused, AgentStateCompleted, AgentStateFailed, AgentStateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states a session cannot leave.
func (s AgentState) IsTerminal() bool {
	return s == AgentStateCompleted || s == AgentStateFailed || s == AgentStateCancelled
}

// Accepting returns true if a new session may start from this state.
func (s AgentState) Accepting() bool {
	return s == AgentStateIdle || s.IsTerminal()
}
