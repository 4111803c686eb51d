package types

// StateTag is the orchestration state recorded with each checkpoint
type StateTag string

const (
	StateAwaitingReasoning StateTag = "awaiting_reasoning"
	StateDispatchingTools  StateTag = "dispatching_tools"
	StateExecutingTools    StateTag = "executing_tools"
	StateAnswered          StateTag = "answered"
	StateAborted           StateTag = "aborted"
)

// IsTerminal returns true for Answered and Aborted
func (s StateTag) IsTerminal() bool {
	return s == StateAnswered || s == StateAborted
}

// IsValid checks if the state tag is known
func (s StateTag) IsValid() bool {
	switch s {
	case StateAwaitingReasoning, StateDispatchingTools, StateExecutingTools, StateAnswered, StateAborted:
		return true
	}
	return false
}

// String returns the string representation of StateTag
func (s StateTag) String() string {
	return string(s)
}

// AbortReason explains why a thread ended in StateAborted
type AbortReason string

const (
	AbortNone             AbortReason = ""
	AbortBudgetExceeded   AbortReason = "budget_exceeded"
	AbortStepLimit        AbortReason = "step_limit"
	AbortFatalToolFailure AbortReason = "fatal_tool_failure"
	AbortReasoningFailure AbortReason = "reasoning_failure"
	AbortCancelled        AbortReason = "cancelled"
)

// String returns the string representation of AbortReason
func (r AbortReason) String() string {
	return string(r)
}
