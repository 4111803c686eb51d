package model

import "github.com/m-mizutani/gollem"

// ReasoningRequest is the input of one reasoning step
type ReasoningRequest struct {
	ThreadID     ThreadID
	SystemPrompt string
	History      []Message
	Tools        []gollem.ToolSpec
}

// Reasoning is the output of one reasoning step. No tool calls means a final answer.
type Reasoning struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// Tokens returns the total reported cost of the step
func (r *Reasoning) Tokens() int64 {
	return int64(r.InputTokens + r.OutputTokens)
}

// IsFinal returns true if no tool calls were requested
func (r *Reasoning) IsFinal() bool {
	return len(r.ToolCalls) == 0
}
