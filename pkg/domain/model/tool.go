package model

import (
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

// ToolCall is a request from the reasoning capability to run one tool
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the outcome of a ToolCall, paired by CallID
type ToolResult struct {
	CallID string           `json:"call_id"`
	Name   string           `json:"name"`
	Status types.ToolStatus `json:"status"`
	Output map[string]any   `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`
	// Fatal marks a non-retryable failure that terminates the thread
	Fatal bool `json:"fatal,omitempty"`
}

// OK returns true if the call succeeded
func (r *ToolResult) OK() bool {
	return r.Status == types.ToolStatusOK
}
