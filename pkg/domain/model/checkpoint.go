package model

import (
	"time"

	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

// ThreadID identifies one independent conversation
type ThreadID string

// String returns the string representation of ThreadID
func (t ThreadID) String() string {
	return string(t)
}

// Checkpoint is an immutable snapshot of a thread at a step boundary.
// StepSeq starts at 1 and has no gaps for a thread.
type Checkpoint struct {
	ThreadID    ThreadID          `json:"thread_id"`
	StepSeq     int64             `json:"step_seq"`
	Messages    []Message         `json:"messages"`
	TokensUsed  int64             `json:"tokens_used"`
	State       types.StateTag    `json:"state"`
	Step        int               `json:"step"`
	AbortReason types.AbortReason `json:"abort_reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Copy returns a deep copy; messages carry pointer payloads that are shared,
// which is safe because payloads are never mutated after creation.
func (c *Checkpoint) Copy() *Checkpoint {
	copied := *c
	copied.Messages = make([]Message, len(c.Messages))
	copy(copied.Messages, c.Messages)
	return &copied
}

// TokenUsage is the cumulative cost committed for a thread
type TokenUsage struct {
	ThreadID ThreadID
	Used     int64
	Cap      int64
}

// Ratio returns Used / Cap, or 0 without a cap
func (u TokenUsage) Ratio() float64 {
	if u.Cap <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Cap)
}
