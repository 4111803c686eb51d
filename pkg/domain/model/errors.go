package model

import "errors"

// Sentinel errors shared across the corpus, retrieval and orchestration layers.
var (
	// Corpus
	ErrMalformedRecord = errors.New("malformed record")
	ErrDuplicateChunk  = errors.New("duplicate chunk id")

	// Retrieval
	ErrEmptyIndex   = errors.New("index holds no chunks for the requested level")
	ErrUnknownGroup = errors.New("unknown group tag")
	ErrNoEvidence   = errors.New("no review data available")

	// Tool and capability failures
	ErrValidation   = errors.New("invalid tool input")
	ErrCapability   = errors.New("capability unavailable")
	ErrTimeout      = errors.New("tool call timed out")
	ErrUnknownTool  = errors.New("unknown tool")
	ErrNonRetryable = errors.New("irrecoverable tool failure")

	// Thread lifecycle
	ErrBudgetExceeded     = errors.New("token budget exceeded")
	ErrCorruptCheckpoint  = errors.New("corrupt checkpoint")
	ErrCheckpointConflict = errors.New("checkpoint step sequence conflict")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrThreadBusy         = errors.New("thread already has an active run")
	ErrThreadTerminated   = errors.New("thread cannot be resumed from a terminal state")
)

// Context keys for error values
const (
	ThreadIDKey = "thread_id"
	StepSeqKey  = "step_seq"
	ChunkIDKey  = "chunk_id"
	RecordIDKey = "record_id"
	ToolNameKey = "tool_name"
)
