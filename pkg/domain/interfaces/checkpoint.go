package interfaces

import (
	"context"

	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// CheckpointStore is the durable, append-only per-thread state log
type CheckpointStore interface {
	// Append writes a checkpoint atomically. StepSeq must be exactly one past the
	// latest stored StepSeq of the thread, otherwise model.ErrCheckpointConflict.
	Append(ctx context.Context, cp *model.Checkpoint) error

	// Latest returns the highest StepSeq checkpoint, or nil without error if the thread has none
	Latest(ctx context.Context, threadID model.ThreadID) (*model.Checkpoint, error)

	// List returns all checkpoints of the thread ordered by StepSeq
	List(ctx context.Context, threadID model.ThreadID) ([]*model.Checkpoint, error)

	// Delete removes every checkpoint of the thread
	Delete(ctx context.Context, threadID model.ThreadID) error
}
