package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

// Restore loads the latest checkpoint of the thread and its conversation after
// validating the whole log: StepSeq must run 1..n without gaps and the latest
// messages must be sequenced and well formed. Violations wrap
// model.ErrCorruptCheckpoint; the thread has to be ended and recreated.
func (o *Orchestrator) Restore(ctx context.Context, threadID model.ThreadID) (*model.Checkpoint, model.Conversation, error) {
	checkpoints, err := o.store.List(ctx, threadID)
	if err != nil {
		return nil, model.Conversation{}, goerr.Wrap(err, "failed to list checkpoints", goerr.V(model.ThreadIDKey, threadID))
	}
	if len(checkpoints) == 0 {
		return nil, model.Conversation{}, goerr.Wrap(model.ErrThreadNotFound, "thread has no checkpoint", goerr.V(model.ThreadIDKey, threadID))
	}

	for i, cp := range checkpoints {
		if cp.StepSeq != int64(i+1) {
			return nil, model.Conversation{}, goerr.Wrap(model.ErrCorruptCheckpoint, "checkpoint sequence gap",
				goerr.V(model.ThreadIDKey, threadID), goerr.V(model.StepSeqKey, cp.StepSeq), goerr.V("expected", i+1))
		}
		if cp.ThreadID != threadID {
			return nil, model.Conversation{}, goerr.Wrap(model.ErrCorruptCheckpoint, "checkpoint belongs to another thread",
				goerr.V(model.ThreadIDKey, threadID), goerr.V(model.StepSeqKey, cp.StepSeq))
		}
		if !cp.State.IsValid() {
			return nil, model.Conversation{}, goerr.Wrap(model.ErrCorruptCheckpoint, "unknown checkpoint state",
				goerr.V(model.ThreadIDKey, threadID), goerr.V(model.StepSeqKey, cp.StepSeq), goerr.V(StateKey, cp.State))
		}
		if i > 0 && len(cp.Messages) < len(checkpoints[i-1].Messages) {
			return nil, model.Conversation{}, goerr.Wrap(model.ErrCorruptCheckpoint, "conversation shrank between checkpoints",
				goerr.V(model.ThreadIDKey, threadID), goerr.V(model.StepSeqKey, cp.StepSeq))
		}
	}

	latest := checkpoints[len(checkpoints)-1]
	conv, err := model.NewConversation(latest.Messages)
	if err != nil {
		return nil, model.Conversation{}, goerr.Wrap(err, "invalid conversation",
			goerr.V(model.ThreadIDKey, threadID), goerr.V(model.StepSeqKey, latest.StepSeq))
	}
	return latest, conv, nil
}

// Thread returns the latest checkpoint of the thread
func (o *Orchestrator) Thread(ctx context.Context, threadID model.ThreadID) (*model.Checkpoint, error) {
	cp, err := o.store.Latest(ctx, threadID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get latest checkpoint", goerr.V(model.ThreadIDKey, threadID))
	}
	if cp == nil {
		return nil, goerr.Wrap(model.ErrThreadNotFound, "thread has no checkpoint", goerr.V(model.ThreadIDKey, threadID))
	}
	return cp, nil
}

// End tears the thread down: checkpoints, budget and any cached reasoning session.
// A running thread cannot be ended.
func (o *Orchestrator) End(ctx context.Context, threadID model.ThreadID) error {
	_, release, err := o.acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()

	if err := o.store.Delete(ctx, threadID); err != nil {
		return goerr.Wrap(err, "failed to delete checkpoints", goerr.V(model.ThreadIDKey, threadID))
	}
	o.guard.Reset(threadID)
	if f, ok := o.reasoner.(Forgetter); ok {
		f.Forget(threadID)
	}

	logging.From(ctx).Info("thread ended", "thread_id", threadID)
	return nil
}
