package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// checkpointStore keeps one log per thread, each guarded by its own mutex
type checkpointStore struct {
	mu      sync.Mutex
	threads map[model.ThreadID]*checkpointLog
}

type checkpointLog struct {
	mu      sync.RWMutex
	entries []*model.Checkpoint
}

func newCheckpointStore() *checkpointStore {
	return &checkpointStore{
		threads: make(map[model.ThreadID]*checkpointLog),
	}
}

func (s *checkpointStore) log(threadID model.ThreadID, create bool) *checkpointLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.threads[threadID]
	if !exists && create {
		l = &checkpointLog{}
		s.threads[threadID] = l
	}
	return l
}

func (s *checkpointStore) Append(ctx context.Context, cp *model.Checkpoint) error {
	if cp == nil {
		return goerr.New("checkpoint is nil")
	}

	l := s.log(cp.ThreadID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	expected := int64(len(l.entries)) + 1
	if cp.StepSeq != expected {
		return goerr.Wrap(model.ErrCheckpointConflict, "unexpected step sequence",
			goerr.V(model.ThreadIDKey, cp.ThreadID),
			goerr.V(model.StepSeqKey, cp.StepSeq),
			goerr.V("expected", expected))
	}

	l.entries = append(l.entries, cp.Copy())
	return nil
}

func (s *checkpointStore) Latest(ctx context.Context, threadID model.ThreadID) (*model.Checkpoint, error) {
	l := s.log(threadID, false)
	if l == nil {
		return nil, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return nil, nil
	}
	return l.entries[len(l.entries)-1].Copy(), nil
}

func (s *checkpointStore) List(ctx context.Context, threadID model.ThreadID) ([]*model.Checkpoint, error) {
	l := s.log(threadID, false)
	if l == nil {
		return []*model.Checkpoint{}, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*model.Checkpoint, len(l.entries))
	for i, cp := range l.entries {
		result[i] = cp.Copy()
	}
	return result, nil
}

func (s *checkpointStore) Delete(ctx context.Context, threadID model.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	return nil
}
