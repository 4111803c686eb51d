package memory

import (
	"context"

	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	chunk      *chunkRepository
	checkpoint *checkpointStore
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		chunk:      newChunkRepository(),
		checkpoint: newCheckpointStore(),
	}
}

func (m *Memory) Chunk() interfaces.ChunkRepository {
	return m.chunk
}

func (m *Memory) Checkpoint() interfaces.CheckpointStore {
	return m.checkpoint
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}
