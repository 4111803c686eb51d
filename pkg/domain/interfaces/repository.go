package interfaces

import "context"

// Repository defines the interface for data persistence
type Repository interface {
	Chunk() ChunkRepository
	Checkpoint() CheckpointStore

	// Close releases the underlying storage
	Close(ctx context.Context) error
}
