package interfaces

import (
	"context"

	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

// EvidenceIndex is nearest-neighbour similarity search over chunk vectors
type EvidenceIndex interface {
	// Nearest returns up to k chunk ids ordered by descending cosine similarity.
	// Chunks without an embedding are never returned.
	Nearest(ctx context.Context, vector []float32, k int, filter model.IndexFilter) ([]model.IndexHit, error)

	// Count returns the number of chunks at the level
	Count(ctx context.Context, level types.ChunkLevel) (int, error)

	// Groups returns the registered group tags with their record counts, ordered by tag
	Groups(ctx context.Context) ([]model.GroupStat, error)
}

// ChunkRepository defines the interface for Chunk persistence.
// It serves as the EvidenceIndex of the same corpus.
type ChunkRepository interface {
	EvidenceIndex

	// Upsert stores chunks by id. Existing chunks with the same id are replaced.
	Upsert(ctx context.Context, chunks []*model.Chunk) error

	// Get retrieves a chunk by id. Returns nil without error if not found.
	Get(ctx context.Context, id string) (*model.Chunk, error)

	// GetMany retrieves chunks by id in the order of ids, skipping unknown ids
	GetMany(ctx context.Context, ids []string) ([]*model.Chunk, error)

	// List retrieves all chunks of a record, coarse first then by position
	List(ctx context.Context, parentID string) ([]*model.Chunk, error)
}
