package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

type chunkRepository struct {
	mu     sync.RWMutex
	chunks map[string]*model.Chunk
}

func newChunkRepository() *chunkRepository {
	return &chunkRepository{
		chunks: make(map[string]*model.Chunk),
	}
}

func (r *chunkRepository) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range chunks {
		r.chunks[c.ID] = c.Copy()
	}
	return nil
}

func (r *chunkRepository) Get(ctx context.Context, id string) (*model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.chunks[id]
	if !exists {
		return nil, nil
	}
	return c.Copy(), nil
}

func (r *chunkRepository) GetMany(ctx context.Context, ids []string) ([]*model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, exists := r.chunks[id]; exists {
			result = append(result, c.Copy())
		}
	}
	return result, nil
}

func (r *chunkRepository) List(ctx context.Context, parentID string) ([]*model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Chunk
	for _, c := range r.chunks {
		if c.ParentID == parentID {
			result = append(result, c.Copy())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return chunkOrder(result[i]) < chunkOrder(result[j])
	})
	return result, nil
}

// chunkOrder places the coarse chunk before its sentences
func chunkOrder(c *model.Chunk) int {
	if c.Position == nil {
		return -1
	}
	return *c.Position
}

func (r *chunkRepository) Nearest(ctx context.Context, vector []float32, k int, filter model.IndexFilter) ([]model.IndexHit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var hits []model.IndexHit
	for _, c := range r.chunks {
		if len(c.Embedding) == 0 || !filter.Match(c) {
			continue
		}
		hits = append(hits, model.IndexHit{
			ChunkID:    c.ID,
			Similarity: model.CosineSimilarity(vector, c.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (r *chunkRepository) Count(ctx context.Context, level types.ChunkLevel) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, c := range r.chunks {
		if c.Level == level {
			count++
		}
	}
	return count, nil
}

func (r *chunkRepository) Groups(ctx context.Context) ([]model.GroupStat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[types.GroupTag]int)
	for _, c := range r.chunks {
		if c.Level == types.ChunkLevelCoarse {
			counts[c.Group]++
		}
	}

	result := make([]model.GroupStat, 0, len(counts))
	for g, n := range counts {
		result = append(result, model.GroupStat{Group: g, Records: n})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Group < result[j].Group
	})
	return result, nil
}
