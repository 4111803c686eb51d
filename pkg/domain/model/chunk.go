package model

import (
	"fmt"
	"time"

	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

// EmbeddingDimension is the dimension of chunk and query embedding vectors
const EmbeddingDimension = 768

// Chunk is an indexed unit of text derived from a Record.
// Coarse chunks cover the whole record and are their own parent;
// fine chunks are single sentences whose ParentID is the coarse chunk id.
type Chunk struct {
	ID        string           `json:"id"`
	Level     types.ChunkLevel `json:"level"`
	Text      string           `json:"text"`
	ParentID  string           `json:"parent_id"`
	Position  *int             `json:"position,omitempty"`
	Rating    int              `json:"rating"`
	Group     types.GroupTag   `json:"group"`
	Timestamp time.Time        `json:"timestamp"`
	Title     string           `json:"title,omitempty"`
	Author    string           `json:"author,omitempty"`
	Embedding []float32        `json:"embedding,omitempty"`
}

// FineChunkID returns the deterministic id of the index-th sentence of a record
func FineChunkID(recordID string, index int) string {
	return fmt.Sprintf("%s_s%d", recordID, index)
}

// Copy returns a deep copy of the chunk
func (c *Chunk) Copy() *Chunk {
	copied := *c
	if c.Position != nil {
		pos := *c.Position
		copied.Position = &pos
	}
	if c.Embedding != nil {
		copied.Embedding = make([]float32, len(c.Embedding))
		copy(copied.Embedding, c.Embedding)
	}
	return &copied
}

// IndexFilter restricts a nearest-neighbour query
type IndexFilter struct {
	Level types.ChunkLevel
	Group types.GroupTag // empty means all groups
}

// Match reports whether the chunk passes the filter
func (f IndexFilter) Match(c *Chunk) bool {
	if f.Level != "" && c.Level != f.Level {
		return false
	}
	if f.Group != "" && c.Group != f.Group {
		return false
	}
	return true
}

// IndexHit is a single nearest-neighbour result
type IndexHit struct {
	ChunkID    string
	Similarity float64
}

// Snippet is a chunk returned by retrieval with its query similarity and final rank.
// Snippets are never persisted.
type Snippet struct {
	Chunk      *Chunk
	Similarity float64
	Rank       int
}
