package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

func intPtr(v int) *int { return &v }

func testChunks() []*model.Chunk {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*model.Chunk{
		{ID: "ovh_1", Level: types.ChunkLevelCoarse, Text: "Cheap\n\nGreat pricing.", ParentID: "ovh_1",
			Rating: 5, Group: "ovh", Timestamp: ts, Title: "Cheap", Author: "alice", Embedding: []float32{1, 0, 0}},
		{ID: "ovh_1_s0", Level: types.ChunkLevelFine, Text: "Great pricing.", ParentID: "ovh_1", Position: intPtr(0),
			Rating: 5, Group: "ovh", Timestamp: ts, Title: "Cheap", Author: "alice", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "ovh_2", Level: types.ChunkLevelCoarse, Text: "Support was slow.", ParentID: "ovh_2",
			Rating: 2, Group: "ovh", Timestamp: ts, Embedding: []float32{0, 1, 0}},
		{ID: "ovh_2_s0", Level: types.ChunkLevelFine, Text: "Support was slow.", ParentID: "ovh_2", Position: intPtr(0),
			Rating: 2, Group: "ovh", Timestamp: ts, Embedding: []float32{0, 1, 0}},
		{ID: "hetzner_1", Level: types.ChunkLevelCoarse, Text: "Fast servers.", ParentID: "hetzner_1",
			Rating: 4, Group: "hetzner", Timestamp: ts, Embedding: []float32{0, 0, 1}},
		{ID: "hetzner_1_s0", Level: types.ChunkLevelFine, Text: "Fast servers.", ParentID: "hetzner_1", Position: intPtr(0),
			Rating: 4, Group: "hetzner", Timestamp: ts, Embedding: []float32{0.7, 0, 0.7}},
	}
}

func runChunkRepositoryTest(t *testing.T, newRepo repoFactory) {
	t.Run("Upsert then Get round trips every field", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()

		got, err := repo.Chunk().Get(ctx, "ovh_1_s0")
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Value(t, got).Equal(testChunks()[1])

		coarse, err := repo.Chunk().Get(ctx, "ovh_1")
		gt.NoError(t, err).Required()
		gt.Value(t, coarse.Position).Nil()
	})

	t.Run("Get returns nil for unknown id", func(t *testing.T) {
		repo := newRepo(t)
		got, err := repo.Chunk().Get(context.Background(), "missing")
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})

	t.Run("Upsert is idempotent by id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()
		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()

		coarse, err := repo.Chunk().Count(ctx, types.ChunkLevelCoarse)
		gt.NoError(t, err).Required()
		gt.Value(t, coarse).Equal(3)

		fine, err := repo.Chunk().Count(ctx, types.ChunkLevelFine)
		gt.NoError(t, err).Required()
		gt.Value(t, fine).Equal(3)
	})

	t.Run("GetMany keeps requested order and skips unknown ids", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()

		got, err := repo.Chunk().GetMany(ctx, []string{"hetzner_1", "missing", "ovh_2_s0"})
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(2).Required()
		gt.Value(t, got[0].ID).Equal("hetzner_1")
		gt.Value(t, got[1].ID).Equal("ovh_2_s0")
		gt.Array(t, got[1].Embedding).Length(3)
	})

	t.Run("List returns coarse chunk first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()

		got, err := repo.Chunk().List(ctx, "ovh_1")
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(2).Required()
		gt.Value(t, got[0].ID).Equal("ovh_1")
		gt.Value(t, got[1].ID).Equal("ovh_1_s0")
	})

	t.Run("Nearest filters by level and group", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()

		hits, err := repo.Chunk().Nearest(ctx, []float32{1, 0, 0}, 10, model.IndexFilter{Level: types.ChunkLevelFine})
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(3).Required()
		gt.Value(t, hits[0].ChunkID).Equal("ovh_1_s0")
		gt.Value(t, hits[1].ChunkID).Equal("hetzner_1_s0")
		gt.Value(t, hits[2].ChunkID).Equal("ovh_2_s0")
		gt.Bool(t, hits[0].Similarity > hits[1].Similarity).True()

		hits, err = repo.Chunk().Nearest(ctx, []float32{1, 0, 0}, 10, model.IndexFilter{Level: types.ChunkLevelFine, Group: "hetzner"})
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1).Required()
		gt.Value(t, hits[0].ChunkID).Equal("hetzner_1_s0")
	})

	t.Run("Nearest honors k", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()

		hits, err := repo.Chunk().Nearest(ctx, []float32{0, 1, 0}, 1, model.IndexFilter{Level: types.ChunkLevelCoarse})
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1).Required()
		gt.Value(t, hits[0].ChunkID).Equal("ovh_2")
	})

	t.Run("Groups counts records per group", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		empty, err := repo.Chunk().Groups(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, empty).Length(0)

		gt.NoError(t, repo.Chunk().Upsert(ctx, testChunks())).Required()
		groups, err := repo.Chunk().Groups(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, groups).Equal([]model.GroupStat{
			{Group: "hetzner", Records: 1},
			{Group: "ovh", Records: 2},
		})
	})
}

func TestChunkRepository(t *testing.T) {
	runAll(t, runChunkRepositoryTest)
}
