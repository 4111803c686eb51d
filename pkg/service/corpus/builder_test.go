package corpus_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/repository/memory"
	"github.com/secmon-lab/reviewsage/pkg/service/corpus"
)

func sampleRecords() []*model.Record {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []*model.Record{
		{ID: "ovh_0", Group: "ovh", Rating: 5, Timestamp: ts, Title: "Cheap and fast",
			Body: "The price is great. Support replied within 2.5 hours. Ok."},
		{ID: "ovh_1", Group: "ovh", Rating: 2, Timestamp: ts,
			Body: "Billing was confusing."},
	}
}

// fakeEmbedder returns a deterministic vector derived from the text length
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func TestBuilder_Build(t *testing.T) {
	b, err := corpus.New(nil, nil)
	gt.NoError(t, err).Required()

	chunks, err := b.Build(sampleRecords())
	gt.NoError(t, err).Required()

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	// "Ok." is too short to index; the following indices are not renumbered
	gt.Value(t, ids).Equal([]string{"ovh_0", "ovh_0_s0", "ovh_0_s1", "ovh_1", "ovh_1_s0"})

	coarse := chunks[0]
	gt.Value(t, coarse.Level).Equal(types.ChunkLevelCoarse)
	gt.Value(t, coarse.ParentID).Equal("ovh_0")
	gt.Value(t, coarse.Position).Nil()
	gt.Value(t, coarse.Text).Equal("Cheap and fast\n\nThe price is great. Support replied within 2.5 hours. Ok.")

	fine := chunks[2]
	gt.Value(t, fine.Level).Equal(types.ChunkLevelFine)
	gt.Value(t, fine.ParentID).Equal("ovh_0")
	gt.Value(t, *fine.Position).Equal(1)
	gt.Value(t, fine.Text).Equal("Support replied within 2.5 hours.")
	gt.Value(t, fine.Rating).Equal(5)

	// Coarse text is the body alone without a title
	gt.Value(t, chunks[3].Text).Equal("Billing was confusing.")
}

func TestBuilder_BuildIsByteIdentical(t *testing.T) {
	b, err := corpus.New(nil, nil)
	gt.NoError(t, err).Required()

	first, err := b.Build(sampleRecords())
	gt.NoError(t, err).Required()
	second, err := b.Build(sampleRecords())
	gt.NoError(t, err).Required()

	a, err := json.Marshal(first)
	gt.NoError(t, err).Required()
	c, err := json.Marshal(second)
	gt.NoError(t, err).Required()
	gt.Value(t, string(a)).Equal(string(c))
}

func TestBuilder_BuildErrors(t *testing.T) {
	b, err := corpus.New(nil, nil)
	gt.NoError(t, err).Required()

	t.Run("missing rating", func(t *testing.T) {
		records := sampleRecords()
		records[1].Rating = 0
		_, err := b.Build(records)
		gt.Error(t, err).Is(model.ErrMalformedRecord)
	})

	t.Run("missing body", func(t *testing.T) {
		records := sampleRecords()
		records[0].Body = ""
		_, err := b.Build(records)
		gt.Error(t, err).Is(model.ErrMalformedRecord)
	})

	t.Run("duplicate record", func(t *testing.T) {
		records := append(sampleRecords(), sampleRecords()[1])
		_, err := b.Build(records)
		gt.Error(t, err).Is(model.ErrDuplicateChunk)
	})
}

func TestBuilder_Ingest(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	embedder := &fakeEmbedder{}

	b, err := corpus.New(embedder, repo.Chunk(), corpus.WithBatchSize(2))
	gt.NoError(t, err).Required()

	report, err := b.Ingest(ctx, sampleRecords())
	gt.NoError(t, err).Required()
	gt.Value(t, *report).Equal(corpus.IngestReport{Records: 2, Coarse: 2, Fine: 3})
	gt.Value(t, embedder.calls).Equal(3)

	// Ingesting again upserts by id
	_, err = b.Ingest(ctx, sampleRecords())
	gt.NoError(t, err).Required()

	fine, err := repo.Chunk().Count(ctx, types.ChunkLevelFine)
	gt.NoError(t, err).Required()
	gt.Value(t, fine).Equal(3)

	stored, err := repo.Chunk().Get(ctx, "ovh_0_s1")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Embedding).Equal([]float32{float32(len("Support replied within 2.5 hours.")), 1})

	groups, err := repo.Chunk().Groups(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, groups).Equal([]model.GroupStat{{Group: "ovh", Records: 2}})
}

func TestBuilder_IngestRejectsMalformedBeforeWriting(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	b, err := corpus.New(&fakeEmbedder{}, repo.Chunk())
	gt.NoError(t, err).Required()

	records := sampleRecords()
	records[1].Body = strings.Repeat(" ", 3)
	_, err = b.Ingest(ctx, records)
	gt.Error(t, err).Is(model.ErrMalformedRecord)

	n, err := repo.Chunk().Count(ctx, types.ChunkLevelCoarse)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(0)
}
