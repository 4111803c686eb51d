package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/repository/memory"
	"github.com/secmon-lab/reviewsage/pkg/service/corpus"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
)

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

const reviewsCSV = `name,country,date,review_header,review_score,review_body
Alice,FR,2024-05-01,Solid,5,The servers are fast. Support answered quickly.
Bob,DE,2024-05-02,Meh,,No score on this one.
Carol,US,2024-05-03,Bad,1,Billing was a mess.
`

func writeCSV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	gt.NoError(t, os.WriteFile(path, []byte(reviewsCSV), 0o600)).Required()
	return path
}

func TestIngestUseCase_Ingest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeCSV(t, dir, "OVH Cloud.csv")

	t.Run("malformed records fail the ingest", func(t *testing.T) {
		repo := memory.New().Chunk()
		builder, err := corpus.New(lengthEmbedder{}, repo)
		gt.NoError(t, err).Required()

		_, err = usecase.NewIngestUseCase(builder).Ingest(ctx, path, false)
		gt.Error(t, err).Is(model.ErrMalformedRecord)

		n, err := repo.Count(ctx, types.ChunkLevelCoarse)
		gt.NoError(t, err).Required()
		gt.Value(t, n).Equal(0)
	})

	t.Run("malformed records are skipped", func(t *testing.T) {
		repo := memory.New().Chunk()
		builder, err := corpus.New(lengthEmbedder{}, repo)
		gt.NoError(t, err).Required()

		report, err := usecase.NewIngestUseCase(builder).Ingest(ctx, path, true)
		gt.NoError(t, err).Required()
		gt.Value(t, report.Records).Equal(2)
		gt.Value(t, report.Coarse).Equal(2)

		got, err := repo.Get(ctx, "ovh_cloud_0")
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		missing, err := repo.Get(ctx, "ovh_cloud_1")
		gt.NoError(t, err).Required()
		gt.Value(t, missing).Nil()
	})

	t.Run("directory of files", func(t *testing.T) {
		sub := filepath.Join(dir, "many")
		gt.NoError(t, os.Mkdir(sub, 0o700)).Required()
		writeCSV(t, sub, "ovh.csv")
		writeCSV(t, sub, "hetzner.csv")

		repo := memory.New().Chunk()
		builder, err := corpus.New(lengthEmbedder{}, repo)
		gt.NoError(t, err).Required()

		report, err := usecase.NewIngestUseCase(builder).Ingest(ctx, sub, true)
		gt.NoError(t, err).Required()
		gt.Value(t, report.Records).Equal(4)

		groups, err := repo.Groups(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, groups).Length(2)
	})

	t.Run("missing source", func(t *testing.T) {
		builder, err := corpus.New(lengthEmbedder{}, memory.New().Chunk())
		gt.NoError(t, err).Required()
		_, err = usecase.NewIngestUseCase(builder).Ingest(ctx, filepath.Join(dir, "nope.csv"), true)
		gt.Error(t, err)
	})
}
