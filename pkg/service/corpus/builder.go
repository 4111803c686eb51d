package corpus

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of chunks embedded and stored per batch
const DefaultBatchSize = 1000

// Builder turns records into the two-tier chunk set and stores it
type Builder struct {
	segmenter   *Segmenter
	embedder    interfaces.Embedder
	repo        interfaces.ChunkRepository
	batchSize   int
	concurrency int
}

// Option is a functional option for Builder configuration
type Option func(*Builder)

// WithBatchSize sets the embedding batch size
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithConcurrency sets how many batches are embedded in parallel
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// New creates a Builder. embedder and repo are only required by Ingest.
func New(embedder interfaces.Embedder, repo interfaces.ChunkRepository, opts ...Option) (*Builder, error) {
	segmenter, err := NewSegmenter()
	if err != nil {
		return nil, err
	}

	b := &Builder{
		segmenter:   segmenter,
		embedder:    embedder,
		repo:        repo,
		batchSize:   DefaultBatchSize,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build derives chunks from records in deterministic order: for each record its
// coarse chunk, then its sentences by index. Chunks carry no embedding.
func (b *Builder) Build(records []*model.Record) ([]*model.Chunk, error) {
	seen := make(map[string]struct{})
	var chunks []*model.Chunk

	add := func(c *model.Chunk) error {
		if _, dup := seen[c.ID]; dup {
			return goerr.Wrap(model.ErrDuplicateChunk, "chunk id already built", goerr.V(model.ChunkIDKey, c.ID))
		}
		seen[c.ID] = struct{}{}
		chunks = append(chunks, c)
		return nil
	}

	for _, r := range records {
		if r == nil {
			return nil, goerr.Wrap(model.ErrMalformedRecord, "record is nil")
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}

		text := r.Body
		if r.Title != "" {
			text = r.Title + "\n\n" + r.Body
		}
		if err := add(&model.Chunk{
			ID:        r.ID,
			Level:     types.ChunkLevelCoarse,
			Text:      text,
			ParentID:  r.ID,
			Rating:    r.Rating,
			Group:     r.Group,
			Timestamp: r.Timestamp,
			Title:     r.Title,
			Author:    r.Author,
		}); err != nil {
			return nil, err
		}

		for i, sentence := range b.segmenter.Split(r.Body) {
			if !significant(sentence) {
				continue
			}
			pos := i
			if err := add(&model.Chunk{
				ID:        model.FineChunkID(r.ID, i),
				Level:     types.ChunkLevelFine,
				Text:      sentence,
				ParentID:  r.ID,
				Position:  &pos,
				Rating:    r.Rating,
				Group:     r.Group,
				Timestamp: r.Timestamp,
				Title:     r.Title,
				Author:    r.Author,
			}); err != nil {
				return nil, err
			}
		}
	}

	return chunks, nil
}

// IngestReport summarizes one Ingest call
type IngestReport struct {
	Records int
	Coarse  int
	Fine    int
}

// Ingest builds, embeds and upserts the chunks of records. Re-running with the
// same records replaces chunks by id and never duplicates them.
func (b *Builder) Ingest(ctx context.Context, records []*model.Record) (*IngestReport, error) {
	if b.embedder == nil || b.repo == nil {
		return nil, goerr.New("embedder and chunk repository are required for ingest")
	}

	chunks, err := b.Build(records)
	if err != nil {
		return nil, err
	}

	report := &IngestReport{Records: len(records)}
	for _, c := range chunks {
		if c.Level == types.ChunkLevelCoarse {
			report.Coarse++
		} else {
			report.Fine++
		}
	}

	logger := logging.From(ctx)
	batches := (len(chunks) + b.batchSize - 1) / b.batchSize
	logger.Info("ingesting chunks",
		"records", report.Records, "coarse", report.Coarse, "fine", report.Fine, "batches", batches)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)
	for start := 0; start < len(chunks); start += b.batchSize {
		batch := chunks[start:min(start+b.batchSize, len(chunks))]
		seq := start/b.batchSize + 1
		eg.Go(func() error {
			if err := b.embedBatch(ctx, batch); err != nil {
				return goerr.Wrap(err, "failed to embed batch", goerr.V("batch", seq))
			}
			if err := b.repo.Upsert(ctx, batch); err != nil {
				return goerr.Wrap(err, "failed to store batch", goerr.V("batch", seq))
			}
			logger.Debug("processed batch", "batch", seq, "total", batches)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return report, nil
}

func (b *Builder) embedBatch(ctx context.Context, batch []*model.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return goerr.New("embedding count mismatch", goerr.V("want", len(batch)), goerr.V("got", len(vectors)))
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}
	return nil
}
