package retrieval

import (
	"context"
	"errors"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
	"github.com/secmon-lab/reviewsage/pkg/utils/retry"
)

// Defaults for a query that does not set them
const (
	DefaultTopK   = 12
	DefaultFetchK = 30
	DefaultLambda = 0.5
)

// Query is one retrieval request
type Query struct {
	Text   string
	Group  types.GroupTag // empty searches every group
	Level  types.ChunkLevel
	TopK   int
	FetchK int
	Lambda float64
}

// NewQuery returns a query for text with the default parameters
func NewQuery(text string) Query {
	return Query{
		Text:   text,
		Level:  types.ChunkLevelFine,
		TopK:   DefaultTopK,
		FetchK: DefaultFetchK,
		Lambda: DefaultLambda,
	}
}

// Validate checks the query parameters
func (q Query) Validate() error {
	if q.Text == "" {
		return goerr.Wrap(model.ErrValidation, "query text is required")
	}
	if err := q.Level.Validate(); err != nil {
		return goerr.Wrap(model.ErrValidation, "invalid level", goerr.V("level", q.Level))
	}
	if q.TopK <= 0 {
		return goerr.Wrap(model.ErrValidation, "top_k must be positive", goerr.V("top_k", q.TopK))
	}
	if q.FetchK < q.TopK {
		return goerr.Wrap(model.ErrValidation, "fetch_k must not be less than top_k",
			goerr.V("top_k", q.TopK), goerr.V("fetch_k", q.FetchK))
	}
	if q.Lambda < 0 || q.Lambda > 1 {
		return goerr.Wrap(model.ErrValidation, "lambda must be within [0, 1]", goerr.V("lambda", q.Lambda))
	}
	return nil
}

// Engine selects a small, diverse, intent-biased set of snippets
type Engine struct {
	chunks   interfaces.ChunkRepository
	embedder interfaces.Embedder
	retry    retry.Policy
}

// Option is a functional option for Engine configuration
type Option func(*Engine)

// WithRetryPolicy overrides the backoff used for embedding and index calls
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) {
		e.retry = p
	}
}

// New creates an Engine over the chunk repository, which also serves as the evidence index
func New(chunks interfaces.ChunkRepository, embedder interfaces.Embedder, opts ...Option) *Engine {
	e := &Engine{
		chunks:   chunks,
		embedder: embedder,
		retry:    retry.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Groups returns the registered groups
func (e *Engine) Groups(ctx context.Context) ([]model.GroupStat, error) {
	var groups []model.GroupStat
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		groups, err = e.chunks.Groups(ctx)
		return err
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to list groups")
	}
	return groups, nil
}

// Retrieve returns up to TopK snippets ranked by MMR
func (e *Engine) Retrieve(ctx context.Context, q Query) ([]*model.Snippet, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	count, err := e.count(ctx, q.Level)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, goerr.Wrap(model.ErrEmptyIndex, "no chunks indexed", goerr.V("level", q.Level))
	}

	if q.Group != "" {
		groups, err := e.Groups(ctx)
		if err != nil {
			return nil, err
		}
		if !slices.ContainsFunc(groups, func(g model.GroupStat) bool { return g.Group == q.Group }) {
			return nil, goerr.Wrap(model.ErrUnknownGroup, "group is not registered", goerr.V("group", q.Group))
		}
	}

	intent := ClassifyIntent(q.Text)

	var vec []float32
	if err := e.call(ctx, func(ctx context.Context) error {
		vectors, err := e.embedder.Embed(ctx, []string{q.Text})
		if err != nil {
			return err
		}
		if len(vectors) != 1 {
			return goerr.New("unexpected number of query embeddings", goerr.V("count", len(vectors)))
		}
		vec = vectors[0]
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	var hits []model.IndexHit
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		hits, err = e.chunks.Nearest(ctx, vec, q.FetchK, model.IndexFilter{Level: q.Level, Group: q.Group})
		return err
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to search index")
	}

	ids := make([]string, len(hits))
	sims := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
		sims[h.ChunkID] = h.Similarity
	}

	var chunks []*model.Chunk
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		chunks, err = e.chunks.GetMany(ctx, ids)
		return err
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to load candidates")
	}

	selected := selectMMR(newCandidates(chunks, sims, intent), q.TopK, q.Lambda)

	snippets := make([]*model.Snippet, len(selected))
	parents := make(map[string]struct{})
	for i, c := range selected {
		snippets[i] = &model.Snippet{Chunk: c.chunk, Similarity: c.similarity, Rank: i + 1}
		parents[c.chunk.ParentID] = struct{}{}
	}

	logging.From(ctx).Debug("retrieved snippets",
		"intent", intent,
		"candidates", len(chunks),
		"selected", len(snippets),
		"parents", len(parents),
		"group", q.Group,
		"level", q.Level,
	)

	return snippets, nil
}

func (e *Engine) count(ctx context.Context, level types.ChunkLevel) (int, error) {
	var count int
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		count, err = e.chunks.Count(ctx, level)
		return err
	}); err != nil {
		return 0, goerr.Wrap(err, "failed to count chunks")
	}
	return count, nil
}

// call retries fn with backoff and marks exhausted failures as capability errors.
// The result stays marked as exhausted so callers do not retry it again.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, e.retry, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return goerr.Wrap(retry.Exhausted(model.ErrCapability), "evidence capability failed", goerr.V("cause", err.Error()))
}
