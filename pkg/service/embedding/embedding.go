package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// Client embeds texts through a gollem LLM client
type Client struct {
	llm       gollem.LLMClient
	dimension int
}

// Option is a functional option for Client configuration
type Option func(*Client)

// WithDimension overrides model.EmbeddingDimension
func WithDimension(dim int) Option {
	return func(c *Client) {
		if dim > 0 {
			c.dimension = dim
		}
	}
}

// New creates an embedding client
func New(llm gollem.LLMClient, opts ...Option) (*Client, error) {
	if llm == nil {
		return nil, goerr.New("LLM client is required")
	}
	c := &Client{
		llm:       llm,
		dimension: model.EmbeddingDimension,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Embed returns one vector per text, in input order
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings, err := c.llm.GenerateEmbedding(ctx, c.dimension, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding", goerr.V("count", len(texts)))
	}
	if len(embeddings) != len(texts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("expected", len(texts)), goerr.V("actual", len(embeddings)))
	}

	result := make([][]float32, len(embeddings))
	for i, vec := range embeddings {
		if len(vec) == 0 {
			return nil, goerr.New("empty embedding returned", goerr.V("index", i))
		}
		result[i] = make([]float32, len(vec))
		for j, v := range vec {
			result[i][j] = float32(v)
		}
	}
	return result, nil
}
