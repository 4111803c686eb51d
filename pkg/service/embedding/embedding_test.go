package embedding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/service/embedding"
)

type mockLLMClient struct {
	generateEmbeddingFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (m *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return nil, nil
}

func (m *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return m.generateEmbeddingFn(ctx, dimension, input)
}

func TestEmbed(t *testing.T) {
	var gotDim int
	llm := &mockLLMClient{
		generateEmbeddingFn: func(_ context.Context, dimension int, input []string) ([][]float64, error) {
			gotDim = dimension
			out := make([][]float64, len(input))
			for i := range input {
				out[i] = []float64{float64(i), 0.5}
			}
			return out, nil
		},
	}

	c, err := embedding.New(llm, embedding.WithDimension(2))
	gt.NoError(t, err).Required()

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	gt.NoError(t, err).Required()
	gt.Value(t, gotDim).Equal(2)
	gt.Value(t, vecs).Equal([][]float32{{0, 0.5}, {1, 0.5}})
}

func TestEmbed_Errors(t *testing.T) {
	t.Run("nil client", func(t *testing.T) {
		_, err := embedding.New(nil)
		gt.Error(t, err)
	})

	t.Run("upstream failure", func(t *testing.T) {
		boom := errors.New("boom")
		c, err := embedding.New(&mockLLMClient{
			generateEmbeddingFn: func(context.Context, int, []string) ([][]float64, error) { return nil, boom },
		})
		gt.NoError(t, err).Required()
		_, err = c.Embed(context.Background(), []string{"a"})
		gt.Error(t, err).Is(boom)
	})

	t.Run("count mismatch", func(t *testing.T) {
		c, err := embedding.New(&mockLLMClient{
			generateEmbeddingFn: func(context.Context, int, []string) ([][]float64, error) {
				return [][]float64{{1}}, nil
			},
		})
		gt.NoError(t, err).Required()
		_, err = c.Embed(context.Background(), []string{"a", "b"})
		gt.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		c, err := embedding.New(&mockLLMClient{})
		gt.NoError(t, err).Required()
		vecs, err := c.Embed(context.Background(), nil)
		gt.NoError(t, err)
		gt.Value(t, len(vecs)).Equal(0)
	})
}
