package interfaces

import (
	"context"

	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// Reasoner decides the next tool calls or produces a final answer from the full history
type Reasoner interface {
	Reason(ctx context.Context, req *model.ReasoningRequest) (*model.Reasoning, error)
}

// Embedder converts texts into embedding vectors of model.EmbeddingDimension
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
