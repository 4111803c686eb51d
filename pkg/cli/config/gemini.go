package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/service/embedding"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// maxEmbeddingDimension is the largest output dimension of the Gemini embedding models
const maxEmbeddingDimension = 3072

// Gemini holds configuration for the Gemini LLM client used for reasoning,
// analysis and embeddings. Ingest and retrieval must run with the same
// embedding dimension.
type Gemini struct {
	projectID          string
	location           string
	embeddingDimension int
}

// Flags returns CLI flags for Gemini configuration
func (g *Gemini) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "LLM",
			Sources:     cli.EnvVars("REVIEWSAGE_GEMINI_PROJECT"),
			Destination: &g.projectID,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "LLM",
			Value:       "us-central1",
			Sources:     cli.EnvVars("REVIEWSAGE_GEMINI_LOCATION"),
			Destination: &g.location,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Output dimension of review and query embeddings",
			Category:    "LLM",
			Value:       model.EmbeddingDimension,
			Sources:     cli.EnvVars("REVIEWSAGE_EMBEDDING_DIMENSION"),
			Destination: &g.embeddingDimension,
		},
	}
}

// LogAttrs returns log attributes for the Gemini configuration
func (g *Gemini) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("project_id", g.projectID),
		slog.String("location", g.location),
		slog.Int("embedding_dimension", g.embeddingDimension),
	}
}

// UseCaseOptions returns the use case options derived from the LLM settings
func (g *Gemini) UseCaseOptions() []usecase.Option {
	return []usecase.Option{
		usecase.WithEmbeddingOptions(embedding.WithDimension(g.embeddingDimension)),
	}
}

// Configure creates a new Gemini LLM client from the configured flags.
// Every command except groups needs the client, so a missing project is an error.
func (g *Gemini) Configure(ctx context.Context) (gollem.LLMClient, error) {
	if g.projectID == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "--gemini-project is required")
	}
	if g.embeddingDimension < 1 || g.embeddingDimension > maxEmbeddingDimension {
		return nil, goerr.Wrap(ErrInvalidConfig, "embedding dimension is out of range",
			goerr.V("embedding_dimension", g.embeddingDimension), goerr.V("max", maxEmbeddingDimension))
	}

	client, err := gemini.New(ctx, g.projectID, g.location)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}

	return client, nil
}
