package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/agent/reasoner"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool/core"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/analysis"
	"github.com/secmon-lab/reviewsage/pkg/service/budget"
	"github.com/secmon-lab/reviewsage/pkg/service/corpus"
	"github.com/secmon-lab/reviewsage/pkg/service/embedding"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

// UseCases wires the services behind every outer surface
type UseCases struct {
	Retrieval *retrieval.Engine
	Agent     *Orchestrator
	Answer    *AnswerUseCase
	Ingest    *IngestUseCase

	budgetCap   int64
	onWarning   func(model.TokenUsage)
	batchSize   int
	orchOptions []OrchestratorOption
	maxSteps    int
	groupNames  map[types.GroupTag]string
	warnRatio   float64
	retrieval   []retrieval.Option
	embedding   []embedding.Option
}

type Option func(*UseCases)

// WithBudgetCap sets the per-thread token cap
func WithBudgetCap(limit int64) Option {
	return func(uc *UseCases) {
		uc.budgetCap = limit
	}
}

// WithBudgetWarning registers the handler of the 90% budget signal
func WithBudgetWarning(fn func(model.TokenUsage)) Option {
	return func(uc *UseCases) {
		uc.onWarning = fn
	}
}

// WithBudgetWarningRatio sets the share of the cap that raises the warning
func WithBudgetWarningRatio(ratio float64) Option {
	return func(uc *UseCases) {
		uc.warnRatio = ratio
	}
}

// WithGroupNames sets display names of groups shown to the reasoner
func WithGroupNames(names map[types.GroupTag]string) Option {
	return func(uc *UseCases) {
		uc.groupNames = names
	}
}

// WithRetrievalOptions forwards options to the retrieval engine
func WithRetrievalOptions(opts ...retrieval.Option) Option {
	return func(uc *UseCases) {
		uc.retrieval = append(uc.retrieval, opts...)
	}
}

// WithEmbeddingOptions forwards options to the embedding client shared by ingest and retrieval
func WithEmbeddingOptions(opts ...embedding.Option) Option {
	return func(uc *UseCases) {
		uc.embedding = append(uc.embedding, opts...)
	}
}

// WithBatchSize sets the ingest embedding batch size
func WithBatchSize(n int) Option {
	return func(uc *UseCases) {
		uc.batchSize = n
	}
}

// WithOrchestratorOptions forwards options to the orchestrator
func WithOrchestratorOptions(opts ...OrchestratorOption) Option {
	return func(uc *UseCases) {
		uc.orchOptions = append(uc.orchOptions, opts...)
	}
}

// WithAgentMaxSteps sets the step ceiling, also rendered into the system prompt
func WithAgentMaxSteps(n int) Option {
	return func(uc *UseCases) {
		uc.maxSteps = n
	}
}

// New builds the use cases on top of a repository and an LLM client
func New(ctx context.Context, repo interfaces.Repository, llm gollem.LLMClient, opts ...Option) (*UseCases, error) {
	uc := &UseCases{
		budgetCap: budget.DefaultCap,
		batchSize: corpus.DefaultBatchSize,
		maxSteps:  DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(uc)
	}

	embedder, err := embedding.New(llm, uc.embedding...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding client")
	}
	uc.Retrieval = retrieval.New(repo.Chunk(), embedder, uc.retrieval...)

	builder, err := corpus.New(embedder, repo.Chunk(), corpus.WithBatchSize(uc.batchSize))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create corpus builder")
	}
	uc.Ingest = NewIngestUseCase(builder)
	uc.Answer = NewAnswerUseCase(uc.Retrieval, llm)

	analyzer, err := analysis.New(llm)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create analysis service")
	}
	registry, err := tool.NewRegistry(core.New(uc.Retrieval, analyzer)...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build tool registry")
	}

	r, err := reasoner.New(llm)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create reasoner")
	}

	var guardOpts []budget.Option
	if uc.warnRatio > 0 {
		guardOpts = append(guardOpts, budget.WithWarningRatio(uc.warnRatio))
	}
	if uc.onWarning != nil {
		guardOpts = append(guardOpts, budget.WithWarningHandler(uc.onWarning))
	}
	guard := budget.New(uc.budgetCap, guardOpts...)

	// the group list may be empty before the first ingest
	groups, err := uc.Retrieval.Groups(ctx)
	if err != nil {
		logging.From(ctx).Warn("failed to list groups for the system prompt", "error", err.Error())
	}
	prompt, err := BuildAgentSystemPrompt(groups, uc.groupNames, uc.maxSteps)
	if err != nil {
		return nil, err
	}

	orchOpts := append([]OrchestratorOption{WithSystemPrompt(prompt), WithMaxSteps(uc.maxSteps)}, uc.orchOptions...)
	uc.Agent = NewOrchestrator(repo.Checkpoint(), r, registry, guard, orchOpts...)

	return uc, nil
}
