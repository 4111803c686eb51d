package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool/core"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

// SimpleAnswer is the outcome of a single retrieve-then-answer call
type SimpleAnswer struct {
	Answer   string           `json:"answer"`
	Snippets []*model.Snippet `json:"-"`
}

// AnswerUseCase answers a question in one LLM call over retrieved evidence,
// without tools, checkpoints or a thread
type AnswerUseCase struct {
	retriever core.Retriever
	llm       gollem.LLMClient
}

// NewAnswerUseCase creates an AnswerUseCase
func NewAnswerUseCase(retriever core.Retriever, llm gollem.LLMClient) *AnswerUseCase {
	return &AnswerUseCase{retriever: retriever, llm: llm}
}

// Simple retrieves snippets for q and answers from them
func (uc *AnswerUseCase) Simple(ctx context.Context, q retrieval.Query) (*SimpleAnswer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, goerr.Wrap(ErrEmptyQuestion, "question is required")
	}

	snippets, err := uc.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve reviews", goerr.V("question", q.Text))
	}

	systemPrompt, err := buildRAGSystemPrompt(retrieval.Format(snippets))
	if err != nil {
		return nil, err
	}

	session, err := uc.llm.NewSession(ctx, gollem.WithSessionSystemPrompt(systemPrompt))
	if err != nil {
		return nil, goerr.Wrap(model.ErrCapability, "failed to create LLM session", goerr.V("cause", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text("Question: "+q.Text))
	if err != nil {
		return nil, goerr.Wrap(model.ErrCapability, "failed to generate answer", goerr.V("cause", err.Error()))
	}

	answer := ""
	if resp != nil {
		answer = strings.TrimSpace(strings.Join(resp.Texts, "\n"))
	}

	logging.From(ctx).Info("simple answer generated", "snippets", len(snippets))
	return &SimpleAnswer{Answer: answer, Snippets: snippets}, nil
}
