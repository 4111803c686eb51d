package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/analysis"
)

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	return s.generateContentFn(ctx, input...)
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, _ ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, _ ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return c.newSessionFn(ctx, options...)
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

// respondWith returns a client whose sessions answer every prompt with body and record the prompt
func respondWith(body string, prompts *[]string) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(context.Context, ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(_ context.Context, input ...gollem.Input) (*gollem.Response, error) {
					if prompts != nil {
						for _, in := range input {
							if text, ok := in.(gollem.Text); ok {
								*prompts = append(*prompts, string(text))
							}
						}
					}
					return &gollem.Response{Texts: []string{body}}, nil
				},
			}, nil
		},
	}
}

func snippet(id, parent string, rating int, text string) *model.Snippet {
	return &model.Snippet{
		Chunk: &model.Chunk{
			ID:       id,
			ParentID: parent,
			Level:    types.ChunkLevelFine,
			Rating:   rating,
			Group:    "ovh",
			Text:     text,
		},
	}
}

func TestSentiment(t *testing.T) {
	var prompts []string
	svc, err := analysis.New(respondWith(`{"positive_themes":["fast servers"],"negative_themes":["slow support"]}`, &prompts))
	gt.NoError(t, err).Required()

	snippets := []*model.Snippet{
		snippet("r1_s0", "r1", 5, "Servers are fast."),
		snippet("r1_s1", "r1", 5, "Great uptime."),
		snippet("r2_s0", "r2", 1, "Support is slow."),
		snippet("r3_s0", "r3", 4, "Fair pricing."),
		snippet("r4_s0", "r4", 3, "It works."),
	}

	got, err := svc.Sentiment(context.Background(), "how do customers feel?", snippets)
	gt.NoError(t, err).Required()

	gt.Value(t, got.TotalReviews).Equal(4)
	gt.Value(t, *got.MeanRating).Equal(3.25)
	gt.Value(t, *got.PositiveShare).Equal(50.0)
	gt.Value(t, *got.NegativeShare).Equal(25.0)
	gt.Value(t, got.PositiveThemes).Equal([]string{"fast servers"})
	gt.Value(t, got.NegativeThemes).Equal([]string{"slow support"})

	gt.Array(t, prompts).Length(1).Required()
	gt.String(t, prompts[0]).Contains("how do customers feel?")
	gt.String(t, prompts[0]).Contains("Support is slow.")
}

func TestSentiment_UnratedReviews(t *testing.T) {
	svc, err := analysis.New(respondWith(`{"positive_themes":[],"negative_themes":[]}`, nil))
	gt.NoError(t, err).Required()

	got, err := svc.Sentiment(context.Background(), "q", []*model.Snippet{snippet("r1", "r1", 0, "ok")})
	gt.NoError(t, err).Required()
	gt.Value(t, got.TotalReviews).Equal(1)
	gt.Value(t, got.MeanRating).Nil()
	gt.Value(t, got.PositiveThemes).Equal([]string{})
}

func TestAspects(t *testing.T) {
	body := `{"total_aspects":9,"aspects":[
		{"name":"support","frequency":3,"sentiment_score":-0.5,"negative_examples":["slow"]},
		{"name":"pricing","frequency":1}
	]}`
	svc, err := analysis.New(respondWith(body, nil))
	gt.NoError(t, err).Required()

	got, err := svc.Aspects(context.Background(), "what features?", []*model.Snippet{snippet("r1", "r1", 2, "slow support")})
	gt.NoError(t, err).Required()

	gt.Value(t, got.TotalAspects).Equal(2)
	gt.Array(t, got.Aspects).Length(2).Required()
	gt.Value(t, got.Aspects[0].Name).Equal("support")
	gt.Value(t, *got.Aspects[0].SentimentScore).Equal(-0.5)
	gt.Value(t, got.Aspects[0].NegativeExamples).Equal([]string{"slow"})
	gt.Value(t, got.Aspects[1].PositiveExamples).Equal([]string{})
	gt.Value(t, got.Aspects[1].SentimentScore).Nil()
}

func TestAspects_NoneFound(t *testing.T) {
	svc, err := analysis.New(respondWith(`{"total_aspects":0,"aspects":[]}`, nil))
	gt.NoError(t, err).Required()

	_, err = svc.Aspects(context.Background(), "q", []*model.Snippet{snippet("r1", "r1", 2, "meh")})
	gt.Error(t, err).Is(model.ErrNoEvidence)
}

func TestJTBD(t *testing.T) {
	body := `{"job":"host a website","situation":"small business","motivation":"cost","expected_outcome":"uptime","quotes":["cheap and reliable"]}`
	svc, err := analysis.New(respondWith(body, nil))
	gt.NoError(t, err).Required()

	snippets := []*model.Snippet{snippet("r1", "r1", 5, "cheap and reliable"), snippet("r2", "r2", 4, "good")}
	got, err := svc.JTBD(context.Background(), "why do they choose us?", snippets)
	gt.NoError(t, err).Required()

	gt.Value(t, got.Job).Equal("host a website")
	gt.Value(t, got.TotalReviews).Equal(2)
	gt.Value(t, got.Frustrations).Equal([]string{})
	gt.Value(t, got.Quotes).Equal([]string{"cheap and reliable"})
}

func TestAnalysis_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("nil client", func(t *testing.T) {
		_, err := analysis.New(nil)
		gt.Error(t, err)
	})

	t.Run("no snippets", func(t *testing.T) {
		svc, err := analysis.New(respondWith(`{}`, nil))
		gt.NoError(t, err).Required()

		_, err = svc.Sentiment(ctx, "q", nil)
		gt.Error(t, err).Is(model.ErrNoEvidence)
		_, err = svc.Aspects(ctx, "q", nil)
		gt.Error(t, err).Is(model.ErrNoEvidence)
		_, err = svc.JTBD(ctx, "q", nil)
		gt.Error(t, err).Is(model.ErrNoEvidence)
	})

	t.Run("LLM failure is a capability error", func(t *testing.T) {
		svc, err := analysis.New(&mockLLMClient{
			newSessionFn: func(context.Context, ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(context.Context, ...gollem.Input) (*gollem.Response, error) {
						return nil, errors.New("quota exceeded")
					},
				}, nil
			},
		})
		gt.NoError(t, err).Required()

		_, err = svc.JTBD(ctx, "q", []*model.Snippet{snippet("r1", "r1", 5, "x")})
		gt.Error(t, err).Is(model.ErrCapability)
	})

	t.Run("malformed LLM output is a capability error", func(t *testing.T) {
		svc, err := analysis.New(respondWith(`not json`, nil))
		gt.NoError(t, err).Required()

		_, err = svc.Aspects(ctx, "q", []*model.Snippet{snippet("r1", "r1", 5, "x")})
		gt.Error(t, err).Is(model.ErrCapability)
	})
}

func TestMaxReviews(t *testing.T) {
	var prompts []string
	svc, err := analysis.New(respondWith(`{"positive_themes":[],"negative_themes":[]}`, &prompts), analysis.WithMaxReviews(1))
	gt.NoError(t, err).Required()

	snippets := []*model.Snippet{snippet("r1", "r1", 5, "first review"), snippet("r2", "r2", 5, "second review")}
	_, err = svc.Sentiment(context.Background(), "q", snippets)
	gt.NoError(t, err).Required()

	gt.Array(t, prompts).Length(1).Required()
	gt.String(t, prompts[0]).Contains("first review")
	gt.Bool(t, strings.Contains(prompts[0], "second review")).False()
}
