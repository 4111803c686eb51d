package analysis

import (
	"context"
	_ "embed"
	"encoding/json"
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

//go:embed prompt/sentiment.md
var sentimentPrompt string

//go:embed prompt/aspects.md
var aspectsPrompt string

//go:embed prompt/jtbd.md
var jtbdPrompt string

// DefaultMaxReviews caps how many snippets are sent to the LLM in one analysis
const DefaultMaxReviews = 200

// Service runs the review analysis routines on top of an LLM client
type Service struct {
	llm        gollem.LLMClient
	maxReviews int
}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithMaxReviews sets how many snippets are sent to the LLM
func WithMaxReviews(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxReviews = n
		}
	}
}

// New creates an analysis service
func New(llm gollem.LLMClient, opts ...Option) (*Service, error) {
	if llm == nil {
		return nil, goerr.New("LLM client is required")
	}
	s := &Service{
		llm:        llm,
		maxReviews: DefaultMaxReviews,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sentiment computes rating statistics over the distinct reviews behind the snippets
// and asks the LLM for the themes that explain them.
func (s *Service) Sentiment(ctx context.Context, question string, snippets []*model.Snippet) (*Sentiment, error) {
	if len(snippets) == 0 {
		return nil, goerr.Wrap(model.ErrNoEvidence, "sentiment analysis needs snippets")
	}

	result := ratingStats(snippets)

	var out themes
	if err := s.generate(ctx, "sentiment", sentimentPrompt, sentimentSchema(), question, snippets, &out); err != nil {
		return nil, err
	}
	result.PositiveThemes = nonNil(out.PositiveThemes)
	result.NegativeThemes = nonNil(out.NegativeThemes)

	return result, nil
}

// Aspects ranks the product or service aspects discussed in the snippets
func (s *Service) Aspects(ctx context.Context, question string, snippets []*model.Snippet) (*AspectAnalysis, error) {
	if len(snippets) == 0 {
		return nil, goerr.Wrap(model.ErrNoEvidence, "aspect extraction needs snippets")
	}

	var out AspectAnalysis
	if err := s.generate(ctx, "aspects", aspectsPrompt, aspectSchema(), question, snippets, &out); err != nil {
		return nil, err
	}
	if len(out.Aspects) == 0 {
		return nil, goerr.Wrap(model.ErrNoEvidence, "no specific aspects were identified in the reviews")
	}

	for _, a := range out.Aspects {
		a.PositiveExamples = nonNil(a.PositiveExamples)
		a.NeutralExamples = nonNil(a.NeutralExamples)
		a.NegativeExamples = nonNil(a.NegativeExamples)
	}
	out.TotalAspects = len(out.Aspects)

	return &out, nil
}

// JTBD infers the job customers hire the service for
func (s *Service) JTBD(ctx context.Context, question string, snippets []*model.Snippet) (*JTBD, error) {
	if len(snippets) == 0 {
		return nil, goerr.Wrap(model.ErrNoEvidence, "JTBD analysis needs snippets")
	}

	var out JTBD
	if err := s.generate(ctx, "jtbd", jtbdPrompt, jtbdSchema(), question, snippets, &out); err != nil {
		return nil, err
	}
	out.Frustrations = nonNil(out.Frustrations)
	out.Quotes = nonNil(out.Quotes)
	out.TotalReviews = len(snippets)

	return &out, nil
}

// generate runs one JSON-schema session and decodes the first text into out.
// LLM failures are reported as model.ErrCapability.
func (s *Service) generate(ctx context.Context, name, systemPrompt string, schema *gollem.Parameter, question string, snippets []*model.Snippet, out any) error {
	userPrompt, err := s.buildUserPrompt(name, question, snippets)
	if err != nil {
		return err
	}

	session, err := s.llm.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return goerr.Wrap(model.ErrCapability, "failed to create LLM session",
			goerr.V("analysis", name), goerr.V("cause", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(userPrompt))
	if err != nil {
		return goerr.Wrap(model.ErrCapability, "failed to generate content from LLM",
			goerr.V("analysis", name), goerr.V("cause", err.Error()))
	}
	if resp == nil || len(resp.Texts) == 0 {
		return goerr.Wrap(model.ErrCapability, "LLM returned no content", goerr.V("analysis", name))
	}

	if err := json.Unmarshal([]byte(resp.Texts[0]), out); err != nil {
		return goerr.Wrap(model.ErrCapability, "failed to parse LLM response",
			goerr.V("analysis", name), goerr.V("response", resp.Texts[0]))
	}

	logging.From(ctx).Debug("analysis completed", "analysis", name, "snippets", len(snippets))
	return nil
}

func (s *Service) buildUserPrompt(name, question string, snippets []*model.Snippet) (string, error) {
	if len(snippets) > s.maxReviews {
		snippets = snippets[:s.maxReviews]
	}

	reviews := make([]promptReview, 0, len(snippets))
	for _, sn := range snippets {
		r := promptReview{
			Text:   sn.Chunk.Text,
			Rating: sn.Chunk.Rating,
			Group:  sn.Chunk.Group.String(),
			Title:  sn.Chunk.Title,
		}
		if !sn.Chunk.Timestamp.IsZero() {
			r.Date = sn.Chunk.Timestamp.Format("2006-01-02")
		}
		reviews = append(reviews, r)
	}

	raw, err := json.Marshal(reviews)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal reviews", goerr.V("analysis", name))
	}

	var sb strings.Builder
	sb.WriteString("You may use this question to guide the analysis of the reviews: ")
	sb.WriteString(question)
	sb.WriteString("\n\n## Reviews\n\n")
	sb.Write(raw)
	sb.WriteString("\n")
	return sb.String(), nil
}

// ratingStats counts each parent review once
func ratingStats(snippets []*model.Snippet) *Sentiment {
	seen := make(map[string]bool, len(snippets))
	var rated, sum, positive, negative int

	for _, sn := range snippets {
		parent := sn.Chunk.ParentID
		if parent == "" {
			parent = sn.Chunk.ID
		}
		if seen[parent] {
			continue
		}
		seen[parent] = true

		if sn.Chunk.Rating <= 0 {
			continue
		}
		rated++
		sum += sn.Chunk.Rating
		switch {
		case sn.Chunk.Rating >= 4:
			positive++
		case sn.Chunk.Rating <= 2:
			negative++
		}
	}

	result := &Sentiment{TotalReviews: len(seen)}
	if rated > 0 {
		mean := round2(float64(sum) / float64(rated))
		pos := round2(float64(positive) * 100 / float64(rated))
		neg := round2(float64(negative) * 100 / float64(rated))
		result.MeanRating = &mean
		result.PositiveShare = &pos
		result.NegativeShare = &neg
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func stringArray(description string) *gollem.Parameter {
	return &gollem.Parameter{
		Type:        gollem.TypeArray,
		Description: description,
		Items:       &gollem.Parameter{Type: gollem.TypeString},
	}
}

func sentimentSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "SentimentThemes",
		Description: "Themes explaining the sentiment of the reviews",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"positive_themes": stringArray("Top positive themes or quotes"),
			"negative_themes": stringArray("Top negative themes or quotes"),
		},
	}
}

func aspectSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "AspectAnalysis",
		Description: "Aspects discussed in the reviews ranked by frequency",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"total_aspects": {
				Type:        gollem.TypeInteger,
				Description: "Total number of aspects found",
			},
			"aspects": {
				Type:        gollem.TypeArray,
				Description: "List of analyzed aspects",
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"name": {
							Type:        gollem.TypeString,
							Description: "Name of the aspect, e.g. performance or pricing",
						},
						"frequency": {
							Type:        gollem.TypeInteger,
							Description: "Number of snippets mentioning the aspect",
						},
						"sentiment_score": {
							Type:        gollem.TypeNumber,
							Description: "Average sentiment between -1 and 1",
						},
						"positive_examples": stringArray("Positive mentions"),
						"neutral_examples":  stringArray("Neutral mentions"),
						"negative_examples": stringArray("Negative mentions"),
					},
				},
			},
		},
	}
}

func jtbdSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "JTBD",
		Description: "Jobs-to-Be-Done insight from customer reviews",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"job": {
				Type:        gollem.TypeString,
				Description: "The functional job customers are trying to accomplish",
			},
			"situation": {
				Type:        gollem.TypeString,
				Description: "The context in which the job arises",
			},
			"motivation": {
				Type:        gollem.TypeString,
				Description: "Why customers want to accomplish the job",
			},
			"expected_outcome": {
				Type:        gollem.TypeString,
				Description: "What success looks like for customers",
			},
			"frustrations": stringArray("Common pain points"),
			"quotes":       stringArray("Supporting customer quotes"),
		},
	}
}
