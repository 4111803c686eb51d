package core

import (
	"context"

	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/service/analysis"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
)

// Tool names exposed to the reasoner
const (
	RetrieveReviewsName   = "retrieve_reviews"
	SentimentAnalysisName = "sentiment_analysis"
	AspectExtractionName  = "aspect_extraction"
	JTBDAnalysisName      = "jtbd_analysis"
)

// Retriever returns evidence snippets for a query
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) ([]*model.Snippet, error)
}

// Analyzer runs the review analysis routines
type Analyzer interface {
	Sentiment(ctx context.Context, question string, snippets []*model.Snippet) (*analysis.Sentiment, error)
	Aspects(ctx context.Context, question string, snippets []*model.Snippet) (*analysis.AspectAnalysis, error)
	JTBD(ctx context.Context, question string, snippets []*model.Snippet) (*analysis.JTBD, error)
}

// New builds the core tools: evidence retrieval and the three analysis routines.
// Analysis tools retrieve evidence themselves when the reasoner passes no snippets.
func New(retriever Retriever, analyzer Analyzer) []gollem.Tool {
	return []gollem.Tool{
		newRetrieveReviewsTool(retriever),
		newSentimentTool(retriever, analyzer),
		newAspectTool(retriever, analyzer),
		newJTBDTool(retriever, analyzer),
	}
}
