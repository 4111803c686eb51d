package core

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/analysis"
)

// analysisInput is shared by the analysis tools. Snippets are the output of an
// earlier retrieve_reviews call; when absent the tool retrieves evidence itself.
type analysisInput struct {
	Question  string        `json:"question"`
	Snippets  []SnippetView `json:"snippets,omitempty"`
	Vendor    string        `json:"vendor,omitempty"`
	ChunkType string        `json:"chunk_type,omitempty"`
}

func (in analysisInput) Validate() error {
	if in.Question == "" {
		return goerr.New("question is required")
	}
	if in.Vendor != "" {
		if err := types.GroupTag(in.Vendor).Validate(); err != nil {
			return err
		}
	}
	if _, err := types.ParseChunkLevel(in.ChunkType); err != nil {
		return err
	}
	for i, s := range in.Snippets {
		if s.Text == "" {
			return goerr.New("snippet text is required", goerr.V("index", i))
		}
		if s.Rating < 0 || s.Rating > 5 {
			return goerr.New("snippet rating out of range", goerr.V("index", i), goerr.V("rating", s.Rating))
		}
	}
	return nil
}

// evidence returns the snippets passed in, or retrieves them for the question
func (in analysisInput) evidence(ctx context.Context, retriever Retriever) ([]*model.Snippet, error) {
	if len(in.Snippets) > 0 {
		return toSnippets(in.Snippets), nil
	}
	rin := retrieveInput{Question: in.Question, ChunkType: in.ChunkType, Vendor: in.Vendor}
	return retrieve(ctx, retriever, rin.query())
}

func analysisParameters() map[string]*gollem.Parameter {
	return map[string]*gollem.Parameter{
		"question": {
			Type:        gollem.TypeString,
			Description: "The user's question guiding the analysis (required)",
		},
		"snippets": {
			Type:        gollem.TypeArray,
			Description: "Snippets returned by retrieve_reviews. Omit them to let the tool retrieve evidence for the question",
			Items: &gollem.Parameter{
				Type: gollem.TypeObject,
				Properties: map[string]*gollem.Parameter{
					"id":        {Type: gollem.TypeString, Description: "Snippet id"},
					"parent_id": {Type: gollem.TypeString, Description: "Id of the review the snippet belongs to"},
					"text":      {Type: gollem.TypeString, Description: "Snippet text"},
					"rating":    {Type: gollem.TypeInteger, Description: "Star rating from 1 to 5, 0 when unknown"},
					"date":      {Type: gollem.TypeString, Description: "Review date, YYYY-MM-DD"},
					"vendor":    {Type: gollem.TypeString, Description: "Provider the review is about"},
				},
			},
		},
		"vendor": {
			Type:        gollem.TypeString,
			Description: "Optional provider filter used when the tool retrieves evidence itself",
		},
		"chunk_type": {
			Type:        gollem.TypeString,
			Description: `"sentence" or "review", used when the tool retrieves evidence itself (default: sentence)`,
		},
	}
}

// newAnalysisTool wires one analysis routine to the shared input handling
func newAnalysisTool[Out any](name, description string, retriever Retriever, run func(ctx context.Context, question string, snippets []*model.Snippet) (Out, error)) *tool.Typed[analysisInput, Out] {
	spec := gollem.ToolSpec{
		Name:        name,
		Description: description,
		Parameters:  analysisParameters(),
	}

	return tool.NewTyped(spec, func(ctx context.Context, in analysisInput) (Out, error) {
		var zero Out
		snippets, err := in.evidence(ctx, retriever)
		if err != nil {
			return zero, err
		}

		tool.Updatef(ctx, "Running %s on %d snippets", name, len(snippets))

		out, err := run(ctx, in.Question, snippets)
		if err != nil {
			return zero, goerr.Wrap(err, "analysis failed", goerr.V(model.ToolNameKey, name))
		}
		return out, nil
	})
}

func newSentimentTool(retriever Retriever, analyzer Analyzer) *tool.Typed[analysisInput, *analysis.Sentiment] {
	return newAnalysisTool(SentimentAnalysisName,
		"Analyze overall sentiment and emotional tone of customer reviews. Use it for questions about how customers feel, "+
			"satisfaction levels, positive versus negative feedback and rating statistics. "+
			"Returns mean_rating, positive_share, negative_share and the key themes.",
		retriever, analyzer.Sentiment)
}

func newAspectTool(retriever Retriever, analyzer Analyzer) *tool.Typed[analysisInput, *analysis.AspectAnalysis] {
	return newAnalysisTool(AspectExtractionName,
		"Identify and rank specific product or service features mentioned in customer reviews, such as performance, "+
			"pricing, support and reliability. Returns ranked aspects with frequency, sentiment score and example quotes.",
		retriever, analyzer.Aspects)
}

func newJTBDTool(retriever Retriever, analyzer Analyzer) *tool.Typed[analysisInput, *analysis.JTBD] {
	return newAnalysisTool(JTBDAnalysisName,
		"Analyze customer goals, motivations and Jobs-to-Be-Done from reviews. Use it for questions about why customers "+
			"choose the service, what they try to accomplish and what frustrates them. "+
			"Returns job, situation, motivation, expected outcome, frustrations and quotes.",
		retriever, analyzer.JTBD)
}
