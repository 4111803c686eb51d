package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
)

const maxTopK = 200

// retrieveInput is the input of retrieve_reviews
type retrieveInput struct {
	Question  string `json:"question"`
	ChunkType string `json:"chunk_type,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
	FetchK    int    `json:"fetch_k,omitempty"`
}

func (in retrieveInput) Validate() error {
	if in.Question == "" {
		return goerr.New("question is required")
	}
	if _, err := types.ParseChunkLevel(in.ChunkType); err != nil {
		return err
	}
	if in.Vendor != "" {
		if err := types.GroupTag(in.Vendor).Validate(); err != nil {
			return err
		}
	}
	if in.TopK < 0 || in.TopK > maxTopK {
		return goerr.New("top_k out of range", goerr.V("top_k", in.TopK), goerr.V("max", maxTopK))
	}
	if in.FetchK < 0 {
		return goerr.New("fetch_k must not be negative", goerr.V("fetch_k", in.FetchK))
	}
	if in.FetchK > 0 && in.FetchK < in.TopK {
		return goerr.New("fetch_k must not be less than top_k", goerr.V("top_k", in.TopK), goerr.V("fetch_k", in.FetchK))
	}
	return nil
}

// query converts the input into a retrieval query, filling defaults
func (in retrieveInput) query() retrieval.Query {
	q := retrieval.NewQuery(in.Question)
	q.Level, _ = types.ParseChunkLevel(in.ChunkType)
	q.Group = types.GroupTag(in.Vendor)
	if in.TopK > 0 {
		q.TopK = in.TopK
	}
	switch {
	case in.FetchK > 0:
		q.FetchK = in.FetchK
	case q.FetchK < q.TopK:
		q.FetchK = q.TopK * 2
	}
	return q
}

// SnippetView is the serialized form of a snippet in tool outputs
type SnippetView struct {
	ID           string  `json:"id"`
	ParentID     string  `json:"parent_id"`
	Text         string  `json:"text"`
	Rating       int     `json:"rating"`
	Date         string  `json:"date,omitempty"`
	Vendor       string  `json:"vendor"`
	ReviewHeader string  `json:"review_header,omitempty"`
	Author       string  `json:"author,omitempty"`
	Similarity   float64 `json:"similarity"`
	Rank         int     `json:"rank"`
}

// RetrieveOutput is the output of retrieve_reviews
type RetrieveOutput struct {
	Snippets []SnippetView `json:"snippets"`
	Count    int           `json:"count"`
}

func newSnippetViews(snippets []*model.Snippet) []SnippetView {
	views := make([]SnippetView, 0, len(snippets))
	for _, s := range snippets {
		v := SnippetView{
			ID:           s.Chunk.ID,
			ParentID:     s.Chunk.ParentID,
			Text:         s.Chunk.Text,
			Rating:       s.Chunk.Rating,
			Vendor:       s.Chunk.Group.String(),
			ReviewHeader: s.Chunk.Title,
			Author:       s.Chunk.Author,
			Similarity:   s.Similarity,
			Rank:         s.Rank,
		}
		if !s.Chunk.Timestamp.IsZero() {
			v.Date = s.Chunk.Timestamp.Format(time.DateOnly)
		}
		views = append(views, v)
	}
	return views
}

// toSnippets rebuilds snippets passed back by the reasoner
func toSnippets(views []SnippetView) []*model.Snippet {
	snippets := make([]*model.Snippet, 0, len(views))
	for i, v := range views {
		c := &model.Chunk{
			ID:       v.ID,
			ParentID: v.ParentID,
			Text:     v.Text,
			Rating:   v.Rating,
			Group:    types.GroupTag(v.Vendor),
			Title:    v.ReviewHeader,
			Author:   v.Author,
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("snippet_%d", i)
		}
		if c.ParentID == "" {
			c.ParentID = c.ID
		}
		if ts, err := time.Parse(time.DateOnly, v.Date); err == nil {
			c.Timestamp = ts
		}
		rank := v.Rank
		if rank == 0 {
			rank = i + 1
		}
		snippets = append(snippets, &model.Snippet{Chunk: c, Similarity: v.Similarity, Rank: rank})
	}
	return snippets
}

// retrieve runs the engine and turns reasoner-fixable failures into validation errors.
// An empty index cannot be fixed within the thread, so it is marked non-retryable.
func retrieve(ctx context.Context, retriever Retriever, q retrieval.Query) ([]*model.Snippet, error) {
	snippets, err := retriever.Retrieve(ctx, q)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownGroup):
			return nil, goerr.Wrap(model.ErrValidation, "unknown vendor", goerr.V("vendor", q.Group))
		case errors.Is(err, model.ErrEmptyIndex):
			return nil, goerr.Wrap(fmt.Errorf("%w: %w", model.ErrNonRetryable, err), "review index is empty")
		}
		return nil, goerr.Wrap(err, "failed to retrieve reviews", goerr.V("question", q.Text))
	}
	return snippets, nil
}

func newRetrieveReviewsTool(retriever Retriever) *tool.Typed[retrieveInput, *RetrieveOutput] {
	spec := gollem.ToolSpec{
		Name: RetrieveReviewsName,
		Description: "Retrieve relevant review snippets from the review index to answer the question. " +
			"Always use this tool to ground an answer; use it again between analyses to get more context.",
		Parameters: map[string]*gollem.Parameter{
			"question": {
				Type:        gollem.TypeString,
				Description: "Natural-language query (required)",
			},
			"chunk_type": {
				Type:        gollem.TypeString,
				Description: `"sentence" for single sentences or "review" for whole reviews with broader context (default: sentence)`,
			},
			"vendor": {
				Type:        gollem.TypeString,
				Description: "Optional provider filter; set it when the user names a provider, e.g. ovh or hetzner",
			},
			"top_k": {
				Type:        gollem.TypeInteger,
				Description: "Number of results; 10 to 30 for reviews, 50 to 200 for sentences (default: 12)",
			},
			"fetch_k": {
				Type:        gollem.TypeInteger,
				Description: "Candidate pool size before diversification; 1.5 to 3 times top_k (default: 30)",
			},
		},
	}

	return tool.NewTyped(spec, func(ctx context.Context, in retrieveInput) (*RetrieveOutput, error) {
		q := in.query()
		tool.Updatef(ctx, "Retrieving reviews: %s", in.Question)

		snippets, err := retrieve(ctx, retriever, q)
		if err != nil {
			return nil, err
		}

		views := newSnippetViews(snippets)
		return &RetrieveOutput{Snippets: views, Count: len(views)}, nil
	})
}
