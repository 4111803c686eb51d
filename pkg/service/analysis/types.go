package analysis

// Sentiment summarizes the ratings and sentiment themes of a set of reviews.
// Shares are percentages of rated reviews: positive is rating >= 4, negative is rating <= 2.
type Sentiment struct {
	TotalReviews   int      `json:"total_reviews"`
	MeanRating     *float64 `json:"mean_rating,omitempty"`
	PositiveShare  *float64 `json:"positive_share,omitempty"`
	NegativeShare  *float64 `json:"negative_share,omitempty"`
	PositiveThemes []string `json:"positive_themes"`
	NegativeThemes []string `json:"negative_themes"`
}

// Aspect is one product or service feature discussed in reviews
type Aspect struct {
	Name             string   `json:"name"`
	Frequency        int      `json:"frequency"`
	SentimentScore   *float64 `json:"sentiment_score,omitempty"`
	PositiveExamples []string `json:"positive_examples"`
	NeutralExamples  []string `json:"neutral_examples"`
	NegativeExamples []string `json:"negative_examples"`
}

// AspectAnalysis ranks aspects by frequency
type AspectAnalysis struct {
	TotalAspects int       `json:"total_aspects"`
	Aspects      []*Aspect `json:"aspects"`
}

// JTBD is a Jobs-to-Be-Done insight
type JTBD struct {
	Job             string   `json:"job"`
	Situation       string   `json:"situation"`
	Motivation      string   `json:"motivation"`
	ExpectedOutcome string   `json:"expected_outcome"`
	Frustrations    []string `json:"frustrations"`
	Quotes          []string `json:"quotes"`
	TotalReviews    int      `json:"total_reviews"`
}

// themes is the structured LLM output for sentiment
type themes struct {
	PositiveThemes []string `json:"positive_themes"`
	NegativeThemes []string `json:"negative_themes"`
}

// promptReview is the shape of a snippet handed to the LLM
type promptReview struct {
	Text   string `json:"text"`
	Rating int    `json:"rating"`
	Date   string `json:"date,omitempty"`
	Group  string `json:"vendor"`
	Title  string `json:"review_header,omitempty"`
}
