package retrieval_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  types.Intent
	}{
		{"what do customers love about ovh pricing", types.IntentPositive},
		{"What are the main strengths of Hetzner?", types.IntentPositive},
		{"what do customers complain about", types.IntentNegative},
		{"biggest problems with support", types.IntentNegative},
		{"customers don't like the billing", types.IntentNegative},
		{"is the console easy to use", types.IntentNeutral},
		{"summarize reviews for vultr", types.IntentNeutral},
		{"good and bad points", types.IntentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			gt.Value(t, retrieval.ClassifyIntent(tt.query)).Equal(tt.want)
		})
	}
}
