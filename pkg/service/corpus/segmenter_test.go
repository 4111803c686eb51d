package corpus_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/service/corpus"
)

func TestSegmenter_Split(t *testing.T) {
	seg, err := corpus.NewSegmenter()
	gt.NoError(t, err).Required()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain sentences",
			text: "The price is great. Support is slow.",
			want: []string{"The price is great.", "Support is slow."},
		},
		{
			name: "abbreviations and decimals stay inside a sentence",
			text: "Uptime was 99.9 percent, e.g. better than Dr. Smith promised. I would recommend it.",
			want: []string{
				"Uptime was 99.9 percent, e.g. better than Dr. Smith promised.",
				"I would recommend it.",
			},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, seg.Split(tt.text)).Equal(tt.want)
		})
	}
}
