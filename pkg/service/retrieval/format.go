package retrieval

import (
	"fmt"
	"strings"

	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// Format renders snippets as prompt context, one "[author | date | Score: n] text" block each
func Format(snippets []*model.Snippet) string {
	if len(snippets) == 0 {
		return "No relevant reviews found."
	}

	blocks := make([]string, 0, len(snippets))
	for _, s := range snippets {
		author := s.Chunk.Author
		if author == "" {
			author = "Anonymous"
		}
		date := "Unknown date"
		if !s.Chunk.Timestamp.IsZero() {
			date = s.Chunk.Timestamp.Format("2006-01-02")
		}
		score := "N/A"
		if s.Chunk.Rating > 0 {
			score = fmt.Sprintf("%d", s.Chunk.Rating)
		}
		blocks = append(blocks, fmt.Sprintf("[%s | %s | Score: %s] %s", author, date, score, strings.TrimSpace(s.Chunk.Text)))
	}
	return strings.Join(blocks, "\n\n")
}
