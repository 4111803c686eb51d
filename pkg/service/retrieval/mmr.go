package retrieval

import (
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

type candidate struct {
	chunk      *model.Chunk
	similarity float64 // similarity to the query
	preferred  bool
}

// selectMMR greedily picks up to topK candidates. Each pick takes the best MMR
// score from the first non-empty pool, in this order:
//
//  1. preferred rating, parent not yet selected
//  2. other rating, parent not yet selected
//  3. preferred rating, parent already selected
//  4. other rating, parent already selected
//
// so one snippet per parent is kept while distinct parents remain, and the
// rating bias only reorders candidates instead of removing them.
// Ties are broken by higher query similarity, then ascending chunk id, so that
// lambda = 0 still starts from the most relevant candidate.
func selectMMR(cands []*candidate, topK int, lambda float64) []*candidate {
	remaining := make([]*candidate, len(cands))
	copy(remaining, cands)

	var selected []*candidate
	parents := make(map[string]struct{})

	for len(selected) < topK && len(remaining) > 0 {
		best := -1
		for pool := 0; pool < 4 && best < 0; pool++ {
			wantPreferred := pool%2 == 0
			wantNewParent := pool < 2

			var bestScore float64
			for i, c := range remaining {
				_, seen := parents[c.chunk.ParentID]
				if c.preferred != wantPreferred || seen == wantNewParent {
					continue
				}
				score := mmrScore(c, selected, lambda)
				if best < 0 || score > bestScore || (score == bestScore && outranks(c, remaining[best])) {
					best, bestScore = i, score
				}
			}
		}

		picked := remaining[best]
		selected = append(selected, picked)
		parents[picked.chunk.ParentID] = struct{}{}
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return selected
}

// outranks breaks a score tie between a and b
func outranks(a, b *candidate) bool {
	if a.similarity != b.similarity {
		return a.similarity > b.similarity
	}
	return a.chunk.ID < b.chunk.ID
}

func mmrScore(c *candidate, selected []*candidate, lambda float64) float64 {
	var redundancy float64
	for i, s := range selected {
		sim := model.CosineSimilarity(c.chunk.Embedding, s.chunk.Embedding)
		if i == 0 || sim > redundancy {
			redundancy = sim
		}
	}
	return lambda*c.similarity - (1-lambda)*redundancy
}

func newCandidates(chunks []*model.Chunk, sims map[string]float64, intent types.Intent) []*candidate {
	cands := make([]*candidate, 0, len(chunks))
	for _, c := range chunks {
		cands = append(cands, &candidate{
			chunk:      c,
			similarity: sims[c.ID],
			preferred:  intent.Prefers(c.Rating),
		})
	}
	return cands
}
