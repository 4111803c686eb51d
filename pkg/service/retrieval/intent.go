package retrieval

import (
	"strings"
	"unicode"

	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

// Cues ending in "*" match as word prefixes, so "love*" also matches "loved" and "lovely".
// Other cues match whole words only.
var (
	positiveCues = []string{
		"love*", "like", "liked", "likes", "enjoy*", "great*", "best", "good", "happy", "satisf*",
		"prais*", "recommend*", "favo*", "appreciat*", "strength*", "pros", "advantage*",
		"excellent", "amazing", "awesome", "delight*",
	}
	negativeCues = []string{
		"hate*", "dislike*", "complain*", "worst", "bad", "problem*", "issue*", "frustrat*",
		"annoy*", "disappoint*", "cons", "weak*", "pain", "painful", "fail*", "poor*", "terrible",
		"awful", "unhappy", "angry", "regret*", "broken", "slow*",
	}
	negators = map[string]struct{}{
		"not": {}, "no": {}, "never": {}, "don't": {}, "dont": {}, "doesn't": {}, "didn't": {},
		"isn't": {}, "aren't": {}, "wasn't": {}, "without": {},
	}
)

// ClassifyIntent infers the rating bias of a query from lexical cues. A cue
// directly preceded by a negator counts for the opposite polarity.
func ClassifyIntent(query string) types.Intent {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	var pos, neg int
	for i, w := range words {
		negated := false
		if i > 0 {
			_, negated = negators[words[i-1]]
		}

		switch {
		case matchesCue(w, negativeCues):
			if negated {
				pos++
			} else {
				neg++
			}
		case matchesCue(w, positiveCues):
			if negated {
				neg++
			} else {
				pos++
			}
		}
	}

	switch {
	case pos > neg:
		return types.IntentPositive
	case neg > pos:
		return types.IntentNegative
	default:
		return types.IntentNeutral
	}
}

func matchesCue(word string, cues []string) bool {
	for _, cue := range cues {
		if stem, ok := strings.CutSuffix(cue, "*"); ok {
			if strings.HasPrefix(word, stem) {
				return true
			}
		} else if word == cue {
			return true
		}
	}
	return false
}
