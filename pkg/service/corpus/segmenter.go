package corpus

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// abbreviations never end a sentence even when Punkt splits after them
var abbreviations = map[string]struct{}{
	"e.g.": {}, "i.e.": {}, "vs.": {}, "approx.": {}, "incl.": {}, "esp.": {},
	"dr.": {}, "mr.": {}, "mrs.": {}, "ms.": {}, "prof.": {}, "st.": {}, "jr.": {}, "sr.": {},
	"nr.": {}, "fig.": {}, "min.": {}, "max.": {}, "avg.": {}, "ca.": {},
	"jan.": {}, "feb.": {}, "mar.": {}, "apr.": {}, "jun.": {}, "jul.": {}, "aug.": {},
	"sep.": {}, "sept.": {}, "oct.": {}, "nov.": {}, "dec.": {},
	"inc.": {}, "ltd.": {}, "co.": {}, "corp.": {},
}

var (
	trailingNumber = regexp.MustCompile(`\d\.$`)
	leadingNumber  = regexp.MustCompile(`^\d`)
)

// Segmenter splits review bodies into sentences
type Segmenter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewSegmenter builds a Segmenter from the bundled English Punkt model
func NewSegmenter() (*Segmenter, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load sentence tokenizer")
	}
	return &Segmenter{tokenizer: tokenizer}, nil
}

// Split returns the trimmed sentences of text in order. Splits after a known
// abbreviation or inside a decimal number are merged back.
func (s *Segmenter) Split(text string) []string {
	var merged []string
	for _, sent := range s.tokenizer.Tokenize(text) {
		part := strings.TrimSpace(sent.Text)
		if part == "" {
			continue
		}
		if n := len(merged); n > 0 && continuesSentence(merged[n-1], part) {
			merged[n-1] = merged[n-1] + " " + part
			continue
		}
		merged = append(merged, part)
	}
	return merged
}

func continuesSentence(prev, next string) bool {
	if trailingNumber.MatchString(prev) && leadingNumber.MatchString(next) {
		return true
	}

	fields := strings.Fields(prev)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimLeftFunc(fields[len(fields)-1], func(r rune) bool {
		return unicode.IsPunct(r) && r != '.'
	}))
	_, ok := abbreviations[last]
	return ok
}

// significant reports whether a sentence carries more than three non-space characters
func significant(sentence string) bool {
	count := 0
	for _, r := range sentence {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count > 3
}
