package reasoner

import (
	"unicode/utf8"

	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// Estimator predicts the cost of a reasoning step before it is made
type Estimator func(req *model.ReasoningRequest) int64

// charsPerToken is the usual characters-per-token ratio for English prose
const charsPerToken = 4

// EstimateByRunes counts one token per four runes of everything the step sends:
// system prompt, tool specs and the full history.
func EstimateByRunes(req *model.ReasoningRequest) int64 {
	if req == nil {
		return 0
	}

	n := utf8.RuneCountInString(req.SystemPrompt)
	for _, spec := range req.Tools {
		n += utf8.RuneCountInString(spec.Name) + utf8.RuneCountInString(spec.Description)
		n += utf8.RuneCountInString(compactJSON(spec.Parameters))
	}
	for _, m := range req.History {
		n += messageRunes(m)
	}

	return int64((n + charsPerToken - 1) / charsPerToken)
}

func messageRunes(m model.Message) int {
	switch m.Kind {
	case model.MessageKindUser:
		return utf8.RuneCountInString(m.User.Text)
	case model.MessageKindReasoning:
		return utf8.RuneCountInString(m.Reasoning.Text)
	case model.MessageKindToolCall:
		n := utf8.RuneCountInString(m.ToolCall.Text)
		for _, c := range m.ToolCall.Calls {
			n += utf8.RuneCountInString(c.Name) + utf8.RuneCountInString(compactJSON(c.Arguments))
		}
		return n
	case model.MessageKindToolResult:
		r := m.ToolResult.Result
		return utf8.RuneCountInString(r.Error) + utf8.RuneCountInString(compactJSON(r.Output))
	}
	return 0
}
