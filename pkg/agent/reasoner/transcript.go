package reasoner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// renderTranscript flattens a history into a single prompt for a session that has
// not seen it, e.g. after a restart.
func renderTranscript(history []model.Message) string {
	var sb strings.Builder
	sb.WriteString("The conversation so far is reproduced below. Continue from its last entry.\n\n")

	for _, m := range history {
		switch m.Kind {
		case model.MessageKindUser:
			fmt.Fprintf(&sb, "[user]\n%s\n\n", m.User.Text)
		case model.MessageKindReasoning:
			fmt.Fprintf(&sb, "[assistant]\n%s\n\n", m.Reasoning.Text)
		case model.MessageKindToolCall:
			sb.WriteString("[assistant: tool calls]\n")
			if m.ToolCall.Text != "" {
				sb.WriteString(m.ToolCall.Text)
				sb.WriteString("\n")
			}
			for _, c := range m.ToolCall.Calls {
				fmt.Fprintf(&sb, "- %s %s (id %s)\n", c.Name, compactJSON(c.Arguments), c.ID)
			}
			sb.WriteString("\n")
		case model.MessageKindToolResult:
			r := m.ToolResult.Result
			fmt.Fprintf(&sb, "[tool result: %s, id %s, status %s]\n", r.Name, r.CallID, r.Status)
			if r.Error != "" {
				fmt.Fprintf(&sb, "error: %s\n", r.Error)
			}
			if len(r.Output) > 0 {
				sb.WriteString(compactJSON(r.Output))
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}

	if last := lastKind(history); last == model.MessageKindToolResult {
		sb.WriteString("Use the tool results above to continue.\n")
	}
	return sb.String()
}

func lastKind(history []model.Message) model.MessageKind {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Kind
}

func compactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
