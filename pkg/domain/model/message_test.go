package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

func TestConversation_AppendDoesNotMutate(t *testing.T) {
	var base model.Conversation
	first := base.Append(model.NewUserMessage("hello"))
	second := first.Append(
		model.NewToolCallMessage("", []model.ToolCall{{ID: "c1", Name: "sentiment_analysis"}}),
		model.NewToolResultMessage(model.ToolResult{CallID: "c1", Name: "sentiment_analysis", Status: types.ToolStatusOK}),
	)

	gt.Value(t, base.Len()).Equal(0)
	gt.Value(t, first.Len()).Equal(1)
	gt.Value(t, second.Len()).Equal(3)

	msgs := second.Messages()
	for i, m := range msgs {
		gt.Value(t, m.Seq).Equal(i + 1)
	}
	gt.Value(t, second.Last().Kind).Equal(model.MessageKindToolResult)

	// The returned slice is a copy
	msgs[0].Seq = 100
	gt.Value(t, second.Messages()[0].Seq).Equal(1)
}

func TestNewConversation(t *testing.T) {
	t.Run("valid sequence", func(t *testing.T) {
		conv := model.Conversation{}.Append(model.NewUserMessage("q"), model.NewReasoningMessage("a"))
		restored, err := model.NewConversation(conv.Messages())
		gt.NoError(t, err).Required()
		gt.Value(t, restored.Messages()).Equal(conv.Messages())
	})

	t.Run("sequence gap", func(t *testing.T) {
		msgs := model.Conversation{}.Append(model.NewUserMessage("q"), model.NewReasoningMessage("a")).Messages()
		msgs[1].Seq = 3
		_, err := model.NewConversation(msgs)
		gt.Error(t, err).Is(model.ErrCorruptCheckpoint)
	})

	t.Run("payload mismatch", func(t *testing.T) {
		msgs := []model.Message{{Seq: 1, Kind: model.MessageKindUser, Reasoning: &model.ReasoningMessage{Text: "x"}}}
		_, err := model.NewConversation(msgs)
		gt.Error(t, err).Is(model.ErrCorruptCheckpoint)
	})

	t.Run("missing payload", func(t *testing.T) {
		msgs := []model.Message{{Seq: 1, Kind: model.MessageKindUser}}
		_, err := model.NewConversation(msgs)
		gt.Error(t, err).Is(model.ErrCorruptCheckpoint)
	})
}

func TestTokenUsage_Ratio(t *testing.T) {
	gt.Value(t, model.TokenUsage{Used: 90, Cap: 100}.Ratio()).Equal(0.9)
	gt.Value(t, model.TokenUsage{Used: 90}.Ratio()).Equal(0.0)
}

func TestReasoning_IsFinal(t *testing.T) {
	r := &model.Reasoning{Text: "done", InputTokens: 3, OutputTokens: 4}
	gt.Bool(t, r.IsFinal()).True()
	gt.Value(t, r.Tokens()).Equal(int64(7))

	r.ToolCalls = []model.ToolCall{{ID: "1", Name: "retrieve_reviews"}}
	gt.Bool(t, r.IsFinal()).False()
}
