package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

func newCheckpoint(threadID model.ThreadID, seq int64, conv model.Conversation, state types.StateTag) *model.Checkpoint {
	return &model.Checkpoint{
		ThreadID:   threadID,
		StepSeq:    seq,
		Messages:   conv.Messages(),
		TokensUsed: seq * 100,
		State:      state,
		Step:       int(seq),
		CreatedAt:  time.Date(2024, 3, 1, 0, 0, int(seq), 0, time.UTC),
	}
}

func runCheckpointStoreTest(t *testing.T, newRepo repoFactory) {
	t.Run("Append and Latest round trip the conversation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		threadID := model.ThreadID("thread-" + time.Now().Format("150405.000000"))

		conv := model.Conversation{}.Append(model.NewUserMessage("what do customers love?"))
		gt.NoError(t, repo.Checkpoint().Append(ctx, newCheckpoint(threadID, 1, conv, types.StateAwaitingReasoning))).Required()

		conv = conv.Append(model.NewToolCallMessage("", []model.ToolCall{
			{ID: "c1", Name: "retrieve_reviews", Arguments: map[string]any{"question": "pricing", "top_k": float64(3)}},
		}))
		conv = conv.Append(model.NewToolResultMessage(model.ToolResult{
			CallID: "c1", Name: "retrieve_reviews", Status: types.ToolStatusOK,
			Output: map[string]any{"count": float64(3)},
		}))
		second := newCheckpoint(threadID, 2, conv, types.StateAwaitingReasoning)
		gt.NoError(t, repo.Checkpoint().Append(ctx, second)).Required()

		latest, err := repo.Checkpoint().Latest(ctx, threadID)
		gt.NoError(t, err).Required()
		gt.Value(t, latest).Equal(second)
	})

	t.Run("Latest returns nil for unknown thread", func(t *testing.T) {
		repo := newRepo(t)
		latest, err := repo.Checkpoint().Latest(context.Background(), "no-such-thread")
		gt.NoError(t, err).Required()
		gt.Value(t, latest).Nil()
	})

	t.Run("Append rejects gaps and duplicates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		threadID := model.ThreadID("gap-" + time.Now().Format("150405.000000"))
		conv := model.Conversation{}.Append(model.NewUserMessage("q"))

		err := repo.Checkpoint().Append(ctx, newCheckpoint(threadID, 2, conv, types.StateAwaitingReasoning))
		gt.Error(t, err).Is(model.ErrCheckpointConflict)

		gt.NoError(t, repo.Checkpoint().Append(ctx, newCheckpoint(threadID, 1, conv, types.StateAwaitingReasoning))).Required()
		err = repo.Checkpoint().Append(ctx, newCheckpoint(threadID, 1, conv, types.StateAwaitingReasoning))
		gt.Error(t, err).Is(model.ErrCheckpointConflict)

		list, err := repo.Checkpoint().List(ctx, threadID)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1)
	})

	t.Run("List is ordered and Delete removes the thread", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		threadID := model.ThreadID("list-" + time.Now().Format("150405.000000"))

		conv := model.Conversation{}
		for i := int64(1); i <= 3; i++ {
			conv = conv.Append(model.NewUserMessage("q"))
			gt.NoError(t, repo.Checkpoint().Append(ctx, newCheckpoint(threadID, i, conv, types.StateAwaitingReasoning))).Required()
		}

		list, err := repo.Checkpoint().List(ctx, threadID)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(3).Required()
		for i, cp := range list {
			gt.Value(t, cp.StepSeq).Equal(int64(i + 1))
			gt.Array(t, cp.Messages).Length(i + 1)
		}

		gt.NoError(t, repo.Checkpoint().Delete(ctx, threadID)).Required()
		list, err = repo.Checkpoint().List(ctx, threadID)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(0)

		// A deleted thread starts over at 1
		gt.NoError(t, repo.Checkpoint().Append(ctx, newCheckpoint(threadID, 1, conv, types.StateAwaitingReasoning))).Required()
	})

	t.Run("threads interleave independently", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Now().Format("150405.000000")

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				threadID := model.ThreadID(base + "-" + string(rune('a'+i)))
				conv := model.Conversation{}
				for seq := int64(1); seq <= 5; seq++ {
					conv = conv.Append(model.NewUserMessage("q"))
					if err := repo.Checkpoint().Append(ctx, newCheckpoint(threadID, seq, conv, types.StateAwaitingReasoning)); err != nil {
						errs[i] = err
						return
					}
				}
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			gt.NoError(t, err).Required()
			latest, err := repo.Checkpoint().Latest(ctx, model.ThreadID(base+"-"+string(rune('a'+i))))
			gt.NoError(t, err).Required()
			gt.Value(t, latest.StepSeq).Equal(int64(5))
		}
	})
}

func TestCheckpointStore(t *testing.T) {
	runAll(t, runCheckpointStoreTest)
}
