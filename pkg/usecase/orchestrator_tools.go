package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
	"github.com/secmon-lab/reviewsage/pkg/utils/retry"
	"golang.org/x/sync/errgroup"
)

// execute runs the calls concurrently and returns their results in dispatch order.
// A failing call never stops its siblings.
func (o *Orchestrator) execute(ctx context.Context, threadID model.ThreadID, calls []model.ToolCall) []model.ToolResult {
	ctx = tool.WithProgress(ctx, func(ctx context.Context, p tool.Progress) {
		logging.From(ctx).Info("tool progress", "tool_name", p.Tool, "call_id", p.CallID, "message", p.Message)
		if o.onProgress != nil {
			o.onProgress(ctx, threadID, p)
		}
	})

	results := make([]model.ToolResult, len(calls))
	var eg errgroup.Group
	if o.toolConcurrency > 0 {
		eg.SetLimit(o.toolConcurrency)
	}
	for i, call := range calls {
		eg.Go(func() error {
			results[i] = o.runTool(ctx, call)
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

type toolOutcome struct {
	output map[string]any
	err    error
}

// runTool executes one call with retries on capability failures and maps the
// outcome to a ToolResult
func (o *Orchestrator) runTool(ctx context.Context, call model.ToolCall) model.ToolResult {
	logger := logging.From(ctx).With("tool_name", call.Name, "call_id", call.ID)
	result := model.ToolResult{CallID: call.ID, Name: call.Name}

	t, ok := o.registry.Lookup(call.Name)
	if !ok {
		result.Status = types.ToolStatusInvalid
		result.Error = fmt.Sprintf("%s: %q", model.ErrUnknownTool.Error(), call.Name)
		logger.Warn("unknown tool requested")
		return result
	}

	var output map[string]any
	err := retry.Do(ctx, o.toolRetry, func(ctx context.Context) error {
		var err error
		output, err = o.attempt(tool.WithCall(ctx, call.ID, call.Name), t, call)
		return err
	})
	if err == nil {
		result.Status = types.ToolStatusOK
		result.Output = output
		return result
	}

	result.Error = err.Error()
	switch {
	case ctx.Err() != nil:
		result.Status = types.ToolStatusCancelled
	case errors.Is(err, model.ErrTimeout):
		result.Status = types.ToolStatusTimeout
	case errors.Is(err, model.ErrValidation):
		result.Status = types.ToolStatusInvalid
	case errors.Is(err, model.ErrNonRetryable):
		result.Status = types.ToolStatusFailed
		result.Fatal = true
	default:
		result.Status = types.ToolStatusFailed
	}

	logger.Warn("tool call failed", "status", result.Status, "error", err.Error())
	return result
}

// attempt runs the tool once under the per-call timeout. The tool runs in its own
// goroutine so that a tool ignoring its context still times out.
func (o *Orchestrator) attempt(ctx context.Context, t gollem.Tool, call model.ToolCall) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	done := make(chan toolOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- toolOutcome{err: goerr.New("tool panicked", goerr.V("panic", fmt.Sprint(r)))}
			}
		}()
		out, err := t.Run(callCtx, call.Arguments)
		done <- toolOutcome{output: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, goerr.Wrap(model.ErrTimeout, "tool call timed out",
				goerr.V(model.ToolNameKey, call.Name), goerr.V("timeout", o.toolTimeout), goerr.V("cause", r.err.Error()))
		}
		return r.output, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "tool call cancelled", goerr.V(model.ToolNameKey, call.Name))
		}
		return nil, goerr.Wrap(model.ErrTimeout, "tool call timed out",
			goerr.V(model.ToolNameKey, call.Name), goerr.V("timeout", o.toolTimeout))
	}
}
