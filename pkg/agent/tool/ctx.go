package tool

import (
	"context"
	"fmt"
)

// Progress is a status line reported by a running tool call
type Progress struct {
	CallID  string
	Tool    string
	Message string
}

// ProgressFunc receives progress of tool calls while a turn is in flight
type ProgressFunc func(ctx context.Context, p Progress)

type progressKey struct{}

type callKey struct{}

type callInfo struct {
	id   string
	name string
}

// WithProgress returns a new context that carries the given ProgressFunc.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// WithCall tags ctx with the tool call it runs, so that reported progress names the call
func WithCall(ctx context.Context, callID, name string) context.Context {
	return context.WithValue(ctx, callKey{}, callInfo{id: callID, name: name})
}

// Update reports message through the ProgressFunc stored in ctx.
// If no ProgressFunc is present in ctx, the call is a no-op.
func Update(ctx context.Context, message string) {
	fn, ok := ctx.Value(progressKey{}).(ProgressFunc)
	if !ok {
		return
	}
	call, _ := ctx.Value(callKey{}).(callInfo)
	fn(ctx, Progress{CallID: call.id, Tool: call.name, Message: message})
}

// Updatef is Update with a format string
func Updatef(ctx context.Context, format string, args ...any) {
	Update(ctx, fmt.Sprintf(format, args...))
}
