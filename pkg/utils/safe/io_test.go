package safe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/utils/safe"
)

type closer struct {
	calls int
	err   error
}

func (c *closer) Close() error {
	c.calls++
	return c.err
}

type ctxCloser struct {
	calls int
	err   error
}

func (c *ctxCloser) Close(_ context.Context) error {
	c.calls++
	return c.err
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	c := &closer{}
	safe.Close(ctx, c)
	gt.Equal(t, c.calls, 1)

	failing := &closer{err: errors.New("boom")}
	safe.Close(ctx, failing)
	gt.Equal(t, failing.calls, 1)

	safe.Close(ctx, nil)
}

func TestCloseContext(t *testing.T) {
	ctx := context.Background()

	c := &ctxCloser{}
	safe.CloseContext(ctx, c)
	gt.Equal(t, c.calls, 1)

	failing := &ctxCloser{err: errors.New("boom")}
	safe.CloseContext(ctx, failing)
	gt.Equal(t, failing.calls, 1)

	safe.CloseContext(ctx, nil)
}
