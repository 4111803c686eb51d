package async

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/utils/errutil"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

// Group runs handlers detached from the request that started them and lets
// the owner wait for them on shutdown
type Group struct {
	wg sync.WaitGroup
}

// Dispatch executes handler in a new goroutine. The handler context keeps the
// caller's logger but not its cancellation. Errors and panics are logged.
func (g *Group) Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := logging.With(context.Background(), logging.From(ctx))

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				_ = errutil.Handle(bgCtx, goerr.New("panic in async handler", goerr.V("panic", r)), "async handler panicked")
			}
		}()

		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, err, "async handler failed")
		}
	}()
}

// Wait blocks until every dispatched handler returns or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "async handlers still running")
	}
}
