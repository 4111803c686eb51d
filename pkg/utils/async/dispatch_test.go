package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/utils/async"
)

func TestGroup_Dispatch(t *testing.T) {
	var g async.Group
	var ran atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	for range 3 {
		g.Dispatch(ctx, func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			// caller cancellation does not reach the handler
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ran.Add(1)
			return nil
		})
	}
	cancel()

	gt.NoError(t, g.Wait(context.Background())).Required()
	gt.Value(t, ran.Load()).Equal(int32(3))
}

func TestGroup_ErrorsAndPanics(t *testing.T) {
	var g async.Group
	g.Dispatch(context.Background(), func(context.Context) error { return errors.New("boom") })
	g.Dispatch(context.Background(), func(context.Context) error { panic("oops") })
	gt.NoError(t, g.Wait(context.Background()))
}

func TestGroup_WaitTimeout(t *testing.T) {
	var g async.Group
	release := make(chan struct{})
	defer close(release)
	g.Dispatch(context.Background(), func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	gt.Error(t, g.Wait(ctx)).Is(context.DeadlineExceeded)
}
