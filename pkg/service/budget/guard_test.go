package budget_test

import (
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/service/budget"
)

func TestGuard_CheckAndCommit(t *testing.T) {
	g := budget.New(1000)
	const th = model.ThreadID("t1")

	d := g.Check(th, 400)
	gt.Bool(t, d.Allowed).True()
	gt.Value(t, d.Reserved).Equal(int64(400))
	gt.NoError(t, g.Commit(th, d.Reserved, 300)).Required()
	gt.Value(t, g.Usage(th).Used).Equal(int64(300))

	// 300 committed + 800 estimated exceeds the cap
	d = g.Check(th, 800)
	gt.Bool(t, d.Allowed).False()

	// Denial is sticky even for a call that would fit
	d = g.Check(th, 1)
	gt.Bool(t, d.Allowed).False()
	gt.Value(t, g.Usage(th).Used).Equal(int64(300))
}

func TestGuard_ReservationsPreventDoubleSpend(t *testing.T) {
	g := budget.New(1000)
	const th = model.ThreadID("t1")

	first := g.Check(th, 600)
	gt.Bool(t, first.Allowed).True()
	second := g.Check(th, 600)
	gt.Bool(t, second.Allowed).False()
}

func TestGuard_ReleaseReturnsReservation(t *testing.T) {
	g := budget.New(1000)
	const th = model.ThreadID("t1")

	d := g.Check(th, 600)
	g.Release(th, d.Reserved)
	d = g.Check(th, 600)
	gt.Bool(t, d.Allowed).True()
}

func TestGuard_CommitSaturatesAtCap(t *testing.T) {
	g := budget.New(1000)
	const th = model.ThreadID("t1")

	d := g.Check(th, 100)
	err := g.Commit(th, d.Reserved, 1500)
	gt.Error(t, err).Is(model.ErrBudgetExceeded)
	gt.Value(t, g.Usage(th).Used).Equal(int64(1000))
	gt.Bool(t, g.Check(th, 0).Allowed).False()
}

func TestGuard_DeniesAtFullCap(t *testing.T) {
	g := budget.New(1000)
	const th = model.ThreadID("t1")

	d := g.Check(th, 1000)
	gt.Bool(t, d.Allowed).True()
	gt.NoError(t, g.Commit(th, d.Reserved, 1000)).Required()
	gt.Bool(t, g.Check(th, 0).Allowed).False()
}

func TestGuard_WarningFiresOnce(t *testing.T) {
	var warnings []model.TokenUsage
	g := budget.New(1000, budget.WithWarningHandler(func(u model.TokenUsage) {
		warnings = append(warnings, u)
	}))
	const th = model.ThreadID("t1")

	d := g.Check(th, 500)
	gt.Bool(t, d.Warning).False()
	gt.NoError(t, g.Commit(th, d.Reserved, 500)).Required()
	gt.Array(t, warnings).Length(0)

	d = g.Check(th, 450)
	gt.Bool(t, d.Allowed).True()
	gt.Bool(t, d.Warning).True()
	gt.NoError(t, g.Commit(th, d.Reserved, 400)).Required()
	gt.Array(t, warnings).Length(1).Required()
	gt.Value(t, warnings[0]).Equal(model.TokenUsage{ThreadID: th, Used: 900, Cap: 1000})

	d = g.Check(th, 50)
	gt.NoError(t, g.Commit(th, d.Reserved, 50)).Required()
	gt.Array(t, warnings).Length(1)
}

func TestGuard_ThreadsAreIndependent(t *testing.T) {
	g := budget.New(1000)

	d := g.Check("a", 1000)
	gt.NoError(t, g.Commit("a", d.Reserved, 1000)).Required()
	gt.Bool(t, g.Check("a", 1).Allowed).False()
	gt.Bool(t, g.Check("b", 1000).Allowed).True()
}

func TestGuard_RestoreAndReset(t *testing.T) {
	var fired int
	g := budget.New(1000, budget.WithWarningHandler(func(model.TokenUsage) { fired++ }))
	const th = model.ThreadID("t1")

	g.Restore(th, 950, false)
	gt.Value(t, g.Usage(th).Used).Equal(int64(950))
	d := g.Check(th, 10)
	gt.Bool(t, d.Allowed).True()
	gt.NoError(t, g.Commit(th, d.Reserved, 10)).Required()
	gt.Value(t, fired).Equal(0)

	g.Restore(th, 2000, false)
	gt.Value(t, g.Usage(th).Used).Equal(int64(1000))
	gt.Bool(t, g.Check(th, 0).Allowed).False()

	g.Reset(th)
	gt.Value(t, g.Usage(th).Used).Equal(int64(0))
	gt.Bool(t, g.Check(th, 500).Allowed).True()
}

func TestGuard_RestoreKeepsDenial(t *testing.T) {
	g := budget.New(1000)
	const th = model.ThreadID("t1")

	gt.Bool(t, g.Tracks(th)).False()
	g.Restore(th, 10, true)
	gt.Bool(t, g.Tracks(th)).True()
	gt.Value(t, g.Usage(th).Used).Equal(int64(10))
	gt.Bool(t, g.Check(th, 1).Allowed).False()

	g.Reset(th)
	gt.Bool(t, g.Tracks(th)).False()
	gt.Bool(t, g.Check(th, 1).Allowed).True()
}

func TestGuard_ConcurrentStepsNeverExceedCap(t *testing.T) {
	g := budget.New(10_000)
	const th = model.ThreadID("t1")

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				d := g.Check(th, 50)
				if !d.Allowed {
					return
				}
				_ = g.Commit(th, d.Reserved, 50)
			}
		}()
	}
	wg.Wait()

	gt.Value(t, g.Usage(th).Used).Equal(int64(10_000))
}
