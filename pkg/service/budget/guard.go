package budget

import (
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
)

// DefaultCap is the per-thread token cap
const DefaultCap int64 = 100_000

// DefaultWarningRatio is the share of the cap that raises a warning
const DefaultWarningRatio = 0.9

// Decision is the result of Check
type Decision struct {
	Allowed bool
	// Warning is set when the projected usage reaches the warning ratio
	Warning bool
	// Reserved is the amount held for this call, to be passed to Commit or Release
	Reserved int64
	Used     int64
	Cap      int64
}

// Guard tracks cumulative cost per thread and gates capability calls.
// Each thread has its own lock, so threads never contend with each other.
type Guard struct {
	cap          int64
	warningRatio float64
	onWarning    func(model.TokenUsage)

	mu      sync.Mutex
	threads map[model.ThreadID]*entry
}

type entry struct {
	mu       sync.Mutex
	used     int64
	reserved int64
	denied   bool
	warned   bool
}

// Option is a functional option for Guard configuration
type Option func(*Guard)

// WithWarningRatio sets the share of the cap that raises a warning
func WithWarningRatio(ratio float64) Option {
	return func(g *Guard) {
		if ratio > 0 && ratio <= 1 {
			g.warningRatio = ratio
		}
	}
}

// WithWarningHandler registers fn to be called once per thread when committed usage
// first reaches the warning ratio. fn runs without any guard lock held.
func WithWarningHandler(fn func(model.TokenUsage)) Option {
	return func(g *Guard) {
		g.onWarning = fn
	}
}

// New creates a Guard. A non-positive cap falls back to DefaultCap.
func New(limit int64, opts ...Option) *Guard {
	if limit <= 0 {
		limit = DefaultCap
	}
	g := &Guard{
		cap:          limit,
		warningRatio: DefaultWarningRatio,
		threads:      make(map[model.ThreadID]*entry),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Cap returns the per-thread cap
func (g *Guard) Cap() int64 {
	return g.cap
}

func (g *Guard) entry(threadID model.ThreadID) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.threads[threadID]
	if !ok {
		e = &entry{}
		g.threads[threadID] = e
	}
	return e
}

func (g *Guard) threshold() int64 {
	return int64(float64(g.cap) * g.warningRatio)
}

// Check reserves estimated tokens when they fit under the cap together with
// committed and reserved usage. Once a thread is denied it stays denied until Reset.
func (g *Guard) Check(threadID model.ThreadID, estimated int64) Decision {
	if estimated < 0 {
		estimated = 0
	}

	e := g.entry(threadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	d := Decision{Used: e.used, Cap: g.cap}
	projected := e.used + e.reserved + estimated
	if e.denied || e.used >= g.cap || projected > g.cap {
		e.denied = true
		return d
	}

	e.reserved += estimated
	d.Allowed = true
	d.Reserved = estimated
	d.Warning = projected >= g.threshold()
	return d
}

// Release returns a reservation without committing cost, e.g. after a failed call
func (g *Guard) Release(threadID model.ThreadID, reserved int64) {
	e := g.entry(threadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reserved = max(e.reserved-reserved, 0)
}

// Commit releases the reservation and adds the actual cost. Committed usage never
// exceeds the cap: an overrun saturates at the cap, denies the thread and returns
// model.ErrBudgetExceeded.
func (g *Guard) Commit(threadID model.ThreadID, reserved, actual int64) error {
	if actual < 0 {
		actual = 0
	}

	e := g.entry(threadID)
	e.mu.Lock()
	e.reserved = max(e.reserved-reserved, 0)
	e.used += actual

	var err error
	if e.used >= g.cap {
		e.denied = true
	}
	if e.used > g.cap {
		err = goerr.Wrap(model.ErrBudgetExceeded, "actual cost exceeded the cap",
			goerr.V(model.ThreadIDKey, threadID), goerr.V("used", e.used), goerr.V("cap", g.cap))
		e.used = g.cap
	}

	fire := !e.warned && e.used >= g.threshold()
	if fire {
		e.warned = true
	}
	usage := model.TokenUsage{ThreadID: threadID, Used: e.used, Cap: g.cap}
	e.mu.Unlock()

	if fire && g.onWarning != nil {
		g.onWarning(usage)
	}
	return err
}

// Usage returns the committed usage of the thread
func (g *Guard) Usage(threadID model.ThreadID) model.TokenUsage {
	e := g.entry(threadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	return model.TokenUsage{ThreadID: threadID, Used: e.used, Cap: g.cap}
}

// Tracks reports whether the guard holds state for the thread
func (g *Guard) Tracks(threadID model.ThreadID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.threads[threadID]
	return ok
}

// Restore sets committed usage and the denial from a checkpoint. A thread at the
// cap is denied regardless of denied. A thread restored at or above the warning
// ratio does not warn again.
func (g *Guard) Restore(threadID model.ThreadID, used int64, denied bool) {
	e := g.entry(threadID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.used = min(max(used, 0), g.cap)
	e.reserved = 0
	e.denied = denied || e.used >= g.cap
	e.warned = e.used >= g.threshold()
}

// Reset forgets the thread. Only explicit session teardown calls this.
func (g *Guard) Reset(threadID model.ThreadID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.threads, threadID)
}
