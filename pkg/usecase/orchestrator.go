package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/agent/reasoner"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/budget"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
	"github.com/secmon-lab/reviewsage/pkg/utils/retry"
)

// Orchestrator defaults
const (
	DefaultMaxSteps    = 10
	DefaultToolTimeout = 60 * time.Second
)

// ProgressFunc receives progress reported by tools during a run
type ProgressFunc func(ctx context.Context, threadID model.ThreadID, p tool.Progress)

// Forgetter is implemented by reasoners that cache per-thread state
type Forgetter interface {
	Forget(threadID model.ThreadID)
}

// ToolOutput is a successful analysis result collected during a run
type ToolOutput struct {
	Name   string         `json:"name"`
	Output map[string]any `json:"output"`
}

// Result is the outcome of Run or Resume
type Result struct {
	ThreadID    model.ThreadID    `json:"thread_id"`
	State       types.StateTag    `json:"state"`
	AbortReason types.AbortReason `json:"abort_reason,omitempty"`
	Answer      string            `json:"answer,omitempty"`
	Steps       int               `json:"steps"`
	TokensUsed  int64             `json:"tokens_used"`
	Snippets    []map[string]any  `json:"snippets"`
	ToolOutputs []ToolOutput      `json:"tool_outputs"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Orchestrator drives the reasoning/tool loop of every thread. Turns of one thread
// are serialized; turns of different threads run independently.
type Orchestrator struct {
	store    interfaces.CheckpointStore
	reasoner interfaces.Reasoner
	registry *tool.Registry
	guard    *budget.Guard

	estimator       reasoner.Estimator
	systemPrompt    string
	maxSteps        int
	toolTimeout     time.Duration
	toolConcurrency int
	reasonRetry     retry.Policy
	toolRetry       retry.Policy
	onProgress      ProgressFunc
	now             func() time.Time

	mu     sync.Mutex
	active map[model.ThreadID]context.CancelFunc
}

// OrchestratorOption is a functional option for Orchestrator configuration
type OrchestratorOption func(*Orchestrator)

// WithEstimator replaces the pre-call cost estimator
func WithEstimator(e reasoner.Estimator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.estimator = e
	}
}

// WithSystemPrompt sets the system prompt given to the reasoner
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

// WithMaxSteps sets the reasoning step ceiling per turn
func WithMaxSteps(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithToolTimeout sets the per-call tool timeout
func WithToolTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.toolTimeout = d
		}
	}
}

// WithToolConcurrency limits how many tool calls of one step run at once. Zero is unlimited.
func WithToolConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.toolConcurrency = n
	}
}

// WithReasonRetry sets the retry policy of reasoning calls
func WithReasonRetry(p retry.Policy) OrchestratorOption {
	return func(o *Orchestrator) {
		o.reasonRetry = p
	}
}

// WithToolRetry sets the retry policy of tool calls failing with model.ErrCapability
func WithToolRetry(p retry.Policy) OrchestratorOption {
	return func(o *Orchestrator) {
		o.toolRetry = p
	}
}

// WithProgress registers a receiver of tool progress messages
func WithProgress(fn ProgressFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onProgress = fn
	}
}

// WithClock overrides the checkpoint timestamp source
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(store interfaces.CheckpointStore, r interfaces.Reasoner, registry *tool.Registry, guard *budget.Guard, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		reasoner:    r,
		registry:    registry,
		guard:       guard,
		estimator:   reasoner.EstimateByRunes,
		maxSteps:    DefaultMaxSteps,
		toolTimeout: DefaultToolTimeout,
		reasonRetry: capabilityRetry(),
		toolRetry:   capabilityRetry(),
		now:         time.Now,
		active:      make(map[model.ThreadID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func capabilityRetry() retry.Policy {
	p := retry.Default()
	p.Retryable = func(err error) bool { return errors.Is(err, model.ErrCapability) }
	return p
}

// runState is the in-memory state of a turn between checkpoints
type runState struct {
	threadID model.ThreadID
	seq      int64
	conv     model.Conversation
	state    types.StateTag
	step     int
	tokens   int64
	abort    types.AbortReason
	result   *Result
	warned   bool
}

// Run appends question to the thread and drives the turn to a terminal state.
// A new thread is created when none exists. Aborted turns are reported through
// Result, not as errors.
func (o *Orchestrator) Run(ctx context.Context, threadID model.ThreadID, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, goerr.Wrap(ErrEmptyQuestion, "question is required", goerr.V(model.ThreadIDKey, threadID))
	}

	ctx, release, err := o.acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := o.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if st.seq > 0 && !st.state.IsTerminal() {
		return nil, goerr.Wrap(ErrThreadInterrupted, "resume or end the thread before asking again",
			goerr.V(model.ThreadIDKey, threadID), goerr.V(StateKey, st.state))
	}

	st.conv = st.conv.Append(model.NewUserMessage(question))
	st.state = types.StateAwaitingReasoning
	st.step = 0
	st.abort = types.AbortNone
	if err := o.checkpoint(ctx, st); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("turn started", "thread_id", threadID, "messages", st.conv.Len())
	return o.loop(ctx, st)
}

// Resume continues an interrupted turn from the latest checkpoint
func (o *Orchestrator) Resume(ctx context.Context, threadID model.ThreadID) (*Result, error) {
	ctx, release, err := o.acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := o.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if st.seq == 0 {
		return nil, goerr.Wrap(model.ErrThreadNotFound, "no checkpoint to resume", goerr.V(model.ThreadIDKey, threadID))
	}
	if st.state.IsTerminal() {
		return nil, goerr.Wrap(model.ErrThreadTerminated, "thread is not mid-turn",
			goerr.V(model.ThreadIDKey, threadID), goerr.V(StateKey, st.state))
	}

	logging.From(ctx).Info("turn resumed", "thread_id", threadID, "state", st.state, "step", st.step)
	return o.loop(ctx, st)
}

// Cancel stops the active run of the thread. It returns false if none is running.
func (o *Orchestrator) Cancel(threadID model.ThreadID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	cancel, ok := o.active[threadID]
	if ok {
		cancel()
	}
	return ok
}

// acquire registers the single active run of a thread
func (o *Orchestrator) acquire(ctx context.Context, threadID model.ThreadID) (context.Context, func(), error) {
	if threadID == "" {
		return nil, nil, goerr.New("thread id is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.active[threadID]; busy {
		return nil, nil, goerr.Wrap(model.ErrThreadBusy, "thread is running", goerr.V(model.ThreadIDKey, threadID))
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.active[threadID] = cancel
	release := func() {
		o.mu.Lock()
		delete(o.active, threadID)
		o.mu.Unlock()
		cancel()
	}
	return logging.With(runCtx, logging.From(ctx).With("thread_id", threadID)), release, nil
}

// load restores the thread from its checkpoints, or starts an empty one
func (o *Orchestrator) load(ctx context.Context, threadID model.ThreadID) (*runState, error) {
	st := &runState{
		threadID: threadID,
		result:   &Result{ThreadID: threadID, Snippets: []map[string]any{}, ToolOutputs: []ToolOutput{}},
	}

	cp, conv, err := o.Restore(ctx, threadID)
	if err != nil {
		if errors.Is(err, model.ErrThreadNotFound) {
			return st, nil
		}
		return nil, err
	}

	st.seq = cp.StepSeq
	st.conv = conv
	st.state = cp.State
	st.step = cp.Step
	st.tokens = cp.TokensUsed
	st.abort = cp.AbortReason

	// a fresh process has no budget entry for the thread yet
	if !o.guard.Tracks(threadID) || o.guard.Usage(threadID).Used < cp.TokensUsed {
		o.guard.Restore(threadID, cp.TokensUsed, cp.AbortReason == types.AbortBudgetExceeded)
	}
	return st, nil
}

func (o *Orchestrator) loop(ctx context.Context, st *runState) (*Result, error) {
	for {
		if st.state.IsTerminal() {
			return o.finish(ctx, st)
		}
		if ctx.Err() != nil {
			st.terminate(types.AbortCancelled)
			continue
		}

		var err error
		switch st.state {
		case types.StateAwaitingReasoning:
			err = o.reason(ctx, st)
		case types.StateDispatchingTools, types.StateExecutingTools:
			err = o.dispatch(ctx, st)
		default:
			return nil, goerr.Wrap(model.ErrCorruptCheckpoint, "unknown state",
				goerr.V(model.ThreadIDKey, st.threadID), goerr.V(StateKey, st.state))
		}
		if err != nil {
			return nil, err
		}
	}
}

// reason runs one reasoning step from AwaitingReasoning
func (o *Orchestrator) reason(ctx context.Context, st *runState) error {
	logger := logging.From(ctx)

	req := &model.ReasoningRequest{
		ThreadID:     st.threadID,
		SystemPrompt: o.systemPrompt,
		History:      st.conv.Messages(),
		Tools:        o.registry.Specs(),
	}

	decision := o.guard.Check(st.threadID, o.estimator(req))
	if !decision.Allowed {
		logger.Warn("token budget exhausted", "used", decision.Used, "cap", decision.Cap)
		st.terminate(types.AbortBudgetExceeded)
		return nil
	}
	if decision.Warning && !st.warned {
		st.warned = true
		st.result.Warnings = append(st.result.Warnings,
			fmt.Sprintf("token usage is approaching the cap of %d tokens", decision.Cap))
	}

	var reasoning *model.Reasoning
	err := retry.Do(ctx, o.reasonRetry, func(ctx context.Context) error {
		var err error
		reasoning, err = o.reasoner.Reason(ctx, req)
		return err
	})
	if err != nil {
		o.guard.Release(st.threadID, decision.Reserved)
		if ctx.Err() != nil {
			st.terminate(types.AbortCancelled)
			return nil
		}
		logger.Error("reasoning failed", "error", err.Error(), "step", st.step+1)
		st.terminate(types.AbortReasoningFailure)
		return nil
	}

	st.step++
	commitErr := o.guard.Commit(st.threadID, decision.Reserved, reasoning.Tokens())
	st.tokens = o.guard.Usage(st.threadID).Used

	if reasoning.IsFinal() {
		st.conv = st.conv.Append(model.NewReasoningMessage(reasoning.Text))
		st.result.Answer = reasoning.Text
		st.state = types.StateAnswered
		return nil
	}

	if commitErr != nil {
		logger.Warn("token budget exceeded by reasoning step", "error", commitErr.Error())
		st.skip(reasoning, "not dispatched: token budget exceeded")
		st.terminate(types.AbortBudgetExceeded)
		return nil
	}
	if st.step >= o.maxSteps {
		logger.Warn("step ceiling reached with pending tool calls", "step", st.step, "max_steps", o.maxSteps)
		st.skip(reasoning, "not dispatched: step ceiling reached")
		st.terminate(types.AbortStepLimit)
		return nil
	}

	st.conv = st.conv.Append(model.NewToolCallMessage(reasoning.Text, reasoning.ToolCalls))
	st.state = types.StateDispatchingTools
	return o.checkpoint(ctx, st)
}

// dispatch executes the tool calls of the last reasoning step
func (o *Orchestrator) dispatch(ctx context.Context, st *runState) error {
	last := st.conv.Last()
	if last == nil || last.Kind != model.MessageKindToolCall {
		return goerr.Wrap(model.ErrCorruptCheckpoint, "dispatch state without pending tool calls",
			goerr.V(model.ThreadIDKey, st.threadID))
	}

	st.state = types.StateExecutingTools
	results := o.execute(ctx, st.threadID, last.ToolCall.Calls)

	fatal := false
	msgs := make([]model.Message, len(results))
	for i, r := range results {
		msgs[i] = model.NewToolResultMessage(r)
		if r.Fatal {
			fatal = true
		}
		st.collect(r)
	}
	st.conv = st.conv.Append(msgs...)

	switch {
	case ctx.Err() != nil:
		st.terminate(types.AbortCancelled)
		return nil
	case fatal:
		st.terminate(types.AbortFatalToolFailure)
		return nil
	}

	st.state = types.StateAwaitingReasoning
	return o.checkpoint(ctx, st)
}

// finish writes the terminal checkpoint. It runs even when the run was cancelled.
func (o *Orchestrator) finish(ctx context.Context, st *runState) (*Result, error) {
	if err := o.checkpoint(context.WithoutCancel(ctx), st); err != nil {
		return nil, err
	}

	r := st.result
	r.State = st.state
	r.AbortReason = st.abort
	r.Steps = st.step
	r.TokensUsed = st.tokens

	logging.From(ctx).Info("turn finished",
		"state", st.state, "abort_reason", st.abort, "steps", st.step, "tokens_used", st.tokens)
	return r, nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, st *runState) error {
	cp := &model.Checkpoint{
		ThreadID:    st.threadID,
		StepSeq:     st.seq + 1,
		Messages:    st.conv.Messages(),
		TokensUsed:  st.tokens,
		State:       st.state,
		Step:        st.step,
		AbortReason: st.abort,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.store.Append(ctx, cp); err != nil {
		return goerr.Wrap(err, "failed to write checkpoint",
			goerr.V(model.ThreadIDKey, st.threadID), goerr.V(model.StepSeqKey, cp.StepSeq), goerr.V(StateKey, st.state))
	}
	st.seq = cp.StepSeq
	return nil
}

func (st *runState) terminate(reason types.AbortReason) {
	st.state = types.StateAborted
	st.abort = reason
}

// skip records a paid-for reasoning step whose tool calls will never run, each
// answered with a cancelled result so the history stays paired
func (st *runState) skip(reasoning *model.Reasoning, why string) {
	msgs := make([]model.Message, 0, len(reasoning.ToolCalls)+1)
	msgs = append(msgs, model.NewToolCallMessage(reasoning.Text, reasoning.ToolCalls))
	for _, c := range reasoning.ToolCalls {
		msgs = append(msgs, model.NewToolResultMessage(model.ToolResult{
			CallID: c.ID,
			Name:   c.Name,
			Status: types.ToolStatusCancelled,
			Error:  why,
		}))
	}
	st.conv = st.conv.Append(msgs...)
}

// collect feeds the result accumulators: snippets from retrieval, outputs from analyses
func (st *runState) collect(r model.ToolResult) {
	if !r.OK() {
		return
	}
	if raw, ok := r.Output["snippets"].([]any); ok {
		for _, s := range raw {
			if m, ok := s.(map[string]any); ok {
				st.result.Snippets = append(st.result.Snippets, m)
			}
		}
		return
	}
	st.result.ToolOutputs = append(st.result.ToolOutputs, ToolOutput{Name: r.Name, Output: r.Output})
}
