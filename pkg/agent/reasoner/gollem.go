package reasoner

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

// Gollem is a Reasoner backed by a gollem LLM client. It keeps one session per
// thread and feeds it only the messages it has not seen yet. A thread without a
// live session, e.g. after a restart, gets a fresh session primed with a
// transcript of the whole history.
type Gollem struct {
	llm gollem.LLMClient

	mu       sync.Mutex
	sessions map[model.ThreadID]*threadSession
}

var _ interfaces.Reasoner = (*Gollem)(nil)

type threadSession struct {
	session gollem.Session
	// fed is the number of history messages the session has already seen
	fed int
}

// New creates a Gollem reasoner
func New(llm gollem.LLMClient) (*Gollem, error) {
	if llm == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &Gollem{
		llm:      llm,
		sessions: make(map[model.ThreadID]*threadSession),
	}, nil
}

// Reason runs one reasoning step. Only one step per thread is in flight at a time,
// which the orchestrator guarantees.
func (g *Gollem) Reason(ctx context.Context, req *model.ReasoningRequest) (*model.Reasoning, error) {
	if req == nil || len(req.History) == 0 {
		return nil, goerr.New("reasoning needs a non-empty history")
	}

	ts, inputs := g.take(req.ThreadID, req.History)
	if ts == nil {
		session, err := g.llm.NewSession(ctx, g.sessionOptions(req)...)
		if err != nil {
			return nil, goerr.Wrap(model.ErrCapability, "failed to create LLM session",
				goerr.V(model.ThreadIDKey, req.ThreadID), goerr.V("cause", err.Error()))
		}
		ts = &threadSession{session: session}
		inputs = coldInputs(req.History)
		logging.From(ctx).Debug("started reasoning session", "thread_id", req.ThreadID, "history", len(req.History))
	}

	resp, err := ts.session.GenerateContent(ctx, inputs...)
	if err != nil {
		// the session state is unknown after a failure, so it is not returned to the cache
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, goerr.Wrap(model.ErrCapability, "failed to generate reasoning",
			goerr.V(model.ThreadIDKey, req.ThreadID), goerr.V("cause", err.Error()))
	}
	if resp == nil {
		return nil, goerr.Wrap(model.ErrCapability, "LLM returned no response", goerr.V(model.ThreadIDKey, req.ThreadID))
	}

	ts.fed = len(req.History)
	g.put(req.ThreadID, ts)

	return toReasoning(resp), nil
}

// Forget drops the cached session of the thread
func (g *Gollem) Forget(threadID model.ThreadID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, threadID)
}

// take removes the cached session and returns it with the inputs to feed, or nil
// when the session cannot continue from this history.
func (g *Gollem) take(threadID model.ThreadID, history []model.Message) (*threadSession, []gollem.Input) {
	g.mu.Lock()
	ts, ok := g.sessions[threadID]
	delete(g.sessions, threadID)
	g.mu.Unlock()

	if !ok || ts.fed >= len(history) {
		return nil, nil
	}

	inputs := deltaInputs(history[ts.fed:])
	if len(inputs) == 0 {
		return nil, nil
	}
	return ts, inputs
}

func (g *Gollem) put(threadID model.ThreadID, ts *threadSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[threadID] = ts
}

func (g *Gollem) sessionOptions(req *model.ReasoningRequest) []gollem.SessionOption {
	var opts []gollem.SessionOption
	if req.SystemPrompt != "" {
		opts = append(opts, gollem.WithSessionSystemPrompt(req.SystemPrompt))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollem.Tool, len(req.Tools))
		for i, spec := range req.Tools {
			tools[i] = &specOnly{spec: spec}
		}
		opts = append(opts, gollem.WithSessionTools(tools...))
	}
	return opts
}

// coldInputs primes a new session. A history made of user messages only is fed as is.
func coldInputs(history []model.Message) []gollem.Input {
	for _, m := range history {
		if m.Kind != model.MessageKindUser {
			return []gollem.Input{gollem.Text(renderTranscript(history))}
		}
	}
	return deltaInputs(history)
}

// deltaInputs converts messages the session has not seen. Reasoning and tool call
// messages are the session's own output and are already part of its history.
func deltaInputs(delta []model.Message) []gollem.Input {
	var inputs []gollem.Input
	for _, m := range delta {
		switch m.Kind {
		case model.MessageKindUser:
			inputs = append(inputs, gollem.Text(m.User.Text))
		case model.MessageKindToolResult:
			r := m.ToolResult.Result
			fr := gollem.FunctionResponse{
				ID:   r.CallID,
				Name: r.Name,
				Data: r.Output,
			}
			if !r.OK() {
				msg := r.Error
				if msg == "" {
					msg = string(r.Status)
				}
				fr.Error = goerr.New(msg, goerr.V("status", r.Status))
			}
			inputs = append(inputs, fr)
		}
	}
	return inputs
}

func toReasoning(resp *gollem.Response) *model.Reasoning {
	r := &model.Reasoning{
		Text:         strings.TrimSpace(strings.Join(resp.Texts, "\n")),
		InputTokens:  resp.InputToken,
		OutputTokens: resp.OutputToken,
	}
	for _, fc := range resp.FunctionCalls {
		if fc == nil {
			continue
		}
		id := fc.ID
		if id == "" {
			id = uuid.NewString()
		}
		r.ToolCalls = append(r.ToolCalls, model.ToolCall{
			ID:        id,
			Name:      fc.Name,
			Arguments: fc.Arguments,
		})
	}
	return r
}

// specOnly advertises a tool to the LLM. Calls are executed by the orchestrator,
// never by the session.
type specOnly struct {
	spec gollem.ToolSpec
}

func (s *specOnly) Spec() gollem.ToolSpec {
	return s.spec
}

func (s *specOnly) Run(context.Context, map[string]any) (map[string]any, error) {
	return nil, goerr.New("tool is executed by the orchestrator", goerr.V(model.ToolNameKey, s.spec.Name))
}
