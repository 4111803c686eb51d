package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
	"github.com/secmon-lab/reviewsage/pkg/utils/errutil"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

const maxBodyBytes = 1 << 20

type messageRequest struct {
	Question string `json:"question"`
}

type acceptedResponse struct {
	ThreadID model.ThreadID `json:"thread_id"`
}

type threadResponse struct {
	ThreadID    model.ThreadID    `json:"thread_id"`
	StepSeq     int64             `json:"step_seq"`
	State       types.StateTag    `json:"state"`
	AbortReason types.AbortReason `json:"abort_reason,omitempty"`
	Step        int               `json:"step"`
	TokensUsed  int64             `json:"tokens_used"`
	Messages    []model.Message   `json:"messages"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type groupResponse struct {
	Group   types.GroupTag `json:"group"`
	Records int            `json:"records"`
}

type answerRequest struct {
	Question  string `json:"question"`
	Vendor    string `json:"vendor,omitempty"`
	ChunkType string `json:"chunk_type,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

type answerResponse struct {
	Answer   string   `json:"answer"`
	Snippets []string `json:"snippets"`
}

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrThreadBusy),
		errors.Is(err, model.ErrThreadTerminated),
		errors.Is(err, usecase.ErrThreadInterrupted):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrEmptyQuestion),
		errors.Is(err, model.ErrUnknownGroup),
		errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrEmptyIndex):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrCapability):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return goerr.Wrap(err, "invalid request body")
	}
	return nil
}

// wantsAsync reports whether the client asked not to wait for the turn to finish
func wantsAsync(r *http.Request) bool {
	return r.URL.Query().Get("async") == "true"
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.Groups(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	resp := make([]groupResponse, len(groups))
	for i, g := range groups {
		resp[i] = groupResponse{Group: g.Group, Records: g.Records}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"groups": resp})
}

// handleCreateThread starts a turn on a new thread id
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	s.postMessage(w, r, model.ThreadID(uuid.NewString()))
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	s.postMessage(w, r, threadIDFrom(r.Context()))
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request, threadID model.ThreadID) {
	var req messageRequest
	if err := decodeBody(w, r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(usecase.ErrEmptyQuestion, "question is required"), http.StatusBadRequest)
		return
	}

	if wantsAsync(r) {
		s.jobs.Dispatch(r.Context(), func(ctx context.Context) error {
			_, err := s.threads.Run(ctx, threadID, req.Question)
			return err
		})
		writeJSON(w, r, http.StatusAccepted, acceptedResponse{ThreadID: threadID})
		return
	}

	result, err := s.threads.Run(r.Context(), threadID, req.Question)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := threadIDFrom(r.Context())

	if wantsAsync(r) {
		// fail fast on threads that cannot be resumed
		cp, err := s.threads.Thread(r.Context(), threadID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
			return
		}
		if cp.State.IsTerminal() {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrThreadTerminated, "thread is not mid-turn"), http.StatusConflict)
			return
		}

		s.jobs.Dispatch(r.Context(), func(ctx context.Context) error {
			_, err := s.threads.Resume(ctx, threadID)
			return err
		})
		writeJSON(w, r, http.StatusAccepted, acceptedResponse{ThreadID: threadID})
		return
	}

	result, err := s.threads.Resume(r.Context(), threadID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	threadID := threadIDFrom(r.Context())
	cancelled := s.threads.Cancel(threadID)
	logging.From(r.Context()).Info("cancel requested", "thread_id", threadID, "cancelled", cancelled)
	writeJSON(w, r, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	cp, err := s.threads.Thread(r.Context(), threadIDFrom(r.Context()))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	writeJSON(w, r, http.StatusOK, threadResponse{
		ThreadID:    cp.ThreadID,
		StepSeq:     cp.StepSeq,
		State:       cp.State,
		AbortReason: cp.AbortReason,
		Step:        cp.Step,
		TokensUsed:  cp.TokensUsed,
		Messages:    cp.Messages,
		UpdatedAt:   cp.CreatedAt,
	})
}

func (s *Server) handleEndThread(w http.ResponseWriter, r *http.Request) {
	if err := s.threads.End(r.Context(), threadIDFrom(r.Context())); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeBody(w, r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
		return
	}

	q := retrieval.NewQuery(req.Question)
	if req.Vendor != "" {
		q.Group = types.GroupTag(req.Vendor)
	}
	if req.ChunkType != "" {
		level, err := types.ParseChunkLevel(req.ChunkType)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}
		q.Level = level
	}
	if req.TopK > 0 {
		q.TopK = req.TopK
		if q.FetchK < q.TopK {
			q.FetchK = q.TopK * 2
		}
	}

	ans, err := s.answer.Simple(r.Context(), q)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	resp := answerResponse{Answer: ans.Answer, Snippets: make([]string, len(ans.Snippets))}
	for i, sn := range ans.Snippets {
		resp.Snippets[i] = sn.Chunk.ID
	}
	writeJSON(w, r, http.StatusOK, resp)
}
