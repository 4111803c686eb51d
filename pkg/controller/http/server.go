package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
	"github.com/secmon-lab/reviewsage/pkg/utils/async"
)

// ThreadUseCase drives agent threads
type ThreadUseCase interface {
	Run(ctx context.Context, threadID model.ThreadID, question string) (*usecase.Result, error)
	Resume(ctx context.Context, threadID model.ThreadID) (*usecase.Result, error)
	Cancel(threadID model.ThreadID) bool
	Thread(ctx context.Context, threadID model.ThreadID) (*model.Checkpoint, error)
	End(ctx context.Context, threadID model.ThreadID) error
}

// GroupLister lists the indexed review groups
type GroupLister interface {
	Groups(ctx context.Context) ([]model.GroupStat, error)
}

// Answerer answers a question in a single retrieve-then-generate call
type Answerer interface {
	Simple(ctx context.Context, q retrieval.Query) (*usecase.SimpleAnswer, error)
}

type Server struct {
	router  *chi.Mux
	threads ThreadUseCase
	groups  GroupLister
	answer  Answerer
	jobs    *async.Group
}

type Options func(*Server)

func WithAnswerer(a Answerer) Options {
	return func(s *Server) {
		s.answer = a
	}
}

func New(threads ThreadUseCase, groups GroupLister, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:  r,
		threads: threads,
		groups:  groups,
		jobs:    &async.Group{},
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/groups", s.handleGroups)

		if s.answer != nil {
			r.Post("/answer", s.handleAnswer)
		}

		r.Post("/threads", s.handleCreateThread)
		r.Route("/threads/{id}", func(r chi.Router) {
			r.Use(threadIDValidator)
			r.Get("/", s.handleGetThread)
			r.Delete("/", s.handleEndThread)
			r.Post("/messages", s.handlePostMessage)
			r.Post("/resume", s.handleResume)
			r.Post("/cancel", s.handleCancel)
		})
	})

	return s
}

// Drain waits for turns started with ?async=true to finish
func (s *Server) Drain(ctx context.Context) error {
	return s.jobs.Wait(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
