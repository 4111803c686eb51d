package http

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/utils/errutil"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

type threadIDKey struct{}

// requestLogger attaches a logger carrying the request id to the request context
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.From(r.Context()).With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logging.With(r.Context(), logger)))
	})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// threadIDValidator rejects malformed thread ids before they reach the stores
func threadIDValidator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !threadIDPattern.MatchString(id) {
			errutil.HandleHTTP(r.Context(), w, goerr.New("invalid thread id", goerr.V(model.ThreadIDKey, id)), http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(r.Context(), threadIDKey{}, model.ThreadID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func threadIDFrom(ctx context.Context) model.ThreadID {
	id, _ := ctx.Value(threadIDKey{}).(model.ThreadID)
	return id
}
