package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
)

// ContextCloser is a resource whose release takes a context, such as a repository backend
type ContextCloser interface {
	Close(ctx context.Context) error
}

// Close closes an io.Closer and logs any error. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}

// CloseContext is Close for a ContextCloser
func CloseContext(ctx context.Context, closer ContextCloser) {
	if closer == nil {
		return
	}
	if err := closer.Close(ctx); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}
