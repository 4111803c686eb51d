package config

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Sentry holds configuration for error reporting
type Sentry struct {
	dsn string `masq:"secret"`
	env string
}

// Flags returns CLI flags for Sentry configuration
func (s *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for error reporting (disabled when empty)",
			Sources:     cli.EnvVars("REVIEWSAGE_SENTRY_DSN"),
			Destination: &s.dsn,
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment name",
			Value:       "development",
			Sources:     cli.EnvVars("REVIEWSAGE_SENTRY_ENV"),
			Destination: &s.env,
		},
	}
}

// LogAttrs returns log attributes for the Sentry configuration
func (s *Sentry) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Bool("enabled", s.dsn != ""),
		slog.String("env", s.env),
	}
}

// Configure initializes the Sentry SDK. The returned closer flushes buffered events.
// It is a no-op when no DSN is configured.
func (s *Sentry) Configure() (func(), error) {
	if s.dsn == "" {
		return func() {}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         s.dsn,
		Environment: s.env,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to initialize sentry")
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}
