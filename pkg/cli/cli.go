package cli

import (
	"context"

	"github.com/secmon-lab/reviewsage/pkg/cli/config"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string, version string) error {
	var loggerCfg config.Logger
	var sentryCfg config.Sentry
	closers := []func(){}

	flags := append(loggerCfg.Flags(), sentryCfg.Flags()...)

	app := &cli.Command{
		Name:    "reviewsage",
		Usage:   "Agentic question answering over customer reviews",
		Version: version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closers = append(closers, f)

			g, err := sentryCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closers = append(closers, g)

			logging.Default().Info("Starting reviewsage", "logger", loggerCfg, "sentry", sentryCfg.LogAttrs())
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdIngest(),
			cmdAsk(),
			cmdResume(),
			cmdEnd(),
			cmdGroups(),
			cmdServe(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}

	return nil
}
