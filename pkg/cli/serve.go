package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/reviewsage/pkg/controller/http"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var rt runtime
	var addr string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("REVIEWSAGE_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := rt.build(ctx)
			if err != nil {
				return err
			}
			defer closer()

			handler := httpctrl.New(uc.Agent, uc.Retrieval, httpctrl.WithAnswerer(uc.Answer))
			server := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				// async turns checkpoint at every step, so an unfinished one can be resumed later
				if err := handler.Drain(shutdownCtx); err != nil {
					logging.Default().Warn("async turns still running at shutdown", "error", err.Error())
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
