package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/agent/tool"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
	"github.com/urfave/cli/v3"
)

var (
	progressColor = color.New(color.FgCyan)
	warnColor     = color.New(color.FgYellow)
	abortColor    = color.New(color.FgRed, color.Bold)
	headerColor   = color.New(color.Bold)
)

// progressOptions prints tool progress and budget warnings as they happen
func progressOptions(w io.Writer) []usecase.Option {
	return []usecase.Option{
		usecase.WithOrchestratorOptions(usecase.WithProgress(func(_ context.Context, _ model.ThreadID, p tool.Progress) {
			progressColor.Fprintf(w, "  [%s] %s\n", p.Tool, p.Message) //nolint:errcheck
		})),
		usecase.WithBudgetWarning(func(u model.TokenUsage) {
			warnColor.Fprintf(w, "  ! %d of %d tokens used\n", u.Used, u.Cap) //nolint:errcheck
		}),
	}
}

func printResult(w io.Writer, res *usecase.Result) {
	headerColor.Fprintf(w, "thread %s", res.ThreadID) //nolint:errcheck
	fmt.Fprintf(w, " (%d steps, %d tokens)\n", res.Steps, res.TokensUsed)

	for _, warning := range res.Warnings {
		warnColor.Fprintf(w, "warning: %s\n", warning) //nolint:errcheck
	}

	if res.State == types.StateAborted {
		abortColor.Fprintf(w, "aborted: %s\n", res.AbortReason) //nolint:errcheck
		if res.AbortReason == types.AbortBudgetExceeded {
			fmt.Fprintln(w, "The token budget of this thread is spent; end it and start a new one.")
		}
		return
	}

	fmt.Fprintf(w, "\n%s\n", res.Answer)
	if len(res.Snippets) > 0 {
		headerColor.Fprintf(w, "\nevidence: %d snippets\n", len(res.Snippets)) //nolint:errcheck
	}
}

func cmdAsk() *cli.Command {
	var rt runtime
	var threadID string
	var simple bool
	var vendor string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "thread",
			Aliases:     []string{"t"},
			Usage:       "Thread ID to continue (a new thread is created when omitted)",
			Destination: &threadID,
		},
		&cli.BoolFlag{
			Name:        "simple",
			Usage:       "Answer in a single retrieve-then-generate call without tools or a thread",
			Destination: &simple,
		},
		&cli.StringFlag{
			Name:        "vendor",
			Usage:       "Restrict --simple retrieval to one group",
			Destination: &vendor,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question about the indexed reviews",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.Wrap(usecase.ErrEmptyQuestion, "a question argument is required")
			}

			uc, closer, err := rt.build(ctx, progressOptions(os.Stderr)...)
			if err != nil {
				return err
			}
			defer closer()

			if simple {
				q := retrieval.NewQuery(question)
				q.Group = types.GroupTag(vendor)
				ans, err := uc.Answer.Simple(ctx, q)
				if err != nil {
					return err
				}
				fmt.Println(ans.Answer)
				return nil
			}

			if threadID == "" {
				threadID = uuid.NewString()
			}
			res, err := uc.Agent.Run(ctx, model.ThreadID(threadID), question)
			if err != nil {
				return err
			}
			printResult(os.Stdout, res)
			return nil
		},
	}
}

func cmdResume() *cli.Command {
	var rt runtime
	var threadID string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "thread",
			Aliases:     []string{"t"},
			Usage:       "Thread ID to resume",
			Required:    true,
			Destination: &threadID,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:  "resume",
		Usage: "Continue an interrupted turn from its latest checkpoint",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := rt.build(ctx, progressOptions(os.Stderr)...)
			if err != nil {
				return err
			}
			defer closer()

			res, err := uc.Agent.Resume(ctx, model.ThreadID(threadID))
			if err != nil {
				return err
			}
			printResult(os.Stdout, res)
			return nil
		},
	}
}
