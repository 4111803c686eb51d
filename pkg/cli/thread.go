package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/cli/config"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

// cmdEnd deletes the checkpoints of a thread. Budgets and reasoning sessions
// live in the process that ran the thread, so only the durable state is left.
func cmdEnd() *cli.Command {
	var repoCfg config.Repository
	var threadID string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "thread",
			Aliases:     []string{"t"},
			Usage:       "Thread ID to end",
			Required:    true,
			Destination: &threadID,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "end",
		Usage: "End a thread and delete its checkpoints",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer closeRepository(ctx, repo)()

			if err := repo.Checkpoint().Delete(ctx, model.ThreadID(threadID)); err != nil {
				return goerr.Wrap(err, "failed to end thread", goerr.V(model.ThreadIDKey, threadID))
			}
			fmt.Printf("thread %s ended\n", threadID)
			return nil
		},
	}
}

func cmdGroups() *cli.Command {
	var repoCfg config.Repository

	return &cli.Command{
		Name:  "groups",
		Usage: "List indexed review groups",
		Flags: repoCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer closeRepository(ctx, repo)()

			groups, err := repo.Chunk().Groups(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list groups")
			}
			if len(groups) == 0 {
				fmt.Println("no groups indexed; run ingest first")
				return nil
			}
			for _, g := range groups {
				fmt.Printf("%-24s %d reviews\n", g.Group, g.Records)
			}
			return nil
		},
	}
}
