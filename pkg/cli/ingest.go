package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdIngest() *cli.Command {
	var rt runtime
	var source string
	var skipMalformed bool
	var batchSize int

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "source",
			Aliases:     []string{"s"},
			Usage:       "CSV file, directory of CSV files, or gs://bucket/prefix",
			Required:    true,
			Sources:     cli.EnvVars("REVIEWSAGE_INGEST_SOURCE"),
			Destination: &source,
		},
		&cli.BoolFlag{
			Name:        "skip-malformed",
			Usage:       "Log and drop records that fail validation instead of aborting",
			Destination: &skipMalformed,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "Chunks per embedding call (overrides [ingest] batch_size)",
			Destination: &batchSize,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Build and index chunks from review CSVs",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			var extra []usecase.Option
			if batchSize > 0 {
				extra = append(extra, usecase.WithBatchSize(batchSize))
			}

			uc, closer, err := rt.build(ctx, extra...)
			if err != nil {
				return err
			}
			defer closer()

			report, err := uc.Ingest.Ingest(ctx, source, skipMalformed)
			if err != nil {
				return goerr.Wrap(err, "ingest failed")
			}

			fmt.Printf("Indexed %d records: %d review chunks, %d sentence chunks\n",
				report.Records, report.Coarse, report.Fine)
			return nil
		},
	}
}
