package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/cli/config"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
	"github.com/secmon-lab/reviewsage/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

// runtime bundles the flag groups every LLM-backed command shares
type runtime struct {
	app    config.AppConfig
	repo   config.Repository
	gemini config.Gemini
}

func (r *runtime) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, r.app.Flags()...)
	flags = append(flags, r.repo.Flags()...)
	flags = append(flags, r.gemini.Flags()...)
	return flags
}

// build opens the repository and wires the use cases. The returned closer
// releases the repository.
func (r *runtime) build(ctx context.Context, extra ...usecase.Option) (*usecase.UseCases, func(), error) {
	appCfg, err := r.app.Configure()
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load configuration")
	}

	llm, err := r.gemini.Configure(ctx)
	if err != nil {
		return nil, nil, err
	}

	repo, err := r.repo.Configure(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize repository")
	}
	closer := closeRepository(ctx, repo)

	opts := append(appCfg.UseCaseOptions(), r.gemini.UseCaseOptions()...)
	opts = append(opts, extra...)
	uc, err := usecase.New(ctx, repo, llm, opts...)
	if err != nil {
		closer()
		return nil, nil, goerr.Wrap(err, "failed to initialize use cases")
	}
	return uc, closer, nil
}

func closeRepository(ctx context.Context, repo interfaces.Repository) func() {
	return func() { safe.CloseContext(ctx, repo) }
}
