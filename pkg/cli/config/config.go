package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/budget"
	"github.com/secmon-lab/reviewsage/pkg/service/retrieval"
	"github.com/secmon-lab/reviewsage/pkg/usecase"
	"github.com/secmon-lab/reviewsage/pkg/utils/retry"
	"github.com/urfave/cli/v3"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Retrieval Retrieval `toml:"retrieval"`
	Budget    Budget    `toml:"budget"`
	Agent     Agent     `toml:"agent"`
	Ingest    Ingest    `toml:"ingest"`
	Groups    []Group   `toml:"group"`

	path string
}

// Retrieval tunes the backoff of embedding and index calls
type Retrieval struct {
	RetryAttempts int    `toml:"retry_attempts"`
	RetryDelay    string `toml:"retry_delay"`
}

// Budget is the per-thread token budget
type Budget struct {
	Cap          int64   `toml:"cap"`
	WarningRatio float64 `toml:"warning_ratio"`
}

// Agent tunes the orchestrator loop
type Agent struct {
	MaxSteps        int    `toml:"max_steps"`
	ToolTimeout     string `toml:"tool_timeout"`
	ToolConcurrency int    `toml:"tool_concurrency"`
}

// Ingest tunes corpus ingestion
type Ingest struct {
	BatchSize int `toml:"batch_size"`
}

// Group gives a review group a display name
type Group struct {
	Tag  string `toml:"tag"`
	Name string `toml:"name"`
}

// Validate checks if the Group is valid
func (g *Group) Validate() error {
	if err := types.GroupTag(g.Tag).Validate(); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid group tag", goerr.V(GroupKey, g.Tag), goerr.V("cause", err.Error()))
	}
	if g.Name == "" {
		return goerr.Wrap(ErrMissingName, "group name is required", goerr.V(GroupKey, g.Tag))
	}
	return nil
}

func parseDuration(section, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, goerr.Wrap(ErrInvalidConfig, "invalid duration", goerr.V(SectionKey, section), goerr.V("value", value))
	}
	return d, nil
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	if a.Retrieval.RetryAttempts < 0 {
		return goerr.Wrap(ErrInvalidConfig, "retry_attempts must not be negative", goerr.V(SectionKey, "retrieval"))
	}
	if _, err := parseDuration("retrieval", a.Retrieval.RetryDelay); err != nil {
		return err
	}

	if a.Budget.Cap < 0 {
		return goerr.Wrap(ErrInvalidConfig, "cap must not be negative", goerr.V(SectionKey, "budget"))
	}
	if a.Budget.WarningRatio < 0 || a.Budget.WarningRatio > 1 {
		return goerr.Wrap(ErrInvalidConfig, "warning_ratio must be within [0, 1]",
			goerr.V(SectionKey, "budget"), goerr.V("warning_ratio", a.Budget.WarningRatio))
	}

	if a.Agent.MaxSteps < 0 {
		return goerr.Wrap(ErrInvalidConfig, "max_steps must not be negative", goerr.V(SectionKey, "agent"))
	}
	if a.Agent.ToolConcurrency < 0 {
		return goerr.Wrap(ErrInvalidConfig, "tool_concurrency must not be negative", goerr.V(SectionKey, "agent"))
	}
	if _, err := parseDuration("agent", a.Agent.ToolTimeout); err != nil {
		return err
	}

	if a.Ingest.BatchSize < 0 {
		return goerr.Wrap(ErrInvalidConfig, "batch_size must not be negative", goerr.V(SectionKey, "ingest"))
	}

	seen := make(map[string]bool)
	for _, g := range a.Groups {
		if err := g.Validate(); err != nil {
			return goerr.Wrap(err, "invalid group")
		}
		if seen[g.Tag] {
			return goerr.Wrap(ErrDuplicateGroup, "group is configured twice", goerr.V(GroupKey, g.Tag))
		}
		seen[g.Tag] = true
	}

	return nil
}

// LoadAppConfiguration loads the application configuration from a TOML file
func LoadAppConfiguration(path string) (*AppConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var config AppConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path), goerr.V("cause", err.Error()))
	}

	if err := config.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return &config, nil
}

// Flags returns CLI flags for the configuration file
func (a *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the TOML configuration file (defaults apply when omitted)",
			Sources:     cli.EnvVars("REVIEWSAGE_CONFIG"),
			Destination: &a.path,
		},
	}
}

// Configure loads the file given by --config, or returns the defaults
func (a *AppConfig) Configure() (*AppConfig, error) {
	if a.path == "" {
		return &AppConfig{}, nil
	}
	return LoadAppConfiguration(a.path)
}

// GroupNames returns the display name of every configured group
func (a *AppConfig) GroupNames() map[types.GroupTag]string {
	names := make(map[types.GroupTag]string, len(a.Groups))
	for _, g := range a.Groups {
		names[types.GroupTag(g.Tag)] = g.Name
	}
	return names
}

// UseCaseOptions converts the configuration to use case options. Zero values keep the defaults.
func (a *AppConfig) UseCaseOptions() []usecase.Option {
	opts := []usecase.Option{usecase.WithGroupNames(a.GroupNames())}

	if a.Retrieval.RetryAttempts > 0 || a.Retrieval.RetryDelay != "" {
		p := retry.Default()
		if a.Retrieval.RetryAttempts > 0 {
			p.Attempts = a.Retrieval.RetryAttempts
		}
		if d, _ := parseDuration("retrieval", a.Retrieval.RetryDelay); d > 0 {
			p.BaseDelay = d
		}
		opts = append(opts, usecase.WithRetrievalOptions(retrieval.WithRetryPolicy(p)))
	}

	if a.Budget.Cap > 0 {
		opts = append(opts, usecase.WithBudgetCap(a.Budget.Cap))
	} else {
		opts = append(opts, usecase.WithBudgetCap(budget.DefaultCap))
	}
	if a.Budget.WarningRatio > 0 {
		opts = append(opts, usecase.WithBudgetWarningRatio(a.Budget.WarningRatio))
	}

	if a.Agent.MaxSteps > 0 {
		opts = append(opts, usecase.WithAgentMaxSteps(a.Agent.MaxSteps))
	}
	var orch []usecase.OrchestratorOption
	if d, _ := parseDuration("agent", a.Agent.ToolTimeout); d > 0 {
		orch = append(orch, usecase.WithToolTimeout(d))
	}
	if a.Agent.ToolConcurrency > 0 {
		orch = append(orch, usecase.WithToolConcurrency(a.Agent.ToolConcurrency))
	}
	if len(orch) > 0 {
		opts = append(opts, usecase.WithOrchestratorOptions(orch...))
	}

	if a.Ingest.BatchSize > 0 {
		opts = append(opts, usecase.WithBatchSize(a.Ingest.BatchSize))
	}

	return opts
}
