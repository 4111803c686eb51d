package config_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/cli/config"
)

func TestConfigErrors_SentinelIdentification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		sentinelError error
		wantMatch     bool
	}{
		{
			name:          "ErrConfigNotFound can be identified",
			err:           goerr.Wrap(config.ErrConfigNotFound, "failed to load config"),
			sentinelError: config.ErrConfigNotFound,
			wantMatch:     true,
		},
		{
			name:          "ErrInvalidConfig can be identified",
			err:           goerr.Wrap(config.ErrInvalidConfig, "validation failed"),
			sentinelError: config.ErrInvalidConfig,
			wantMatch:     true,
		},
		{
			name:          "ErrDuplicateGroup is not ErrInvalidConfig",
			err:           goerr.Wrap(config.ErrDuplicateGroup, "duplicate"),
			sentinelError: config.ErrInvalidConfig,
			wantMatch:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, errors.Is(tt.err, tt.sentinelError)).Equal(tt.wantMatch)
		})
	}
}
