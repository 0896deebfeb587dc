package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"codecheckout/cmd/codecheckout/commands"
	"codecheckout/internal/cache"
	"codecheckout/internal/config"
	"codecheckout/pkg/codecheckout"
	"codecheckout/pkg/contracts/domain"
)

type stubClient struct {
	valid bool
}

func (s stubClient) Validate(context.Context, codecheckout.ValidateRequest) codecheckout.ValidateResult {
	return codecheckout.ValidateResult{IsValid: s.valid}
}

func (stubClient) LogEvent(context.Context, codecheckout.Event) domain.AnalyticsEventResponse {
	return domain.AnalyticsEventResponse{}
}

func (stubClient) GenerateCheckoutURL(context.Context, codecheckout.CheckoutParams) (domain.CheckoutSession, error) {
	return domain.CheckoutSession{}, nil
}

func (stubClient) ClearCache(context.Context) {}

func (stubClient) MachineID(context.Context) (string, error) { return "", nil }

func (stubClient) CacheBackend() cache.Kind { return cache.KindMemory }

func (stubClient) Close(context.Context) error { return nil }

func stubDeps(valid bool) commands.Deps {
	return commands.Deps{
		NewClient: func(*config.Config, *slog.Logger) (commands.Client, error) {
			return stubClient{valid: valid}, nil
		},
	}
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		valid bool
		want  int
	}{
		{"version", []string{"version"}, false, exitOK},
		{"valid license", []string{"validate", "K", "--log-level", "error"}, true, exitOK},
		{"invalid license", []string{"validate", "K", "--log-level", "error"}, false, exitInvalid},
		{"bad flag value", []string{"validate", "--cache", "redis"}, true, exitError},
		{"unknown command", []string{"nope"}, true, exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			got := run(context.Background(), tt.args, &stdout, &stderr, stubDeps(tt.valid))
			assert.Equal(t, tt.want, got, stderr.String())
		})
	}
}

func TestRun_ErrorsGoToStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	run(context.Background(), []string{"validate", "--cache", "redis"}, &stdout, &stderr, stubDeps(true))

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Error: config validation failed")
}
