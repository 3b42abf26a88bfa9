package service

import (
	"io"
	"log/slog"
	"testing"

	"github.com/synadia-labs/workload-probe/internal/config"
)

func testConfig(mutate ...func(*config.Config)) *config.Config {
	cfg := config.Default()
	for _, m := range mutate {
		m(&cfg)
	}
	return &cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProbe(t *testing.T, mutate ...func(*config.Config)) Probe {
	t.Helper()
	return NewProbe(testConfig(mutate...), testLogger())
}
