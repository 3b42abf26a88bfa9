package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/synadia-labs/workload-probe/internal/config"
)

// Probe is the set of operations exposed by every transport. Implementations
// hold no cross-request state.
type Probe interface {
	// always "OK", used as a liveness check
	Health() string

	// run a command on the host without a shell
	RunCommand(ctx context.Context, command string) (*RunResult, error)

	// read a text file, path is relative to /
	ReadFile(path string) (*FileContent, error)

	// write a text file, creating missing parent directories
	WriteFile(path string, content string) (*WriteResult, error)
}

func NewProbe(cfg *config.Config, log *slog.Logger) Probe {
	return &probe{
		log:          log,
		maxFileBytes: cfg.Limits.MaxFileBytes,
		execTimeout:  cfg.Exec.Timeout,
		killGrace:    cfg.Exec.KillGrace,
	}
}

type probe struct {
	log          *slog.Logger
	maxFileBytes int64
	execTimeout  time.Duration
	killGrace    time.Duration
}

func (p *probe) Health() string {
	return "OK"
}
