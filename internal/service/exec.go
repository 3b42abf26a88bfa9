package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

func (p *probe) RunCommand(ctx context.Context, command string) (*RunResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, newError(KindValidation, "missing command parameter")
	}

	// no comment handling: a word starting with # is an ordinary argument
	args, err := shellquote.Split(command)
	if err != nil {
		return nil, wrapError(KindValidation, err, "invalid command syntax")
	}

	if len(args) == 0 {
		return nil, newError(KindValidation, "no command provided")
	}

	return p.run(ctx, args)
}

func (p *probe) run(ctx context.Context, args []string) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.execTimeout)
	defer cancel()

	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	// grandchildren may inherit the pipes, don't wait on them forever
	cmd.WaitDelay = p.killGrace
	killProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err := runError(err, ctx.Err(), cmd.ProcessState != nil); err != nil {
		switch KindOf(err) {
		case KindTimeout:
			p.log.Warn("command timed out",
				slog.String("command", args[0]),
				slog.Duration("timeout", p.execTimeout))
			return nil, newError(KindTimeout, "command timeout (>%s)", p.execTimeout)
		default:
			p.log.Error("command failed to run",
				slog.String("command", args[0]),
				slog.Any("err", err))
			return nil, wrapError(KindInternal, errors.Unwrap(err), "error running command %q", strings.Join(args, " "))
		}
	}

	code := exitCode(cmd.ProcessState)
	p.log.Info("command finished",
		slog.String("command", args[0]),
		slog.Int("returncode", code),
		slog.Duration("duration", duration))

	stdout, ok := decodeText(stdoutBuf.Bytes())
	if !ok {
		p.log.Warn("stdout is not valid UTF-8, replacement characters substituted", slog.String("command", args[0]))
	}
	stderr, ok := decodeText(stderrBuf.Bytes())
	if !ok {
		p.log.Warn("stderr is not valid UTF-8, replacement characters substituted", slog.String("command", args[0]))
	}

	return &RunResult{
		Stdout:     stdout,
		Stderr:     stderr,
		ReturnCode: code,
	}, nil
}

// runError classifies the result of cmd.Run. The context is only consulted
// when Run failed, so a command that completed right at the deadline still
// counts as completed. A nil result means the command ran to completion,
// whatever its exit status.
func runError(runErr error, ctxErr error, exited bool) error {
	if runErr == nil {
		return nil
	}

	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return wrapError(KindTimeout, ctxErr, "command timeout")
	case errors.Is(ctxErr, context.Canceled):
		return wrapError(KindInternal, ctxErr, "command aborted")
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(runErr, &exitErr):
		// a non-zero exit is still a completed command
		return nil
	case errors.Is(runErr, exec.ErrWaitDelay) && exited:
		// exited, but a background child kept stdout/stderr open
		return nil
	default:
		return wrapError(KindInternal, runErr, "error running command")
	}
}
