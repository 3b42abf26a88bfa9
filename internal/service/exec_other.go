//go:build !unix

package service

import (
	"os"
	"os/exec"
)

func killProcessGroup(cmd *exec.Cmd) {}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
