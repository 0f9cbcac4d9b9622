//go:build !unix

package process

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

// signalGroup kills the process, there are no process groups to signal
// and no graceful termination signal.
func signalGroup(p *os.Process, force bool) error {
	return p.Kill()
}

func exitCode(state *os.ProcessState) (int, bool) {
	return state.ExitCode(), state.ExitCode() >= 0
}
