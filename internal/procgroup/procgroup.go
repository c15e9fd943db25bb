// SPDX-License-Identifier: MIT

// Package procgroup owns the lifecycle of external engine processes. Every
// stage process is started in its own process group so that teardown reaps
// the whole tree, not just the direct child.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/streamclip/clipd/internal/metrics"
)

// ErrKillFailed is returned when a process group survives SIGKILL.
var ErrKillFailed = errors.New("kill operation failed")

// Terminate gracefully stops a process group: SIGTERM, wait up to grace for
// the exit to arrive on waitCh, then SIGKILL. It consumes and returns the
// error from waitCh. Safe to call with a nil command.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signalGroup(cmd, syscall.SIGTERM, "SIGTERM")

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	signalGroup(cmd, syscall.SIGKILL, "SIGKILL")

	// Always drain waitCh; SIGKILL frees a blocked Wait.
	return <-waitCh
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal, name string) {
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcSignal(name, "sent")
	case isGone(err):
		metrics.IncProcSignal(name, "esrch")
	default:
		metrics.IncProcSignal(name, "error")
	}
}

func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
