//go:build unix

package tools

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcGroup places the command in its own process group so that
// killProcessGroup can reach the whole tree.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup terminates the command's process group: SIGTERM
// first, then SIGKILL after the grace period. The caller is expected to
// be waiting on cmd.Wait separately.
func killProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}

	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		// Signal 0 probes whether the group still has live members
		if err := syscall.Kill(pgid, syscall.Signal(0)); err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = syscall.Kill(pgid, syscall.SIGKILL)
}
