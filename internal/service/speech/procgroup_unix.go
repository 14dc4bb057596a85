//go:build unix

package speech

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts cmd in its own process group and makes the context
// cancel signal the whole group.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
