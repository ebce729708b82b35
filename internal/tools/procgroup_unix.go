//go:build unix

package tools

import (
	"os/exec"
	"syscall"
)

// killProcessGroup runs the tool in a process group of its own and makes
// cancellation kill the whole group, so processes the entrypoint launched die
// with it.
//
// A tool sharing the user's terminal stays in the foreground group: a
// background group reading the terminal would be stopped by SIGTTIN. There
// Ctrl+C already reaches every process of the tool, and cancellation kills
// the entrypoint.
func killProcessGroup(cmd *exec.Cmd, interactive bool) {
	if interactive {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
