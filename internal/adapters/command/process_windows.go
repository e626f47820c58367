//go:build windows

package command

import "os/exec"

func configureProcessGroup(_ *exec.Cmd) {}

// killProcessGroup kills the child. Windows has no POSIX process groups.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
