//go:build unix

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// detach starts cmd in a new session so it survives the parent and does not
// receive the terminal's signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// IsAlive reports whether pid refers to a running process, using the
// signal 0 check. A process owned by another user counts as alive.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// terminate signals the process group led by pid, falling back to pid alone
// when it does not lead a group.
func terminate(pid int, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(-pid, sig); err == nil {
		return nil
	}
	return syscall.Kill(pid, sig)
}
