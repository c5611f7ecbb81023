//go:build !windows

package process

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"syscall"
)

// Exists reports whether pid is in the process table. Zombies count as gone
// and EPERM counts as alive.
func Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombieLinux(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// KillGroup sends sig to every process in group pgid. A group that is
// already gone is not an error.
func KillGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 1 {
		return errors.New("refusing to signal process group <= 1")
	}
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// Getpgid returns the process group of pid.
func Getpgid(pid int) (int, error) {
	return syscall.Getpgid(pid)
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z) on Linux.
func isZombieLinux(pid int) bool {
	path := "/proc/" + strconv.Itoa(pid) + "/status"
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
