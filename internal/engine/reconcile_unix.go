//go:build !windows

package engine

import (
	"errors"
	"syscall"
)

// pidAlive reports whether pid names a live process, tolerating EPERM (the
// process exists but we can't signal it, e.g. it's owned by another user).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
