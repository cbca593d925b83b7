//go:build !windows

package main

import (
	"fmt"
	"syscall"
)

func sendReload(pid int) error {
	return signalPID(pid, syscall.SIGHUP)
}

func sendDump(pid int) error {
	return signalPID(pid, syscall.SIGUSR1)
}

func signalPID(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}
