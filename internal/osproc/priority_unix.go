//go:build !windows && !linux

package osproc

import (
	"fmt"
	"syscall"
)

// Priority returns the daemon's nice value. Getpriority here goes through
// libc, which hands back the nice value directly; no 20-nice decoding, that
// convention belongs to the raw Linux syscall only.
func (m *unixManager) Priority() (int, error) {
	pri, err := syscall.Getpriority(syscall.PRIO_PROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("get priority: %w", err)
	}
	return pri, nil
}
