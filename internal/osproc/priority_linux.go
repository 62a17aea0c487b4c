package osproc

import (
	"fmt"
	"syscall"
)

// Priority returns the daemon's nice value. The raw Linux syscall encodes
// the result as 20-nice to avoid the -1 ambiguity; undo that so callers see
// the nice value Setpriority accepts.
func (m *unixManager) Priority() (int, error) {
	pri, err := syscall.Getpriority(syscall.PRIO_PROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("get priority: %w", err)
	}
	return 20 - pri, nil
}
