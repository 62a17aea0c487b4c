// Package osproc is the daemon's interface to the operating system's
// process table: enumeration, termination by image name, detached spawning,
// and scheduling-priority control. Every operation is best-effort; callers
// treat failures as soft.
package osproc

import "context"

// Process is one entry from the OS process list.
type Process struct {
	PID     int
	Name    string
	Cmdline string
}

// Manager abstracts OS process operations so the interceptor and scanner
// can be tested against a fake process table.
type Manager interface {
	// List returns the current process table.
	List(ctx context.Context) ([]Process, error)

	// FindByName returns processes whose image name contains name.
	FindByName(ctx context.Context, name string) ([]Process, error)

	// KillByName forcibly terminates every process matching the image name.
	KillByName(ctx context.Context, name string) error

	// SpawnDetached starts an executable detached from the daemon's
	// lifecycle; the child survives daemon exit.
	SpawnDetached(path string, args ...string) error

	// Priority returns the daemon's current scheduling priority.
	Priority() (int, error)

	// SetPriority adjusts the daemon's scheduling priority.
	SetPriority(priority int) error
}

// New returns the platform process manager.
func New() Manager {
	return newPlatform()
}
