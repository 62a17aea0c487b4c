//go:build !windows

package osproc

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

type unixManager struct{}

func newPlatform() Manager {
	return &unixManager{}
}

// List builds the process table from two `ps` passes, one per column. Each
// pass emits pid plus exactly one trailing column, so a comm like
// "Google Chrome" or an args string with embedded spaces stays whole; the
// pid is the only positionally parsed field.
func (m *unixManager) List(ctx context.Context) ([]Process, error) {
	comms, err := psColumn(ctx, "comm=")
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	cmdlines, err := psColumn(ctx, "args=")
	if err != nil {
		return nil, fmt.Errorf("list process args: %w", err)
	}

	procs := make([]Process, 0, len(comms))
	for pid, comm := range comms {
		procs = append(procs, Process{PID: pid, Name: baseName(comm), Cmdline: cmdlines[pid]})
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	return procs, nil
}

func psColumn(ctx context.Context, column string) (map[int]string, error) {
	out, err := exec.CommandContext(ctx, "ps", "-axo", "pid=,"+column).Output()
	if err != nil {
		return nil, err
	}
	return parsePidColumn(string(out)), nil
}

// parsePidColumn maps pid to the full remainder of each line.
func parsePidColumn(out string) map[int]string {
	rows := make(map[int]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sep := strings.IndexAny(line, " \t")
		if sep < 0 {
			continue
		}
		pid, err := strconv.Atoi(line[:sep])
		if err != nil {
			continue
		}
		rows[pid] = strings.TrimSpace(line[sep:])
	}
	return rows
}

func (m *unixManager) FindByName(ctx context.Context, name string) ([]Process, error) {
	procs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var matched []Process
	for _, p := range procs {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (m *unixManager) KillByName(ctx context.Context, name string) error {
	// pkill exits 1 when nothing matched; that is not a failure here.
	err := exec.CommandContext(ctx, "pkill", "-9", "-f", name).Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("kill %s: %w", name, err)
	}
	return nil
}

func (m *unixManager) SpawnDetached(path string, args ...string) error {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", path, err)
	}
	// Release so the child is not reaped through us.
	return cmd.Process.Release()
}

func (m *unixManager) SetPriority(priority int) error {
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, priority); err != nil {
		return fmt.Errorf("set priority %d: %w", priority, err)
	}
	return nil
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
