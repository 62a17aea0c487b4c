//go:build windows

package osproc

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

type windowsManager struct{}

func newPlatform() Manager {
	return &windowsManager{}
}

// List parses `wmic process` CSV output so command lines are available for
// debugging-port flag inspection.
func (m *windowsManager) List(ctx context.Context) ([]Process, error) {
	out, err := exec.CommandContext(ctx, "wmic", "process", "get", "ProcessId,Name,CommandLine", "/FORMAT:CSV").Output()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var procs []Process
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Node,") {
			continue
		}
		// Node,CommandLine,Name,ProcessId; command lines may themselves
		// contain commas, so split from both ends.
		first := strings.Index(line, ",")
		last := strings.LastIndex(line, ",")
		if first < 0 || last <= first {
			continue
		}
		rest := line[first+1 : last]
		pid, err := strconv.Atoi(strings.TrimSpace(line[last+1:]))
		if err != nil {
			continue
		}
		nameIdx := strings.LastIndex(rest, ",")
		if nameIdx < 0 {
			continue
		}
		procs = append(procs, Process{
			PID:     pid,
			Name:    strings.TrimSpace(rest[nameIdx+1:]),
			Cmdline: strings.TrimSpace(rest[:nameIdx]),
		})
	}
	return procs, nil
}

func (m *windowsManager) FindByName(ctx context.Context, name string) ([]Process, error) {
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

func (m *windowsManager) KillByName(ctx context.Context, name string) error {
	image := name
	if !strings.HasSuffix(strings.ToLower(image), ".exe") {
		image += ".exe"
	}
	if err := exec.CommandContext(ctx, "taskkill", "/IM", image, "/F").Run(); err != nil {
		return fmt.Errorf("kill %s: %w", image, err)
	}
	return nil
}

func (m *windowsManager) SpawnDetached(path string, args ...string) error {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x00000008, // DETACHED_PROCESS
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", path, err)
	}
	return cmd.Process.Release()
}

func (m *windowsManager) Priority() (int, error) {
	return 0, errors.New("priority inspection not supported on windows")
}

func (m *windowsManager) SetPriority(priority int) error {
	return errors.New("priority control not supported on windows")
}
