package intercept

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worksnap/backend/internal/browser/cdp"
	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/osproc"
)

// fakeProc is a mutable process table recording kills and spawns. The
// intercept transaction runs on its own goroutine, so every access locks.
type fakeProc struct {
	mu      sync.Mutex
	procsFn func(call int) []osproc.Process
	calls   int
	kills   []string
	spawns  [][]string
}

func (p *fakeProc) FindByName(_ context.Context, _ string) ([]osproc.Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.procsFn(p.calls), nil
}

func (p *fakeProc) KillByName(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills = append(p.kills, name)
	return nil
}

func (p *fakeProc) SpawnDetached(path string, args ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spawns = append(p.spawns, append([]string{path}, args...))
	return nil
}

func (p *fakeProc) List(context.Context) ([]osproc.Process, error) { return nil, nil }
func (p *fakeProc) Priority() (int, error)                         { return 0, nil }
func (p *fakeProc) SetPriority(int) error                          { return nil }

func (p *fakeProc) killCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.kills)
}

func (p *fakeProc) spawnCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.spawns)
}

// fakeProto answers the debugging protocol for a single debugged instance.
// probeResults is consumed one per ProbePort call, repeating the last entry.
type fakeProto struct {
	mu           sync.Mutex
	identity     string
	targets      []cdp.Target
	probeResults []bool
	probeCalls   int
	created      []string
}

func (f *fakeProto) ProbePort(context.Context, int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.probeResults) == 0 {
		return false
	}
	idx := f.probeCalls
	if idx >= len(f.probeResults) {
		idx = len(f.probeResults) - 1
	}
	f.probeCalls++
	return f.probeResults[idx]
}

func (f *fakeProto) Version(context.Context, int) (*cdp.VersionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &cdp.VersionInfo{Browser: f.identity}, nil
}

func (f *fakeProto) ListTargets(context.Context, int) ([]cdp.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets, nil
}

func (f *fakeProto) CreateTarget(_ context.Context, _ int, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, url)
	return nil
}

func (f *fakeProto) createdURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// fakeExecutable drops a runnable file so the relaunch step's lookup
// succeeds.
func fakeExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-browser")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func testFamily(t *testing.T) cdp.Family {
	return cdp.Family{
		Name:                 "chrome",
		Marker:               "Chrome",
		ProcessNames:         []string{"chrome"},
		ExecutableCandidates: []string{fakeExecutable(t)},
		FallbackExecutable:   "missing-browser",
	}
}

func testConfig() Config {
	return Config{
		TickInterval:    10 * time.Millisecond,
		SettleDelay:     time.Millisecond,
		RestoreTabDelay: time.Millisecond,
		ProbePorts:      []int{9222},
		RelaunchPort:    9222,
	}
}

func undebugged() []osproc.Process {
	return []osproc.Process{{PID: 42, Name: "chrome", Cmdline: "/usr/bin/chrome"}}
}

func debugged() []osproc.Process {
	return []osproc.Process{{PID: 42, Name: "chrome", Cmdline: "/usr/bin/chrome --remote-debugging-port=9222"}}
}

func TestInterceptKillsRelaunchesAndRestores(t *testing.T) {
	proc := &fakeProc{procsFn: func(int) []osproc.Process { return undebugged() }}
	proto := &fakeProto{
		identity:     "Chrome/120.0.6099.109",
		probeResults: []bool{true},
		targets: []cdp.Target{
			{Type: "page", URL: "https://a.example"},
			{Type: "page", URL: "https://b.example"},
			{Type: "page", URL: "chrome://newtab/"},
			{Type: "service_worker", URL: "https://a.example/sw.js"},
		},
	}
	family := testFamily(t)
	i := New(testConfig(), proc, proto, []cdp.Family{family}, logging.NewNop())

	ctx := context.Background()
	i.tick(ctx, ctx)

	require.Eventually(t, func() bool {
		return len(proto.createdURLs()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	proc.mu.Lock()
	assert.Equal(t, []string{"chrome"}, proc.kills)
	require.Len(t, proc.spawns, 1)
	assert.Equal(t, []string{family.ExecutableCandidates[0], "--remote-debugging-port=9222"}, proc.spawns[0])
	proc.mu.Unlock()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, proto.createdURLs())
}

func TestInterceptDebouncesPerLaunch(t *testing.T) {
	proc := &fakeProc{procsFn: func(int) []osproc.Process { return undebugged() }}
	proto := &fakeProto{identity: "Chrome/120"}
	i := New(testConfig(), proc, proto, []cdp.Family{testFamily(t)}, logging.NewNop())

	ctx := context.Background()
	i.tick(ctx, ctx)
	require.Eventually(t, func() bool { return proc.killCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Same launch still running: later ticks must not re-handle it.
	i.tick(ctx, ctx)
	i.tick(ctx, ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, proc.killCount())
}

func TestInterceptResetsAfterBrowserExit(t *testing.T) {
	var running []osproc.Process = undebugged()
	var mu sync.Mutex
	proc := &fakeProc{}
	proc.procsFn = func(int) []osproc.Process {
		mu.Lock()
		defer mu.Unlock()
		return running
	}
	proto := &fakeProto{identity: "Chrome/120"}
	i := New(testConfig(), proc, proto, []cdp.Family{testFamily(t)}, logging.NewNop())

	ctx := context.Background()
	i.tick(ctx, ctx)
	require.Eventually(t, func() bool { return proc.killCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Browser exits: the debounce entry clears.
	mu.Lock()
	running = nil
	mu.Unlock()
	i.tick(ctx, ctx)

	// A fresh undebugged launch is handled again.
	mu.Lock()
	running = undebugged()
	mu.Unlock()
	i.tick(ctx, ctx)
	require.Eventually(t, func() bool { return proc.killCount() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestInterceptSkipsDebuggedBrowser(t *testing.T) {
	proc := &fakeProc{procsFn: func(int) []osproc.Process { return debugged() }}
	i := New(testConfig(), proc, &fakeProto{}, []cdp.Family{testFamily(t)}, logging.NewNop())

	ctx := context.Background()
	i.tick(ctx, ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, proc.killCount())
}

func TestInterceptAbortsWhenFlagAppearsDuringSettle(t *testing.T) {
	// First lookup (tick) sees no flag; the re-check after the settle delay
	// sees the flag and must abort before the kill.
	proc := &fakeProc{procsFn: func(call int) []osproc.Process {
		if call == 1 {
			return undebugged()
		}
		return debugged()
	}}
	i := New(testConfig(), proc, &fakeProto{}, []cdp.Family{testFamily(t)}, logging.NewNop())

	ctx := context.Background()
	i.tick(ctx, ctx)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, proc.killCount())
	assert.Zero(t, proc.spawnCount())
}

func TestInterceptFallsBackToSpawnWhenPortDown(t *testing.T) {
	proc := &fakeProc{procsFn: func(int) []osproc.Process { return undebugged() }}
	// First probe (pre-kill capture) finds the port up; the restore-time
	// probe finds it dark, so restoration falls back to spawning the
	// executable per URL.
	proto := &fakeProto{
		identity:     "Chrome/120",
		probeResults: []bool{true, false},
		targets:      []cdp.Target{{Type: "page", URL: "https://a.example"}},
	}
	family := testFamily(t)
	i := New(testConfig(), proc, proto, []cdp.Family{family}, logging.NewNop())

	ctx := context.Background()
	i.tick(ctx, ctx)

	// One spawn for the relaunch and one per restored tab.
	require.Eventually(t, func() bool { return proc.spawnCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, []string{family.ExecutableCandidates[0], "https://a.example"}, proc.spawns[1])
	assert.Empty(t, proto.createdURLs())
}

func TestStartStopIdempotent(t *testing.T) {
	proc := &fakeProc{procsFn: func(int) []osproc.Process { return nil }}
	i := New(testConfig(), proc, &fakeProto{}, nil, logging.NewNop())

	ctx := context.Background()
	i.Start(ctx)
	i.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	i.Stop()
	i.Stop()
}

func TestHasDebugFlag(t *testing.T) {
	assert.False(t, hasDebugFlag(undebugged()))
	assert.True(t, hasDebugFlag(debugged()))
	assert.False(t, hasDebugFlag(nil))
}
