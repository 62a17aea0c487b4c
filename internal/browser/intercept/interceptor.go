// Package intercept watches for browser launches that lack the debugging
// flag and transparently restarts them with debugging enabled: capture what
// tabs can be captured, kill, relaunch with the flag, restore the tabs.
// Fire-and-forget background maintenance; nothing here surfaces a hard
// failure to its caller.
package intercept

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/worksnap/backend/internal/browser/cdp"
	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/osproc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// protocol is the slice of the debugging client the interceptor uses for
// its lighter-weight pre-kill capture and for tab restoration.
type protocol interface {
	ProbePort(ctx context.Context, port int) bool
	Version(ctx context.Context, port int) (*cdp.VersionInfo, error)
	ListTargets(ctx context.Context, port int) ([]cdp.Target, error)
	CreateTarget(ctx context.Context, port int, url string) error
}

// Config holds interceptor tuning.
type Config struct {
	TickInterval    time.Duration
	SettleDelay     time.Duration // Wait after launch detection and after kill
	RestoreTabDelay time.Duration // Between tab restores
	ProbePorts      []int         // Fixed list for pre-kill capture
	RelaunchPort    int           // Debugging port for the relaunch
}

// DefaultConfig returns production interceptor tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:    5 * time.Second,
		SettleDelay:     2 * time.Second,
		RestoreTabDelay: 300 * time.Millisecond,
		ProbePorts:      []int{9222, 9223, 9224},
		RelaunchPort:    9222,
	}
}

// Interceptor is an owned instance with an explicit start/stop lifecycle.
// The known set debounces one handling per launch; the singleflight group
// guarantees at most one in-flight transaction per browser family even
// across overlapping ticks.
type Interceptor struct {
	cfg      Config
	proc     osproc.Manager
	protocol protocol
	families []cdp.Family
	log      *logging.Logger

	mu      sync.Mutex
	known   map[string]struct{}
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	group singleflight.Group
}

// New creates an interceptor over the given browser families.
func New(cfg Config, proc osproc.Manager, proto protocol, families []cdp.Family, log *logging.Logger) *Interceptor {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.RelaunchPort == 0 {
		cfg.RelaunchPort = DefaultConfig().RelaunchPort
	}
	return &Interceptor{
		cfg:      cfg,
		proc:     proc,
		protocol: proto,
		families: families,
		log:      log,
		known:    make(map[string]struct{}),
	}
}

// Start begins background polling. Idempotent.
func (i *Interceptor) Start(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return
	}
	i.running = true

	ctx, i.cancel = context.WithCancel(ctx)
	i.done = make(chan struct{})
	go i.loop(ctx)
	i.log.Info("launch interceptor started",
		zap.Duration("tick", i.cfg.TickInterval))
}

// Stop halts polling and waits for the loop to exit. Idempotent. An
// in-flight transaction finishes its current step and then observes the
// cancelled context.
func (i *Interceptor) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	cancel, done := i.cancel, i.done
	i.mu.Unlock()

	cancel()
	<-done
	i.log.Info("launch interceptor stopped")
}

func (i *Interceptor) loop(ctx context.Context) {
	defer close(i.done)
	ticker := time.NewTicker(i.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Bound the tick so a stuck OS call cannot pile ticks up
			// behind it. Transactions outlive the tick and run under the
			// loop context instead.
			tickCtx, cancel := context.WithTimeout(ctx, i.cfg.TickInterval)
			i.tick(tickCtx, ctx)
			cancel()
		}
	}
}

// tick inspects every configured family once. txCtx is the long-lived
// context intercept transactions run under.
func (i *Interceptor) tick(ctx context.Context, txCtx context.Context) {
	for idx := range i.families {
		family := &i.families[idx]

		procs, err := i.proc.FindByName(ctx, family.ProcessNames[0])
		if err != nil {
			i.log.Debug("process lookup failed", zap.String("family", family.Name), zap.Error(err))
			continue
		}

		if len(procs) == 0 {
			// Not running: reset debounce so the next launch is handled.
			i.forget(family.Name)
			continue
		}

		if !i.remember(family.Name) {
			continue // Already handled this launch.
		}

		if hasDebugFlag(procs) {
			i.log.Debug("browser already debuggable", zap.String("family", family.Name))
			continue
		}

		// The transaction sleeps through settle delays; run it off the
		// tick. singleflight collapses a duplicate trigger for the same
		// family into the one already running.
		go func() {
			_, _, _ = i.group.Do(family.Name, func() (interface{}, error) {
				i.intercept(txCtx, family)
				return nil, nil
			})
		}()
	}
}

// intercept runs the capture -> kill -> relaunch -> restore transaction.
// Every step is independently fault-tolerant: an error is logged and the
// transaction proceeds where possible or ends gracefully.
func (i *Interceptor) intercept(ctx context.Context, family *cdp.Family) {
	log := i.log.With(zap.String("family", family.Name))
	log.Info("intercepting undebugged browser launch")

	// 1. Let the browser finish starting.
	if !sleep(ctx, i.cfg.SettleDelay) {
		return
	}

	// 2. Re-check the flag; the launch may have raced us.
	if procs, err := i.proc.FindByName(ctx, family.ProcessNames[0]); err == nil {
		if len(procs) == 0 {
			log.Info("browser exited before interception")
			return
		}
		if hasDebugFlag(procs) {
			log.Info("debugging flag appeared during settle, aborting interception")
			return
		}
	}

	// 3. Best-effort tab capture. Only succeeds when an already-debugged
	// instance of the same family answers on a probe port; the instance
	// being intercepted has no port to ask.
	tabs := i.captureTabs(ctx, family)
	if len(tabs) > 0 {
		log.Info("captured tabs before restart", zap.Int("count", len(tabs)))
	}

	// 4. Kill every process of the family.
	for _, name := range family.ProcessNames {
		if err := i.proc.KillByName(ctx, name); err != nil {
			log.Warn("kill failed", zap.String("process", name), zap.Error(err))
		}
	}

	// 5. Let termination settle.
	if !sleep(ctx, i.cfg.SettleDelay) {
		return
	}

	// 6. Resolve the executable. Without it there is no relaunch and the
	// original browser state is lost: accepted, logged data-loss case.
	executable := family.ResolveExecutable()
	if _, err := exec.LookPath(executable); err != nil {
		log.Error("executable not found after kill, browser state lost",
			zap.String("executable", executable),
			zap.Error(err))
		return
	}

	// 7. Relaunch detached with debugging enabled.
	flag := cdp.DebugPortFlag + "=" + strconv.Itoa(i.cfg.RelaunchPort)
	if err := i.proc.SpawnDetached(executable, flag); err != nil {
		log.Error("relaunch failed", zap.String("executable", executable), zap.Error(err))
		return
	}
	log.Info("browser relaunched with debugging enabled",
		zap.Int("port", i.cfg.RelaunchPort))

	// 8. Restore captured tabs.
	if len(tabs) > 0 {
		i.restoreTabs(ctx, family, executable, tabs)
	}
}

// captureTabs is the lighter-weight pre-kill path: probe the fixed port
// list and take tabs from any port whose identity string matches the
// family. Returns nil when no debugged instance exists.
func (i *Interceptor) captureTabs(ctx context.Context, family *cdp.Family) []string {
	var urls []string
	for _, port := range i.cfg.ProbePorts {
		if !i.protocol.ProbePort(ctx, port) {
			continue
		}
		info, err := i.protocol.Version(ctx, port)
		if err != nil {
			continue
		}
		matched := cdp.MatchFamily(info.Browser)
		if matched == nil || matched.Name != family.Name {
			continue
		}
		targets, err := i.protocol.ListTargets(ctx, port)
		if err != nil {
			continue
		}
		for _, t := range targets {
			if t.Type == "page" && t.URL != "" && !strings.HasPrefix(t.URL, "chrome://") &&
				!strings.HasPrefix(t.URL, "brave://") && !strings.HasPrefix(t.URL, "edge://") &&
				!strings.HasPrefix(t.URL, "devtools://") {
				urls = append(urls, t.URL)
			}
		}
	}
	return urls
}

// restoreTabs reopens the captured tabs in the relaunched browser, one by
// one with a small delay. Protocol restoration first; spawning the
// executable per URL is the fallback. Individual failures are skipped.
func (i *Interceptor) restoreTabs(ctx context.Context, family *cdp.Family, executable string, urls []string) {
	log := i.log.With(zap.String("family", family.Name))

	if !sleep(ctx, i.cfg.SettleDelay) {
		return
	}

	protocolUp := i.protocol.ProbePort(ctx, i.cfg.RelaunchPort)
	restored := 0
	for _, url := range urls {
		var err error
		if protocolUp {
			err = i.protocol.CreateTarget(ctx, i.cfg.RelaunchPort, url)
		} else {
			err = i.proc.SpawnDetached(executable, url)
		}
		if err != nil {
			log.Warn("tab restore failed", zap.String("url", url), zap.Error(err))
		} else {
			restored++
		}
		if !sleep(ctx, i.cfg.RestoreTabDelay) {
			break
		}
	}
	log.Info("tab restore finished",
		zap.Int("restored", restored),
		zap.Int("captured", len(urls)))
}

func (i *Interceptor) remember(family string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, seen := i.known[family]; seen {
		return false
	}
	i.known[family] = struct{}{}
	return true
}

func (i *Interceptor) forget(family string) {
	i.mu.Lock()
	delete(i.known, family)
	i.mu.Unlock()
}

func hasDebugFlag(procs []osproc.Process) bool {
	for _, p := range procs {
		if strings.Contains(p.Cmdline, cdp.DebugPortFlag) {
			return true
		}
	}
	return false
}

// sleep waits for d or until ctx is done; reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
