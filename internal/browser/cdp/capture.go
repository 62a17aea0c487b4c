package cdp

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/osproc"
	"github.com/worksnap/backend/internal/shared/types"
	"go.uber.org/zap"
)

// protocol is the slice of Client the capturer depends on; tests substitute
// a fake protocol without any browser running.
type protocol interface {
	ListTargets(ctx context.Context, port int) ([]Target, error)
	ProbePort(ctx context.Context, port int) bool
	Version(ctx context.Context, port int) (*VersionInfo, error)
	EnrichTarget(ctx context.Context, t *Target)
}

// BrowserInfo identifies a debuggable browser instance.
type BrowserInfo struct {
	Name           string
	ExecutablePath string
}

// Capturer discovers debugging ports and aggregates per-browser tab
// sessions. One Capturer performs one or more capture passes; it holds no
// state between passes.
type Capturer struct {
	protocol  protocol
	proc      osproc.Manager
	portStart int
	portEnd   int
	log       *logging.Logger
}

// NewCapturer wires the protocol client and process manager into a capturer.
func NewCapturer(client *Client, proc osproc.Manager, portStart, portEnd int, log *logging.Logger) *Capturer {
	return &Capturer{
		protocol:  client,
		proc:      proc,
		portStart: portStart,
		portEnd:   portEnd,
		log:       log,
	}
}

var debugPortPattern = regexp.MustCompile(`--remote-debugging-port=(\d+)`)

// DiscoverPorts returns the deduplicated candidate port set: the well-known
// range plus any port parsed from a running browser-family command line.
func (c *Capturer) DiscoverPorts(ctx context.Context) []int {
	seen := make(map[int]struct{})
	for port := c.portStart; port <= c.portEnd; port++ {
		seen[port] = struct{}{}
	}

	procs, err := c.proc.List(ctx)
	if err != nil {
		c.log.Debug("process list unavailable during port discovery", zap.Error(err))
		procs = nil
	}
	for _, p := range procs {
		if !isBrowserProcess(p) {
			continue
		}
		if m := debugPortPattern.FindStringSubmatch(p.Cmdline); m != nil {
			if port, err := strconv.Atoi(m[1]); err == nil {
				seen[port] = struct{}{}
			}
		}
	}

	ports := make([]int, 0, len(seen))
	for port := range seen {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

// IdentifyBrowser classifies the browser answering on the port. The
// /json/version identity string is authoritative; if that call fails, the
// OS process list is consulted instead. Returns nil when no family matches.
func (c *Capturer) IdentifyBrowser(ctx context.Context, port int) *BrowserInfo {
	if info, err := c.protocol.Version(ctx, port); err == nil {
		if family := MatchFamily(info.Browser); family != nil {
			return &BrowserInfo{Name: family.Name, ExecutablePath: family.ResolveExecutable()}
		}
	}

	procs, err := c.proc.List(ctx)
	if err != nil {
		return nil
	}
	for _, p := range procs {
		for i := range Families {
			family := &Families[i]
			for _, procName := range family.ProcessNames {
				if strings.Contains(strings.ToLower(p.Name), procName) {
					return &BrowserInfo{Name: family.Name, ExecutablePath: family.ResolveExecutable()}
				}
			}
		}
	}
	return nil
}

// ListTabs lists the page targets on the port, filters out browser-internal
// pages, and aggregates the rest into a session. Returns nil when zero
// qualifying tabs remain; callers treat nil as "no session on this port".
func (c *Capturer) ListTabs(ctx context.Context, port int, browserName string) *types.BrowserSession {
	targets, err := c.protocol.ListTargets(ctx, port)
	if err != nil {
		c.log.Debug("tab listing failed", zap.Int("port", port), zap.Error(err))
		return nil
	}

	family := FamilyByName(browserName)

	var tabs []types.BrowserTab
	for i := range targets {
		t := &targets[i]
		if t.Type != "page" {
			continue
		}
		if isInternalURL(t.URL, family) {
			continue
		}

		if t.URL == "" || t.Title == "" {
			c.protocol.EnrichTarget(ctx, t)
			// Enrichment may resolve an empty URL to an internal page, a
			// new-tab still starting up for instance.
			if isInternalURL(t.URL, family) {
				continue
			}
		}
		url := t.URL
		if url == "" {
			url = "about:blank"
		}
		title := t.Title
		if title == "" {
			title = "Untitled"
		}

		tabs = append(tabs, types.BrowserTab{
			URL:        url,
			Title:      title,
			TargetID:   t.ID,
			FaviconURL: t.FaviconURL,
		})
	}

	if len(tabs) == 0 {
		return nil
	}

	session := &types.BrowserSession{
		Browser:   browserName,
		DebugPort: port,
		Tabs:      tabs,
	}
	if family != nil {
		session.ExecutablePath = family.ResolveExecutable()
	}
	return session
}

// CaptureAllSessions runs the full discovery pass: every unique candidate
// port is probed at most once, identified, and listed. All non-nil sessions
// are returned.
func (c *Capturer) CaptureAllSessions(ctx context.Context) []types.BrowserSession {
	checked := make(map[int]struct{})
	var sessions []types.BrowserSession

	for _, port := range c.DiscoverPorts(ctx) {
		if _, done := checked[port]; done {
			continue
		}
		checked[port] = struct{}{}

		if !c.protocol.ProbePort(ctx, port) {
			continue
		}
		info := c.IdentifyBrowser(ctx, port)
		if info == nil {
			c.log.Debug("active debugging port with unrecognized browser", zap.Int("port", port))
			continue
		}
		if session := c.ListTabs(ctx, port, info.Name); session != nil {
			session.ExecutablePath = info.ExecutablePath
			sessions = append(sessions, *session)
		}
	}
	return sessions
}

// internalSchemes are URL prefixes of browser-internal surfaces that never
// represent user work. about:blank is deliberately absent: a blank tab is a
// real open tab.
var internalSchemes = []string{
	"chrome://",
	"brave://",
	"edge://",
	"devtools://",
	"view-source:chrome://",
	"chrome-extension://",
	"edge-extension://",
	"moz-extension://",
}

func isInternalURL(url string, family *Family) bool {
	if url == "" {
		return false
	}
	for _, scheme := range internalSchemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	if family != nil {
		for _, newTab := range family.NewTabURLs {
			if url == newTab || url == strings.TrimSuffix(newTab, "/") {
				return true
			}
		}
	}
	return false
}

func isBrowserProcess(p osproc.Process) bool {
	name := strings.ToLower(p.Name)
	for i := range Families {
		for _, procName := range Families[i].ProcessNames {
			if strings.Contains(name, procName) {
				return true
			}
		}
	}
	return false
}
