package cdp

import (
	"os"
	"strings"
)

// Family is one supported browser family. The set is closed: chrome, brave,
// and edge share the same debugging protocol and launch flags but differ in
// identity markers, process names, and install locations.
type Family struct {
	Name string

	// Marker is the substring looked for in the /json/version identity
	// string. Families are matched in declaration order, most specific
	// marker first, so "Brave" and "Edg" win over the generic "Chrome"
	// every Chromium derivative reports.
	Marker string

	// ProcessNames are image-name fragments to match in the OS process
	// list, any platform.
	ProcessNames []string

	// ExecutableCandidates are well-known install locations, checked in
	// order; the first existing path wins.
	ExecutableCandidates []string

	// FallbackExecutable is used when no candidate path exists.
	FallbackExecutable string

	// NewTabURLs are the family's default new-tab pages, excluded from
	// capture alongside the internal schemes.
	NewTabURLs []string
}

// Identity match order: qualifier markers before the generic family name.
// Every Chromium derivative reports "Chrome/NN" in its identity string, so
// Brave and Edge must be tested first.
//
//	identity contains "Brave" -> brave
//	identity contains "Edg"   -> edge
//	identity contains "Chrome"-> chrome
var Families = []Family{
	{
		Name:         "brave",
		Marker:       "Brave",
		ProcessNames: []string{"brave"},
		ExecutableCandidates: []string{
			"/usr/bin/brave-browser",
			"/usr/bin/brave",
			"/opt/brave.com/brave/brave-browser",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
			`C:\Program Files\BraveSoftware\Brave-Browser\Application\brave.exe`,
		},
		FallbackExecutable: "brave-browser",
		NewTabURLs:         []string{"brave://newtab/", "chrome://newtab/"},
	},
	{
		Name:         "edge",
		Marker:       "Edg",
		ProcessNames: []string{"msedge", "microsoft-edge"},
		ExecutableCandidates: []string{
			"/usr/bin/microsoft-edge",
			"/usr/bin/microsoft-edge-stable",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		},
		FallbackExecutable: "microsoft-edge",
		NewTabURLs:         []string{"edge://newtab/", "chrome://newtab/"},
	},
	{
		Name:         "chrome",
		Marker:       "Chrome",
		ProcessNames: []string{"chrome", "google chrome", "chromium"},
		ExecutableCandidates: []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		},
		FallbackExecutable: "google-chrome",
		NewTabURLs:         []string{"chrome://newtab/"},
	},
}

// DebugPortFlag is the launch flag enabling the debugging protocol.
const DebugPortFlag = "--remote-debugging-port"

// MatchFamily classifies an identity string against the ordered marker
// table. Returns nil when no family matches.
func MatchFamily(identity string) *Family {
	for i := range Families {
		if strings.Contains(identity, Families[i].Marker) {
			return &Families[i]
		}
	}
	return nil
}

// FamilyByName looks a family up by its canonical name.
func FamilyByName(name string) *Family {
	for i := range Families {
		if Families[i].Name == name {
			return &Families[i]
		}
	}
	return nil
}

// ResolveExecutable returns the first existing well-known install path for
// the family, or the bare fallback executable name as a last resort.
func (f *Family) ResolveExecutable() string {
	for _, candidate := range f.ExecutableCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return f.FallbackExecutable
}
