package types

// BrowserTab is one open page target, transient for the duration of a capture pass
type BrowserTab struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	TargetID   string `json:"target_id"`
	FaviconURL string `json:"favicon_url,omitempty"`
}

// BrowserSession aggregates the tabs of one debuggable browser instance.
// Never persisted; the browser adapter flattens it into browser-tab assets.
type BrowserSession struct {
	Browser        string       `json:"browser"`
	ExecutablePath string       `json:"executable_path,omitempty"`
	DebugPort      int          `json:"debug_port"`
	Tabs           []BrowserTab `json:"tabs"`
}
