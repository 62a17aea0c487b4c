package adapters

import (
	"context"

	"github.com/worksnap/backend/internal/shared/types"
)

// TabCapturer is the slice of the debugging-protocol subsystem the browser
// adapter needs.
type TabCapturer interface {
	CaptureAllSessions(ctx context.Context) []types.BrowserSession
}

// BrowserAdapter flattens every discovered browser session into one
// browser-tab asset per open tab.
type BrowserAdapter struct {
	capturer TabCapturer
}

// NewBrowserAdapter creates the browser capture step.
func NewBrowserAdapter(capturer TabCapturer) *BrowserAdapter {
	return &BrowserAdapter{capturer: capturer}
}

func (a *BrowserAdapter) Name() string { return "browser" }

func (a *BrowserAdapter) Collect(ctx context.Context, captureID string) ([]types.AssetRecord, error) {
	var records []types.AssetRecord
	for _, session := range a.capturer.CaptureAllSessions(ctx) {
		for _, tab := range session.Tabs {
			metadata := map[string]interface{}{
				"browser":    session.Browser,
				"debug_port": session.DebugPort,
				"target_id":  tab.TargetID,
			}
			if tab.FaviconURL != "" {
				metadata["favicon_url"] = tab.FaviconURL
			}
			records = append(records, types.AssetRecord{
				Type:     types.AssetBrowserTab,
				Title:    tab.Title,
				Path:     tab.URL,
				Metadata: metadata,
			})
		}
	}
	return records, nil
}
