package types

import "time"

// AssetType tags the source family of a captured artifact
type AssetType string

const (
	AssetEditorArtifact  AssetType = "editor-artifact"
	AssetTerminalSession AssetType = "terminal-session"
	AssetBrowserTab      AssetType = "browser-tab"
	AssetNotes           AssetType = "notes"
)

// WorkSession groups captures, typically one per calendar day in the user's timezone
type WorkSession struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Archived      bool       `json:"archived"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
	AutoRecovered bool       `json:"auto_recovered"`
}

// Capture is one completed run of the multi-source workspace snapshot
type Capture struct {
	ID         string     `json:"id"`
	SessionID  *string    `json:"session_id,omitempty"`
	UserID     *string    `json:"user_id,omitempty"`
	Name       string     `json:"name"`
	Context    string     `json:"context,omitempty"` // Free-text description of what was going on
	CreatedAt  time.Time  `json:"created_at"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Asset is a single captured artifact owned by a capture
type Asset struct {
	ID         string                 `json:"id"`
	CaptureID  string                 `json:"capture_id"`
	Type       AssetType              `json:"type"`
	Title      string                 `json:"title"`
	Path       *string                `json:"path,omitempty"` // Filesystem path or URL
	Content    []byte                 `json:"content,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	Archived   bool                   `json:"archived"`
	ArchivedAt *time.Time             `json:"archived_at,omitempty"`
}

// AssetRecord is what capture adapters emit before persistence assigns identity
type AssetRecord struct {
	Type     AssetType              `json:"type"`
	Title    string                 `json:"title"`
	Path     string                 `json:"path,omitempty"`
	Content  []byte                 `json:"content,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
