package adapters

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/shared/types"
	"go.uber.org/zap"
)

const (
	editorRecency  = 24 * time.Hour
	editorMaxFiles = 50
)

// EditorAdapter collects references to recently touched editor session
// files from a configured workspace-storage directory.
type EditorAdapter struct {
	dir string
	log *logging.Logger
}

// NewEditorAdapter creates the editor capture step. An empty dir disables
// collection; the step then contributes zero assets.
func NewEditorAdapter(dir string, log *logging.Logger) *EditorAdapter {
	return &EditorAdapter{dir: dir, log: log}
}

func (a *EditorAdapter) Name() string { return "editor" }

func (a *EditorAdapter) Collect(ctx context.Context, captureID string) ([]types.AssetRecord, error) {
	if a.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		// Missing directory is the common case on a fresh machine.
		a.log.Debug("editor session dir unreadable", zap.String("dir", a.dir), zap.Error(err))
		return nil, nil
	}

	cutoff := time.Now().Add(-editorRecency)
	var records []types.AssetRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(a.dir, entry.Name())
		records = append(records, types.AssetRecord{
			Type:  types.AssetEditorArtifact,
			Title: entry.Name(),
			Path:  path,
			Metadata: map[string]interface{}{
				"modified_at": info.ModTime().UTC().Format(time.RFC3339),
				"size_bytes":  info.Size(),
			},
		})
		if len(records) >= editorMaxFiles {
			break
		}
	}
	return records, nil
}
