package adapters

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/shared/types"
	"go.uber.org/zap"
)

const (
	notesRecency    = 7 * 24 * time.Hour
	notesMaxContent = 64 * 1024
)

// NotesAdapter collects recently edited notes from a configured inbox
// directory, inlining their content up to a size cap.
type NotesAdapter struct {
	dir string
	log *logging.Logger
}

// NewNotesAdapter creates the notes capture step. An empty dir disables it.
func NewNotesAdapter(dir string, log *logging.Logger) *NotesAdapter {
	return &NotesAdapter{dir: dir, log: log}
}

func (a *NotesAdapter) Name() string { return "notes" }

func (a *NotesAdapter) Collect(ctx context.Context, captureID string) ([]types.AssetRecord, error) {
	if a.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		a.log.Debug("notes dir unreadable", zap.String("dir", a.dir), zap.Error(err))
		return nil, nil
	}

	cutoff := time.Now().Add(-notesRecency)
	var records []types.AssetRecord
	for _, entry := range entries {
		if entry.IsDir() || !isNoteFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(a.dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			a.log.Debug("note unreadable, keeping reference only", zap.String("path", path), zap.Error(err))
			content = nil
		}
		if len(content) > notesMaxContent {
			content = content[:notesMaxContent]
		}

		records = append(records, types.AssetRecord{
			Type:    types.AssetNotes,
			Title:   strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:    path,
			Content: content,
			Metadata: map[string]interface{}{
				"modified_at": info.ModTime().UTC().Format(time.RFC3339),
			},
		})
	}
	return records, nil
}

func isNoteFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".txt", ".org":
		return true
	}
	return false
}
