package adapters

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/shared/types"
	"go.uber.org/zap"
)

const terminalHistoryLines = 100

// TerminalAdapter snapshots the tail of the user's shell history as a
// terminal-session asset.
type TerminalAdapter struct {
	log *logging.Logger
}

// NewTerminalAdapter creates the terminal capture step.
func NewTerminalAdapter(log *logging.Logger) *TerminalAdapter {
	return &TerminalAdapter{log: log}
}

func (a *TerminalAdapter) Name() string { return "terminal" }

func (a *TerminalAdapter) Collect(ctx context.Context, captureID string) ([]types.AssetRecord, error) {
	path := historyPath()
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		a.log.Debug("shell history unreadable", zap.String("path", path), zap.Error(err))
		return nil, nil
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > terminalHistoryLines {
		lines = lines[len(lines)-terminalHistoryLines:]
	}
	if len(lines) == 0 {
		return nil, nil
	}

	return []types.AssetRecord{{
		Type:    types.AssetTerminalSession,
		Title:   "Shell history",
		Path:    path,
		Content: []byte(strings.Join(lines, "\n")),
		Metadata: map[string]interface{}{
			"line_count": len(lines),
		},
	}}, nil
}

func historyPath() string {
	if hist := os.Getenv("HISTFILE"); hist != "" {
		return hist
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{".zsh_history", ".bash_history"} {
		candidate := filepath.Join(home, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
