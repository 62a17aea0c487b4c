// Package adapters holds the per-source capture step implementations. Each
// adapter turns one source of workspace state (editor, terminal, browser,
// notes) into asset records for a capture. Adapters are best-effort: on
// partial failure they prefer returning the records they have over an
// error, and they never panic across the boundary.
package adapters

import (
	"context"

	"github.com/worksnap/backend/internal/shared/types"
)

// Adapter is one capture step. Collect may return an error; the
// orchestrator logs it, counts the step's contribution as zero assets, and
// continues the run.
type Adapter interface {
	Name() string
	Collect(ctx context.Context, captureID string) ([]types.AssetRecord, error)
}
