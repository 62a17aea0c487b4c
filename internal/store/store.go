// Package store provides persistence for work sessions, captures, and assets.
package store

import (
	"context"
	"time"

	"github.com/worksnap/backend/internal/shared/types"
)

// Repository defines the persistence contract over the work_sessions,
// captures, and assets tables. Lookups return (nil, nil) when the row does
// not exist.
//
// The three Archive*BySession / Archive*ByCapture statements are deliberately
// separate operations: an archive cascade is three independent statement
// executions, not one transaction, matching the observed source behavior. A
// crash mid-cascade can leave partially archived children.
type Repository interface {
	// CreateSession inserts a new work session row.
	CreateSession(ctx context.Context, s *types.WorkSession) error

	// GetSession retrieves a work session by ID.
	GetSession(ctx context.Context, id string) (*types.WorkSession, error)

	// LatestActiveSession returns the most recently created non-archived
	// session for the user.
	LatestActiveSession(ctx context.Context, userID string) (*types.WorkSession, error)

	// UpdateSessionMeta updates the mutable name/description fields.
	UpdateSessionMeta(ctx context.Context, id, name, description string) error

	// ArchiveSessionRow stamps the session itself as archived.
	ArchiveSessionRow(ctx context.Context, id string, at time.Time) error

	// SetSessionAutoRecovered flags the session as auto-recovered.
	SetSessionAutoRecovered(ctx context.Context, id string) error

	// ActiveSessionsSince lists non-archived, not-yet-flagged sessions
	// created at or after the given instant.
	ActiveSessionsSince(ctx context.Context, since time.Time) ([]*types.WorkSession, error)

	// DeleteSession removes a session; captures and assets follow via
	// foreign-key cascade.
	DeleteSession(ctx context.Context, id string) error

	// CreateCapture inserts a new capture row.
	CreateCapture(ctx context.Context, c *types.Capture) error

	// GetCapture retrieves a capture by ID.
	GetCapture(ctx context.Context, id string) (*types.Capture, error)

	// ArchiveCaptureRow stamps a single capture as archived.
	ArchiveCaptureRow(ctx context.Context, id string, at time.Time) error

	// ArchiveCapturesBySession stamps every capture under the session,
	// archived or not, with the given timestamp.
	ArchiveCapturesBySession(ctx context.Context, sessionID string, at time.Time) error

	// UnarchiveCaptureRow clears a capture's archive state. Touches the
	// capture row only; its assets and owning session are unaffected.
	UnarchiveCaptureRow(ctx context.Context, id string) error

	// ActiveCapturesByUser lists the user's non-archived captures, oldest
	// first, for retention decisions.
	ActiveCapturesByUser(ctx context.Context, userID string) ([]*types.Capture, error)

	// DeleteCapture removes a capture; assets follow via cascade.
	DeleteCapture(ctx context.Context, id string) error

	// InsertAsset inserts a single asset row.
	InsertAsset(ctx context.Context, a *types.Asset) error

	// GetAsset retrieves an asset by ID.
	GetAsset(ctx context.Context, id string) (*types.Asset, error)

	// CountAssets counts assets owned by the capture.
	CountAssets(ctx context.Context, captureID string) (int, error)

	// ArchiveAssetRow stamps a single asset as archived.
	ArchiveAssetRow(ctx context.Context, id string, at time.Time) error

	// ArchiveAssetsByCapture stamps every asset under the capture.
	ArchiveAssetsByCapture(ctx context.Context, captureID string, at time.Time) error

	// ArchiveAssetsBySession stamps every asset under every capture of the
	// session.
	ArchiveAssetsBySession(ctx context.Context, sessionID string, at time.Time) error

	// Flush forces a durability checkpoint after a batch of writes.
	Flush(ctx context.Context) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
