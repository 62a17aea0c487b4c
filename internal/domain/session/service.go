// Package session implements the work-session lifecycle: the current
// session per user-local calendar day, downward archive cascades, ownership
// checks, and startup auto-recovery flagging.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/shared/id"
	"github.com/worksnap/backend/internal/shared/types"
	"github.com/worksnap/backend/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner is returned when a caller archives an entity owned by a
	// different user.
	ErrNotOwner = errors.New("not owned by caller")
)

// Hook is a post-commit side effect invoked synchronously after a session
// operation succeeds. Hooks contain their own failures; a panicking hook is
// logged and absorbed. A hook wanting async behavior starts its own
// goroutine.
type Hook func(ctx context.Context, session *types.WorkSession)

// CurrentSessionResult distinguishes why a session was returned, for
// caller-side UX decisions.
type CurrentSessionResult struct {
	Session          *types.WorkSession
	Created          bool // No session existed at all
	WasNewDaySession bool // Created because the user-local day rolled over
}

// Service owns the session/capture/archive model over the store.
type Service struct {
	store    store.Repository
	timezone string // User-configured IANA zone; empty means host zone
	log      *logging.Logger
	now      func() time.Time

	rolloverHooks []Hook
}

// NewService creates the session service.
func NewService(repo store.Repository, timezone string, log *logging.Logger) *Service {
	return &Service{
		store:    repo,
		timezone: timezone,
		log:      log,
		now:      time.Now,
	}
}

// OnDayRollover registers a post-commit hook invoked when GetCurrentSession
// creates a session because the day rolled over. The standard wiring
// triggers an auto capture here.
func (s *Service) OnDayRollover(hook Hook) {
	s.rolloverHooks = append(s.rolloverHooks, hook)
}

// GetCurrentSession returns the user's session for today in their timezone,
// creating one when none exists or when the day has rolled over. Calling it
// twice within the same user-local day returns the same session.
func (s *Service) GetCurrentSession(ctx context.Context, userID string) (*CurrentSessionResult, error) {
	loc := s.location()
	now := s.now().In(loc)

	latest, err := s.store.LatestActiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up current session: %w", err)
	}

	if latest != nil && sameDay(latest.CreatedAt.In(loc), now) {
		return &CurrentSessionResult{Session: latest}, nil
	}

	created, err := s.createSession(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	result := &CurrentSessionResult{
		Session:          created,
		Created:          true,
		WasNewDaySession: latest != nil,
	}

	if result.WasNewDaySession {
		s.runHooks(ctx, s.rolloverHooks, created)
	}
	return result, nil
}

func (s *Service) createSession(ctx context.Context, userID string, now time.Time) (*types.WorkSession, error) {
	ws := &types.WorkSession{
		ID:        id.NewSession(),
		UserID:    userID,
		Name:      sessionName(now),
		CreatedAt: now.UTC(),
	}
	if err := s.store.CreateSession(ctx, ws); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("work session created",
		zap.String("session_id", ws.ID),
		zap.String("user_id", userID),
		zap.String("name", ws.Name))
	return ws, nil
}

// Rename updates a session's name and description, its only mutable fields
// besides archive state.
func (s *Service) Rename(ctx context.Context, sessionID, name, description string) error {
	return s.store.UpdateSessionMeta(ctx, sessionID, name, description)
}

// ArchiveSession archives the session and unconditionally re-stamps every
// capture and asset under it, archived or not, with the same timestamp.
// Archiving a session supersedes any prior individual archive state within
// it. The three statements are independent: a crash between them can leave
// a partially archived tree.
func (s *Service) ArchiveSession(ctx context.Context, sessionID string) error {
	at := s.now().UTC()

	if err := s.store.ArchiveSessionRow(ctx, sessionID, at); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	if err := s.store.ArchiveCapturesBySession(ctx, sessionID, at); err != nil {
		return fmt.Errorf("archive session captures: %w", err)
	}
	if err := s.store.ArchiveAssetsBySession(ctx, sessionID, at); err != nil {
		return fmt.Errorf("archive session assets: %w", err)
	}
	return nil
}

// ArchiveCapture archives one capture and its own assets. Ownership-checked:
// only the owning user, or anyone for an ownerless capture. No upward
// cascade; the owning session is untouched.
func (s *Service) ArchiveCapture(ctx context.Context, captureID, callerUserID string) error {
	capture, err := s.store.GetCapture(ctx, captureID)
	if err != nil {
		return fmt.Errorf("look up capture: %w", err)
	}
	if capture == nil {
		return fmt.Errorf("capture %s: %w", captureID, ErrNotFound)
	}
	if capture.UserID != nil && *capture.UserID != callerUserID {
		return fmt.Errorf("capture %s: %w", captureID, ErrNotOwner)
	}

	at := s.now().UTC()
	if err := s.store.ArchiveCaptureRow(ctx, captureID, at); err != nil {
		return fmt.Errorf("archive capture: %w", err)
	}
	if err := s.store.ArchiveAssetsByCapture(ctx, captureID, at); err != nil {
		return fmt.Errorf("archive capture assets: %w", err)
	}
	return nil
}

// UnarchiveCapture clears a capture's archive state. Its owning session and
// its assets keep whatever archive state they already have.
func (s *Service) UnarchiveCapture(ctx context.Context, captureID, callerUserID string) error {
	capture, err := s.store.GetCapture(ctx, captureID)
	if err != nil {
		return fmt.Errorf("look up capture: %w", err)
	}
	if capture == nil {
		return fmt.Errorf("capture %s: %w", captureID, ErrNotFound)
	}
	if capture.UserID != nil && *capture.UserID != callerUserID {
		return fmt.Errorf("capture %s: %w", captureID, ErrNotOwner)
	}
	return s.store.UnarchiveCaptureRow(ctx, captureID)
}

// ArchiveAsset archives a single asset with no cascade in either direction.
// Ownership is inherited from the owning capture.
func (s *Service) ArchiveAsset(ctx context.Context, assetID, callerUserID string) error {
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return fmt.Errorf("look up asset: %w", err)
	}
	if asset == nil {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}

	capture, err := s.store.GetCapture(ctx, asset.CaptureID)
	if err != nil {
		return fmt.Errorf("look up owning capture: %w", err)
	}
	if capture != nil && capture.UserID != nil && *capture.UserID != callerUserID {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotOwner)
	}

	return s.store.ArchiveAssetRow(ctx, assetID, s.now().UTC())
}

// DeleteSession removes a session and, through the store's cascade, all its
// captures and assets. The only destructive session operation.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.store.DeleteSession(ctx, sessionID)
}

// AutoRecoverRecent flags every active session created within the last 24
// hours as auto-recovered, exactly once. Run at startup; the flag is a
// heuristic "the app may have exited uncleanly" marker for recovery
// prompts, not a data repair.
func (s *Service) AutoRecoverRecent(ctx context.Context) (int, error) {
	since := s.now().Add(-24 * time.Hour)
	sessions, err := s.store.ActiveSessionsSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("scan recent sessions: %w", err)
	}

	flagged := 0
	for _, ws := range sessions {
		if err := s.store.SetSessionAutoRecovered(ctx, ws.ID); err != nil {
			s.log.Warn("auto-recover flag failed",
				zap.String("session_id", ws.ID),
				zap.Error(err))
			continue
		}
		flagged++
	}
	if flagged > 0 {
		s.log.Info("sessions flagged for recovery prompt", zap.Int("count", flagged))
	}
	return flagged, nil
}

func (s *Service) runHooks(ctx context.Context, hooks []Hook, ws *types.WorkSession) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("session hook panicked", zap.Any("panic", r))
				}
			}()
			hook(ctx, ws)
		}()
	}
}

// location resolves the user's configured timezone, falling back to the
// host zone on any resolution error.
func (s *Service) location() *time.Location {
	if s.timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.timezone)
	if err != nil {
		s.log.Warn("timezone resolution failed, using host zone",
			zap.String("timezone", s.timezone),
			zap.Error(err))
		return time.Local
	}
	return loc
}

// sessionName formats the creation date as the auto-generated display name.
func sessionName(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
