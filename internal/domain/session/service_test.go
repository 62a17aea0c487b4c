package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/shared/types"
)

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	sessions map[string]*types.WorkSession
	captures map[string]*types.Capture
	assets   map[string]*types.Asset

	failArchiveCaptures bool
	archiveAssetCalls   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[string]*types.WorkSession),
		captures: make(map[string]*types.Capture),
		assets:   make(map[string]*types.Asset),
	}
}

func (f *fakeRepo) CreateSession(_ context.Context, s *types.WorkSession) error {
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, id string) (*types.WorkSession, error) {
	return f.sessions[id], nil
}

func (f *fakeRepo) LatestActiveSession(_ context.Context, userID string) (*types.WorkSession, error) {
	var latest *types.WorkSession
	for _, s := range f.sessions {
		if s.UserID != userID || s.Archived {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (f *fakeRepo) UpdateSessionMeta(_ context.Context, id, name, description string) error {
	s, ok := f.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	s.Name, s.Description = name, description
	return nil
}

func (f *fakeRepo) ArchiveSessionRow(_ context.Context, id string, at time.Time) error {
	s, ok := f.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	s.Archived = true
	s.ArchivedAt = &at
	return nil
}

func (f *fakeRepo) SetSessionAutoRecovered(_ context.Context, id string) error {
	s, ok := f.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	s.AutoRecovered = true
	return nil
}

func (f *fakeRepo) ActiveSessionsSince(_ context.Context, since time.Time) ([]*types.WorkSession, error) {
	var out []*types.WorkSession
	for _, s := range f.sessions {
		if !s.Archived && !s.AutoRecovered && !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, id string) error {
	delete(f.sessions, id)
	for cid, c := range f.captures {
		if c.SessionID != nil && *c.SessionID == id {
			_ = f.DeleteCapture(context.Background(), cid)
		}
	}
	return nil
}

func (f *fakeRepo) CreateCapture(_ context.Context, c *types.Capture) error {
	copied := *c
	f.captures[c.ID] = &copied
	return nil
}

func (f *fakeRepo) GetCapture(_ context.Context, id string) (*types.Capture, error) {
	return f.captures[id], nil
}

func (f *fakeRepo) ArchiveCaptureRow(_ context.Context, id string, at time.Time) error {
	c, ok := f.captures[id]
	if !ok {
		return errors.New("capture not found")
	}
	c.Archived = true
	c.ArchivedAt = &at
	return nil
}

func (f *fakeRepo) ArchiveCapturesBySession(_ context.Context, sessionID string, at time.Time) error {
	if f.failArchiveCaptures {
		return errors.New("cascade interrupted")
	}
	for _, c := range f.captures {
		if c.SessionID != nil && *c.SessionID == sessionID {
			c.Archived = true
			c.ArchivedAt = &at
		}
	}
	return nil
}

func (f *fakeRepo) UnarchiveCaptureRow(_ context.Context, id string) error {
	c, ok := f.captures[id]
	if !ok {
		return errors.New("capture not found")
	}
	c.Archived = false
	c.ArchivedAt = nil
	return nil
}

func (f *fakeRepo) ActiveCapturesByUser(_ context.Context, userID string) ([]*types.Capture, error) {
	var out []*types.Capture
	for _, c := range f.captures {
		if c.UserID != nil && *c.UserID == userID && !c.Archived {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteCapture(_ context.Context, id string) error {
	delete(f.captures, id)
	for aid, a := range f.assets {
		if a.CaptureID == id {
			delete(f.assets, aid)
		}
	}
	return nil
}

func (f *fakeRepo) InsertAsset(_ context.Context, a *types.Asset) error {
	copied := *a
	f.assets[a.ID] = &copied
	return nil
}

func (f *fakeRepo) GetAsset(_ context.Context, id string) (*types.Asset, error) {
	return f.assets[id], nil
}

func (f *fakeRepo) CountAssets(_ context.Context, captureID string) (int, error) {
	count := 0
	for _, a := range f.assets {
		if a.CaptureID == captureID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) ArchiveAssetRow(_ context.Context, id string, at time.Time) error {
	f.archiveAssetCalls++
	a, ok := f.assets[id]
	if !ok {
		return errors.New("asset not found")
	}
	a.Archived = true
	a.ArchivedAt = &at
	return nil
}

func (f *fakeRepo) ArchiveAssetsByCapture(_ context.Context, captureID string, at time.Time) error {
	for _, a := range f.assets {
		if a.CaptureID == captureID {
			a.Archived = true
			a.ArchivedAt = &at
		}
	}
	return nil
}

func (f *fakeRepo) ArchiveAssetsBySession(_ context.Context, sessionID string, at time.Time) error {
	for _, a := range f.assets {
		c := f.captures[a.CaptureID]
		if c != nil && c.SessionID != nil && *c.SessionID == sessionID {
			a.Archived = true
			a.ArchivedAt = &at
		}
	}
	return nil
}

func (f *fakeRepo) Flush(context.Context) error { return nil }
func (f *fakeRepo) Ping(context.Context) error  { return nil }
func (f *fakeRepo) Close() error                { return nil }

func newTestService(repo *fakeRepo, at time.Time) *Service {
	svc := NewService(repo, "UTC", logging.NewNop())
	svc.now = func() time.Time { return at }
	return svc
}

func strPtr(s string) *string { return &s }

func TestGetCurrentSessionSameDay(t *testing.T) {
	repo := newFakeRepo()
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	svc := newTestService(repo, at)
	ctx := context.Background()

	first, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, first.WasNewDaySession)

	// Later the same user-local day.
	svc.now = func() time.Time { return at.Add(8 * time.Hour) }
	second, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
}

func TestGetCurrentSessionDayRollover(t *testing.T) {
	repo := newFakeRepo()
	before := time.Date(2026, 8, 29, 23, 50, 0, 0, time.UTC)
	svc := newTestService(repo, before)
	ctx := context.Background()

	first, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)

	svc.now = func() time.Time { return before.Add(20 * time.Minute) } // Past midnight
	second, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)

	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.True(t, second.WasNewDaySession)
	assert.True(t, second.Created)
}

func TestDayRolloverInvokesHook(t *testing.T) {
	repo := newFakeRepo()
	before := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	svc := newTestService(repo, before)
	ctx := context.Background()

	var hookSession *types.WorkSession
	svc.OnDayRollover(func(_ context.Context, ws *types.WorkSession) {
		hookSession = ws
	})

	_, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, hookSession, "hook must not fire on first creation")

	svc.now = func() time.Time { return before.Add(2 * time.Hour) }
	second, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, hookSession)
	assert.Equal(t, second.Session.ID, hookSession.ID)
}

func TestHookPanicIsContained(t *testing.T) {
	repo := newFakeRepo()
	before := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	svc := newTestService(repo, before)
	ctx := context.Background()

	svc.OnDayRollover(func(context.Context, *types.WorkSession) {
		panic("hook gone wrong")
	})

	_, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)
	svc.now = func() time.Time { return before.Add(2 * time.Hour) }
	_, err = svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)
}

func TestSessionNameIsCreationDate(t *testing.T) {
	repo := newFakeRepo()
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	svc := newTestService(repo, at)

	result, err := svc.GetCurrentSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Saturday, August 29, 2026", result.Session.Name)
}

func TestArchiveSessionRestampsEverything(t *testing.T) {
	repo := newFakeRepo()
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, at)
	ctx := context.Background()

	created, err := svc.GetCurrentSession(ctx, "u1")
	require.NoError(t, err)
	sessionID := created.Session.ID

	earlier := at.Add(-time.Hour)
	repo.captures["cap_1"] = &types.Capture{ID: "cap_1", SessionID: &sessionID, UserID: strPtr("u1"), Archived: true, ArchivedAt: &earlier}
	repo.captures["cap_2"] = &types.Capture{ID: "cap_2", SessionID: &sessionID, UserID: strPtr("u1")}
	repo.assets["ast_1"] = &types.Asset{ID: "ast_1", CaptureID: "cap_1"}
	repo.assets["ast_2"] = &types.Asset{ID: "ast_2", CaptureID: "cap_2"}

	require.NoError(t, svc.ArchiveSession(ctx, sessionID))

	ws := repo.sessions[sessionID]
	require.NotNil(t, ws.ArchivedAt)

	for _, id := range []string{"cap_1", "cap_2"} {
		c := repo.captures[id]
		require.True(t, c.Archived)
		assert.False(t, c.ArchivedAt.Before(*ws.ArchivedAt))
		assert.Equal(t, at, *c.ArchivedAt, "session archive supersedes prior archive state")
	}
	for _, id := range []string{"ast_1", "ast_2"} {
		a := repo.assets[id]
		require.True(t, a.Archived)
		assert.False(t, a.ArchivedAt.Before(*ws.ArchivedAt))
	}
}

func TestArchiveCaptureOwnership(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	ctx := context.Background()

	repo.captures["cap_1"] = &types.Capture{ID: "cap_1", UserID: strPtr("owner")}
	repo.assets["ast_1"] = &types.Asset{ID: "ast_1", CaptureID: "cap_1"}

	err := svc.ArchiveCapture(ctx, "cap_1", "intruder")
	require.ErrorIs(t, err, ErrNotOwner)
	assert.False(t, repo.captures["cap_1"].Archived, "failed authorization must not write")
	assert.False(t, repo.assets["ast_1"].Archived)

	require.NoError(t, svc.ArchiveCapture(ctx, "cap_1", "owner"))
	assert.True(t, repo.captures["cap_1"].Archived)
	assert.True(t, repo.assets["ast_1"].Archived)
}

func TestArchiveCaptureOwnerless(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())

	repo.captures["cap_1"] = &types.Capture{ID: "cap_1"}
	require.NoError(t, svc.ArchiveCapture(context.Background(), "cap_1", "anyone"))
	assert.True(t, repo.captures["cap_1"].Archived)
}

func TestArchiveAssetAuthorization(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())
	ctx := context.Background()

	repo.captures["cap_1"] = &types.Capture{ID: "cap_1", UserID: strPtr("owner")}
	repo.assets["ast_1"] = &types.Asset{ID: "ast_1", CaptureID: "cap_1"}

	err := svc.ArchiveAsset(ctx, "ast_1", "intruder")
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Zero(t, repo.archiveAssetCalls, "authorization failure performs no write")

	require.NoError(t, svc.ArchiveAsset(ctx, "ast_1", "owner"))
	assert.True(t, repo.assets["ast_1"].Archived)
}

func TestUnarchiveCaptureLeavesSessionAndSiblings(t *testing.T) {
	repo := newFakeRepo()
	at := time.Now()
	svc := newTestService(repo, at)
	ctx := context.Background()

	sessionID := "sess_x"
	repo.sessions[sessionID] = &types.WorkSession{ID: sessionID, UserID: "u1", CreatedAt: at}
	repo.captures["cap_1"] = &types.Capture{ID: "cap_1", SessionID: &sessionID, UserID: strPtr("u1")}
	repo.captures["cap_2"] = &types.Capture{ID: "cap_2", SessionID: &sessionID, UserID: strPtr("u1")}
	repo.assets["ast_other"] = &types.Asset{ID: "ast_other", CaptureID: "cap_2"}

	require.NoError(t, svc.ArchiveSession(ctx, sessionID))
	require.NoError(t, svc.UnarchiveCapture(ctx, "cap_1", "u1"))

	assert.False(t, repo.captures["cap_1"].Archived)
	assert.True(t, repo.sessions[sessionID].Archived, "owning session unchanged")
	assert.True(t, repo.assets["ast_other"].Archived, "sibling assets unchanged")
}

func TestAutoRecoverRecentFlagsOnce(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	svc := newTestService(repo, now)
	ctx := context.Background()

	repo.sessions["sess_recent"] = &types.WorkSession{ID: "sess_recent", UserID: "u1", CreatedAt: now.Add(-time.Hour)}
	repo.sessions["sess_stale"] = &types.WorkSession{ID: "sess_stale", UserID: "u2", CreatedAt: now.Add(-48 * time.Hour)}

	flagged, err := svc.AutoRecoverRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
	assert.True(t, repo.sessions["sess_recent"].AutoRecovered)
	assert.False(t, repo.sessions["sess_stale"].AutoRecovered)

	// Second pass finds nothing: already flagged.
	flagged, err = svc.AutoRecoverRecent(ctx)
	require.NoError(t, err)
	assert.Zero(t, flagged)
}

func TestTimezoneFallback(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "Not/AZone", logging.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) }

	// Bad zone falls back to the host zone instead of failing creation.
	result, err := svc.GetCurrentSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Session.Name)
}
