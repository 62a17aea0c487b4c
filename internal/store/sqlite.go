package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/worksnap/backend/internal/shared/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency; foreign keys drive the
	// session -> capture -> asset delete cascade.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer: persistence is synchronous and serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS work_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		archived_at INTEGER,
		auto_recovered INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON work_sessions(user_id, archived, created_at);

	CREATE TABLE IF NOT EXISTS captures (
		id TEXT PRIMARY KEY,
		session_id TEXT REFERENCES work_sessions(id) ON DELETE CASCADE,
		user_id TEXT,
		name TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		archived_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_captures_session ON captures(session_id);
	CREATE INDEX IF NOT EXISTS idx_captures_user ON captures(user_id, archived, created_at);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		capture_id TEXT NOT NULL REFERENCES captures(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		path TEXT,
		content BLOB,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		archived_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_assets_capture ON assets(capture_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Flush checkpoints the WAL so completed writes survive an unclean exit.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// CreateSession inserts a new work session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, ws *types.WorkSession) error {
	query := `
	INSERT INTO work_sessions (id, user_id, name, description, created_at, archived, archived_at, auto_recovered)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ws.ID, ws.UserID, ws.Name, ws.Description,
		ws.CreatedAt.Unix(), boolInt(ws.Archived), nullTime(ws.ArchivedAt), boolInt(ws.AutoRecovered),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a work session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*types.WorkSession, error) {
	query := `
	SELECT id, user_id, name, description, created_at, archived, archived_at, auto_recovered
	FROM work_sessions WHERE id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, id))
}

// LatestActiveSession returns the most recent non-archived session for the user.
func (s *SQLiteStore) LatestActiveSession(ctx context.Context, userID string) (*types.WorkSession, error) {
	query := `
	SELECT id, user_id, name, description, created_at, archived, archived_at, auto_recovered
	FROM work_sessions
	WHERE user_id = ? AND archived = 0
	ORDER BY created_at DESC LIMIT 1`
	return scanSession(s.db.QueryRowContext(ctx, query, userID))
}

// UpdateSessionMeta updates the mutable name/description fields.
func (s *SQLiteStore) UpdateSessionMeta(ctx context.Context, id, name, description string) error {
	query := `UPDATE work_sessions SET name = ?, description = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, name, description, id)
	if err != nil {
		return fmt.Errorf("update session meta: %w", err)
	}
	return requireRow(res, "session", id)
}

// ArchiveSessionRow stamps the session itself as archived.
func (s *SQLiteStore) ArchiveSessionRow(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE work_sessions SET archived = 1, archived_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return requireRow(res, "session", id)
}

// SetSessionAutoRecovered flags the session as auto-recovered.
func (s *SQLiteStore) SetSessionAutoRecovered(ctx context.Context, id string) error {
	query := `UPDATE work_sessions SET auto_recovered = 1 WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("flag auto-recovered: %w", err)
	}
	return requireRow(res, "session", id)
}

// ActiveSessionsSince lists non-archived, not-yet-flagged sessions created
// at or after the given instant.
func (s *SQLiteStore) ActiveSessionsSince(ctx context.Context, since time.Time) ([]*types.WorkSession, error) {
	query := `
	SELECT id, user_id, name, description, created_at, archived, archived_at, auto_recovered
	FROM work_sessions
	WHERE archived = 0 AND auto_recovered = 0 AND created_at >= ?
	ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.WorkSession
	for rows.Next() {
		ws, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, ws)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session; captures and assets cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM work_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CreateCapture inserts a new capture row.
func (s *SQLiteStore) CreateCapture(ctx context.Context, c *types.Capture) error {
	query := `
	INSERT INTO captures (id, session_id, user_id, name, context, created_at, archived, archived_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, nullString(c.SessionID), nullString(c.UserID), c.Name, c.Context,
		c.CreatedAt.Unix(), boolInt(c.Archived), nullTime(c.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// GetCapture retrieves a capture by ID.
func (s *SQLiteStore) GetCapture(ctx context.Context, id string) (*types.Capture, error) {
	query := `
	SELECT id, session_id, user_id, name, context, created_at, archived, archived_at
	FROM captures WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var c types.Capture
	var sessionID, userID sql.NullString
	var createdAt int64
	var archived int
	var archivedAt sql.NullInt64

	err := row.Scan(&c.ID, &sessionID, &userID, &c.Name, &c.Context, &createdAt, &archived, &archivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan capture row: %w", err)
	}

	if sessionID.Valid {
		c.SessionID = &sessionID.String
	}
	if userID.Valid {
		c.UserID = &userID.String
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	c.Archived = archived != 0
	c.ArchivedAt = timePtr(archivedAt)
	return &c, nil
}

// ArchiveCaptureRow stamps a single capture as archived.
func (s *SQLiteStore) ArchiveCaptureRow(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE captures SET archived = 1, archived_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("archive capture: %w", err)
	}
	return requireRow(res, "capture", id)
}

// ArchiveCapturesBySession stamps every capture under the session, archived
// or not, with the given timestamp. Archiving a session supersedes any prior
// individual archive state within it.
func (s *SQLiteStore) ArchiveCapturesBySession(ctx context.Context, sessionID string, at time.Time) error {
	query := `UPDATE captures SET archived = 1, archived_at = ? WHERE session_id = ?`
	if _, err := s.db.ExecContext(ctx, query, at.Unix(), sessionID); err != nil {
		return fmt.Errorf("archive captures by session: %w", err)
	}
	return nil
}

// UnarchiveCaptureRow clears a capture's archive state without touching its
// assets or owning session.
func (s *SQLiteStore) UnarchiveCaptureRow(ctx context.Context, id string) error {
	query := `UPDATE captures SET archived = 0, archived_at = NULL WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("unarchive capture: %w", err)
	}
	return requireRow(res, "capture", id)
}

// ActiveCapturesByUser lists the user's non-archived captures, oldest first.
func (s *SQLiteStore) ActiveCapturesByUser(ctx context.Context, userID string) ([]*types.Capture, error) {
	query := `
	SELECT id, created_at FROM captures
	WHERE user_id = ? AND archived = 0
	ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query captures by user: %w", err)
	}
	defer rows.Close()

	var captures []*types.Capture
	for rows.Next() {
		var c types.Capture
		var createdAt int64
		if err := rows.Scan(&c.ID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan capture row: %w", err)
		}
		c.UserID = &userID
		c.CreatedAt = time.Unix(createdAt, 0)
		captures = append(captures, &c)
	}
	return captures, rows.Err()
}

// DeleteCapture removes a capture; assets cascade.
func (s *SQLiteStore) DeleteCapture(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	return nil
}

// InsertAsset inserts a single asset row.
func (s *SQLiteStore) InsertAsset(ctx context.Context, a *types.Asset) error {
	var metadata interface{}
	if len(a.Metadata) > 0 {
		doc, err := sonic.MarshalString(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal asset metadata: %w", err)
		}
		metadata = doc
	}

	var path interface{}
	if a.Path != nil {
		path = *a.Path
	}

	query := `
	INSERT INTO assets (id, capture_id, type, title, path, content, metadata, created_at, archived, archived_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.CaptureID, string(a.Type), a.Title, path, a.Content, metadata,
		a.CreatedAt.Unix(), boolInt(a.Archived), nullTime(a.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// GetAsset retrieves an asset by ID.
func (s *SQLiteStore) GetAsset(ctx context.Context, id string) (*types.Asset, error) {
	query := `
	SELECT id, capture_id, type, title, path, content, metadata, created_at, archived, archived_at
	FROM assets WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var a types.Asset
	var typ string
	var path, metadata sql.NullString
	var createdAt int64
	var archived int
	var archivedAt sql.NullInt64

	err := row.Scan(&a.ID, &a.CaptureID, &typ, &a.Title, &path, &a.Content, &metadata, &createdAt, &archived, &archivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset row: %w", err)
	}

	a.Type = types.AssetType(typ)
	if path.Valid {
		a.Path = &path.String
	}
	if metadata.Valid && metadata.String != "" {
		if err := sonic.UnmarshalString(metadata.String, &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal asset metadata: %w", err)
		}
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	a.Archived = archived != 0
	a.ArchivedAt = timePtr(archivedAt)
	return &a, nil
}

// CountAssets counts assets owned by the capture.
func (s *SQLiteStore) CountAssets(ctx context.Context, captureID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE capture_id = ?`, captureID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return count, nil
}

// ArchiveAssetRow stamps a single asset as archived.
func (s *SQLiteStore) ArchiveAssetRow(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE assets SET archived = 1, archived_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("archive asset: %w", err)
	}
	return requireRow(res, "asset", id)
}

// ArchiveAssetsByCapture stamps every asset under the capture.
func (s *SQLiteStore) ArchiveAssetsByCapture(ctx context.Context, captureID string, at time.Time) error {
	query := `UPDATE assets SET archived = 1, archived_at = ? WHERE capture_id = ?`
	if _, err := s.db.ExecContext(ctx, query, at.Unix(), captureID); err != nil {
		return fmt.Errorf("archive assets by capture: %w", err)
	}
	return nil
}

// ArchiveAssetsBySession stamps every asset under every capture of the session.
func (s *SQLiteStore) ArchiveAssetsBySession(ctx context.Context, sessionID string, at time.Time) error {
	query := `
	UPDATE assets SET archived = 1, archived_at = ?
	WHERE capture_id IN (SELECT id FROM captures WHERE session_id = ?)`
	if _, err := s.db.ExecContext(ctx, query, at.Unix(), sessionID); err != nil {
		return fmt.Errorf("archive assets by session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*types.WorkSession, error) {
	var ws types.WorkSession
	var createdAt int64
	var archived, autoRecovered int
	var archivedAt sql.NullInt64

	err := row.Scan(&ws.ID, &ws.UserID, &ws.Name, &ws.Description, &createdAt, &archived, &archivedAt, &autoRecovered)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	ws.CreatedAt = time.Unix(createdAt, 0)
	ws.Archived = archived != 0
	ws.ArchivedAt = timePtr(archivedAt)
	ws.AutoRecovered = autoRecovered != 0
	return &ws, nil
}

func scanSessionRows(rows *sql.Rows) (*types.WorkSession, error) {
	var ws types.WorkSession
	var createdAt int64
	var archived, autoRecovered int
	var archivedAt sql.NullInt64

	err := rows.Scan(&ws.ID, &ws.UserID, &ws.Name, &ws.Description, &createdAt, &archived, &archivedAt, &autoRecovered)
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	ws.CreatedAt = time.Unix(createdAt, 0)
	ws.Archived = archived != 0
	ws.ArchivedAt = timePtr(archivedAt)
	ws.AutoRecovered = autoRecovered != 0
	return &ws, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func requireRow(res sql.Result, entity, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
