package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/voicemimic/voice-compiler/internal/types"
)

// ErrArtifactNotFound is returned when no compiled artifact has been
// recorded for a session.
var ErrArtifactNotFound = errors.New("no compiled artifact for session")

// MetadataDB records compiled artifacts in SQLite. The training trigger
// consults it before notifying the downstream job.
type MetadataDB struct {
	db *sql.DB
}

func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		key TEXT NOT NULL,
		byte_size INTEGER NOT NULL,
		manifest TEXT NOT NULL,
		remote_url TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveArtifact records a compiled artifact. Recompiling a session upserts
// the same row: the session_id key makes re-runs idempotent and makes
// cross-session overwrites impossible.
func (mdb *MetadataDB) SaveArtifact(a *types.CompiledArtifact) error {
	manifest, err := json.Marshal(a.Manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	query := `
	INSERT INTO artifacts (session_id, key, byte_size, manifest, remote_url, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		key = excluded.key,
		byte_size = excluded.byte_size,
		manifest = excluded.manifest,
		remote_url = excluded.remote_url,
		created_at = excluded.created_at
	`

	_, err = mdb.db.Exec(query, a.SessionID, a.Key, a.ByteSize, string(manifest), a.RemoteURL, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save artifact metadata: %w", err)
	}
	return nil
}

// GetArtifact retrieves the compiled artifact recorded for a session.
func (mdb *MetadataDB) GetArtifact(sessionID string) (*types.CompiledArtifact, error) {
	query := `
	SELECT session_id, key, byte_size, manifest, remote_url, created_at
	FROM artifacts WHERE session_id = ?
	`

	row := mdb.db.QueryRow(query, sessionID)

	var (
		a        types.CompiledArtifact
		manifest string
		remote   sql.NullString
	)
	err := row.Scan(&a.SessionID, &a.Key, &a.ByteSize, &manifest, &remote, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	if err := json.Unmarshal([]byte(manifest), &a.Manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	a.RemoteURL = remote.String
	return &a, nil
}

// ListArtifacts returns the most recently compiled artifacts.
func (mdb *MetadataDB) ListArtifacts(limit int) ([]*types.CompiledArtifact, error) {
	query := `
	SELECT session_id, key, byte_size, manifest, remote_url, created_at
	FROM artifacts ORDER BY created_at DESC LIMIT ?
	`

	rows, err := mdb.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*types.CompiledArtifact
	for rows.Next() {
		var (
			a        types.CompiledArtifact
			manifest string
			remote   sql.NullString
		)
		if err := rows.Scan(&a.SessionID, &a.Key, &a.ByteSize, &manifest, &remote, &a.CreatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(manifest), &a.Manifest); err != nil {
			continue
		}
		a.RemoteURL = remote.String
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

// Close closes the database connection.
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
