package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactName is the well-known artifact filename inside a session
// directory.
const ArtifactName = "compiled.wav"

// PersistenceError reports that an artifact was produced but not durably
// recorded. It must never be reported to the client as success.
type PersistenceError struct {
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist artifact for session %s: %v", e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Local stores raw uploads and compiled artifacts on the filesystem, one
// directory per session. The namespace is partitioned by session ID, so
// artifacts of different sessions can never collide.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads root: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Root() string { return l.root }

// ValidSessionID accepts the identifiers the client generates (uuid-shaped)
// and rejects anything that could escape the session namespace.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// SessionDir returns the session's directory, creating it if needed.
func (l *Local) SessionDir(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	dir := filepath.Join(l.root, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

// ArtifactPath is the well-known location of the session's compiled
// artifact, derived from the session identifier alone.
func (l *Local) ArtifactPath(sessionID string) string {
	return filepath.Join(l.root, sessionID, ArtifactName)
}

// ArtifactExists reports whether a compiled artifact is already on disk.
func (l *Local) ArtifactExists(sessionID string) bool {
	if !ValidSessionID(sessionID) {
		return false
	}
	_, err := os.Stat(l.ArtifactPath(sessionID))
	return err == nil
}

// SaveSource writes one raw uploaded file into the session directory under
// its (sanitized) original name and returns the path.
func (l *Local) SaveSource(sessionID, filename string, src io.Reader) (string, error) {
	dir, err := l.SessionDir(sessionID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, SanitizeFilename(filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create source file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write source file: %w", err)
	}
	return path, nil
}

// SanitizeFilename strips path separators and characters that are unsafe in
// filenames, keeping the original name recognizable for traceability.
func SanitizeFilename(name string) string {
	result := filepath.Base(name)
	for _, c := range []string{":", "*", "?", "\"", "<", ">", "|"} {
		result = strings.ReplaceAll(result, c, "_")
	}
	if result == "" || result == "." || result == ".." {
		result = "unnamed"
	}
	if len(result) > 100 {
		result = result[len(result)-100:]
	}
	return result
}
