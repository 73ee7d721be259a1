package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/storage"
	"github.com/voicemimic/voice-compiler/internal/types"
)

// SourceFile is one raw uploaded file, in submission order.
type SourceFile struct {
	Filename string // client-supplied name, preserved for traceability
	Path     string // location of the saved raw bytes
}

// ArtifactDB records compiled artifacts.
type ArtifactDB interface {
	SaveArtifact(a *types.CompiledArtifact) error
}

// RemoteStore mirrors a compiled artifact to remote storage.
type RemoteStore interface {
	Upload(ctx context.Context, sessionID, artifactPath string) (string, error)
}

// Options bound the pipeline's long-running stages.
type Options struct {
	ConvertTimeout time.Duration
	CompileTimeout time.Duration
	Workers        int
}

// Manager runs the per-session compile pipeline: normalize every source
// file, concatenate in submission order, persist, record metadata.
// Sessions are independent and run in parallel; within one session at most
// one compilation is in flight.
type Manager struct {
	engine Engine
	local  *storage.Local
	db     ArtifactDB
	remote RemoteStore
	log    *logger.Logger
	opts   Options

	mu       sync.Mutex
	inflight map[string]bool
}

func NewManager(engine Engine, local *storage.Local, db ArtifactDB, remote RemoteStore, log *logger.Logger, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ConvertTimeout <= 0 {
		opts.ConvertTimeout = 2 * time.Minute
	}
	if opts.CompileTimeout <= 0 {
		opts.CompileTimeout = 5 * time.Minute
	}
	return &Manager{
		engine:   engine,
		local:    local,
		db:       db,
		remote:   remote,
		log:      log,
		opts:     opts,
		inflight: make(map[string]bool),
	}
}

// Reserve marks the session as having a compilation in flight. Callers that
// stage input files into the session directory before enqueueing a job must
// reserve first: the session directory is shared, so a rejected duplicate
// that has already written into it would corrupt the admitted run's inputs.
func (m *Manager) Reserve(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[sessionID] {
		return &AlreadyCompilingError{SessionID: sessionID}
	}
	m.inflight[sessionID] = true
	return nil
}

// Release frees a reservation taken with Reserve.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, sessionID)
}

// Process compiles one session, reserving it for the duration of the run.
// Concatenation order is the order of files, which is the client's segment
// sequence order, never directory order.
func (m *Manager) Process(ctx context.Context, sessionID string, files []SourceFile) (*types.CompiledArtifact, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("session %s has no files to compile", sessionID)
	}
	if err := m.Reserve(sessionID); err != nil {
		return nil, err
	}
	defer m.Release(sessionID)
	return m.run(ctx, sessionID, files)
}

// ProcessReserved compiles a session whose reservation the caller already
// holds. The caller releases it when done.
func (m *Manager) ProcessReserved(ctx context.Context, sessionID string, files []SourceFile) (*types.CompiledArtifact, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("session %s has no files to compile", sessionID)
	}
	return m.run(ctx, sessionID, files)
}

func (m *Manager) run(ctx context.Context, sessionID string, files []SourceFile) (*types.CompiledArtifact, error) {
	slog := m.log.WithSession(sessionID)
	slog.WithField("files", len(files)).Info("compilation started")

	sessionDir, err := m.local.SessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	normalized, err := m.normalizeAll(ctx, sessionDir, files)
	if err != nil {
		slog.WithField("error", err.Error()).Warn("normalization aborted the session")
		return nil, err
	}
	defer removeAll(normalized)

	artifactPath := m.local.ArtifactPath(sessionID)
	if err := m.concatenate(ctx, normalized, artifactPath); err != nil {
		slog.WithField("error", err.Error()).Error("concatenation failed")
		return nil, err
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, &storage.PersistenceError{SessionID: sessionID, Err: err}
	}

	artifact := &types.CompiledArtifact{
		SessionID: sessionID,
		Key:       artifactPath,
		ByteSize:  info.Size(),
		Manifest:  manifestOf(normalized),
		CreatedAt: time.Now().UTC(),
	}

	// Remote mirror is best effort; the local artifact stays authoritative.
	if m.remote != nil {
		if url, err := m.remote.Upload(ctx, sessionID, artifactPath); err != nil {
			slog.WithField("error", err.Error()).Warn("remote artifact upload failed, keeping local copy only")
		} else {
			artifact.RemoteURL = url
		}
	}

	if err := m.db.SaveArtifact(artifact); err != nil {
		return nil, &storage.PersistenceError{SessionID: sessionID, Err: err}
	}

	slog.WithField("bytes", artifact.ByteSize).Info("compilation completed")
	return artifact, nil
}

// normalizeAll converts every source file to the canonical format with
// bounded parallelism. The output slice preserves the input order. The first
// failure cancels the remaining conversions and removes any intermediates
// already produced; the raw sources are left untouched for resubmission.
func (m *Manager) normalizeAll(ctx context.Context, sessionDir string, files []SourceFile) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outputs := make([]string, len(files))
	sem := make(chan struct{}, m.opts.Workers)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for i, f := range files {
		wg.Add(1)
		go func(i int, f SourceFile) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			out := filepath.Join(sessionDir, normalizedName(i, f.Filename))
			cctx, ccancel := context.WithTimeout(ctx, m.opts.ConvertTimeout)
			defer ccancel()

			if err := m.engine.Convert(cctx, f.Path, out); err != nil {
				os.Remove(out)
				errOnce.Do(func() {
					firstErr = &ConversionError{Filename: f.Filename, Err: err}
					cancel()
				})
				return
			}
			outputs[i] = out
		}(i, f)
	}
	wg.Wait()

	if firstErr != nil {
		removeAll(outputs)
		return nil, firstErr
	}
	for _, out := range outputs {
		if out == "" {
			removeAll(outputs)
			return nil, fmt.Errorf("normalization cancelled: %w", ctx.Err())
		}
	}
	return outputs, nil
}

// concatenate writes to a temporary name and atomically promotes it, so a
// failure never leaves a partially written artifact visible to readers.
func (m *Manager) concatenate(ctx context.Context, inputs []string, artifactPath string) error {
	tmp := filepath.Join(filepath.Dir(artifactPath), fmt.Sprintf(".compiled-%s.partial", uuid.New().String()))

	cctx, cancel := context.WithTimeout(ctx, m.opts.CompileTimeout)
	defer cancel()

	if err := m.engine.Concatenate(cctx, inputs, tmp); err != nil {
		os.Remove(tmp)
		return &CompilationError{Err: err}
	}
	if err := os.Rename(tmp, artifactPath); err != nil {
		os.Remove(tmp)
		return &CompilationError{Err: err}
	}
	return nil
}

func normalizedName(index int, filename string) string {
	base := storage.SanitizeFilename(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("converted-%03d-%s.wav", index+1, base)
}

func manifestOf(normalized []string) []string {
	manifest := make([]string, len(normalized))
	for i, p := range normalized {
		manifest[i] = filepath.Base(p)
	}
	return manifest
}

func removeAll(paths []string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}
