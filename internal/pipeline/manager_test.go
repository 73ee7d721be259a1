package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/storage"
	"github.com/voicemimic/voice-compiler/internal/types"
)

// stubEngine is a deterministic stand-in for ffmpeg: Convert prefixes the
// source bytes, Concatenate joins inputs in order.
type stubEngine struct {
	failConvertOn string
	concatErr     error

	enterConcat chan struct{} // if set, signaled when Concatenate starts
	release     chan struct{} // if set, Concatenate blocks until closed
}

func (e *stubEngine) Convert(ctx context.Context, src, dst string) error {
	if e.failConvertOn != "" && strings.Contains(src, e.failConvertOn) {
		return fmt.Errorf("unsupported codec in %s", filepath.Base(src))
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("NORM|"), data...), 0644)
}

func (e *stubEngine) Concatenate(ctx context.Context, srcs []string, dst string) error {
	if e.enterConcat != nil {
		select {
		case e.enterConcat <- struct{}{}:
		default:
		}
	}
	if e.release != nil {
		<-e.release
	}
	if e.concatErr != nil {
		return e.concatErr
	}
	var out bytes.Buffer
	for _, src := range srcs {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		out.Write(data)
	}
	return os.WriteFile(dst, out.Bytes(), 0644)
}

type fakeDB struct {
	mu    sync.Mutex
	saved []*types.CompiledArtifact
	err   error
}

func (f *fakeDB) SaveArtifact(a *types.CompiledArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, a)
	return nil
}

func testManager(t *testing.T, engine Engine, db ArtifactDB) (*Manager, *storage.Local) {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	m := NewManager(engine, local, db, nil, logger.New(), Options{
		ConvertTimeout: 5 * time.Second,
		CompileTimeout: 5 * time.Second,
		Workers:        2,
	})
	return m, local
}

func writeSources(t *testing.T, local *storage.Local, sessionID string, names ...string) []SourceFile {
	t.Helper()
	files := make([]SourceFile, len(names))
	for i, name := range names {
		path, err := local.SaveSource(sessionID, name, strings.NewReader("data-of-"+name))
		if err != nil {
			t.Fatalf("SaveSource(%s): %v", name, err)
		}
		files[i] = SourceFile{Filename: name, Path: path}
	}
	return files
}

func TestProcessConcatenatesInSubmissionOrder(t *testing.T) {
	db := &fakeDB{}
	m, local := testManager(t, &stubEngine{}, db)

	// Submission order deliberately differs from lexical order.
	files := writeSources(t, local, "sess-1", "c.wav", "a.wav", "b.wav")

	artifact, err := m.Process(context.Background(), "sess-1", files)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := os.ReadFile(artifact.Key)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	want := "NORM|data-of-c.wavNORM|data-of-a.wavNORM|data-of-b.wav"
	if string(got) != want {
		t.Fatalf("artifact = %q, want submission order, %q", got, want)
	}

	if len(artifact.Manifest) != 3 ||
		!strings.Contains(artifact.Manifest[0], "001-c") ||
		!strings.Contains(artifact.Manifest[1], "002-a") ||
		!strings.Contains(artifact.Manifest[2], "003-b") {
		t.Fatalf("manifest = %v", artifact.Manifest)
	}
	if len(db.saved) != 1 || db.saved[0].SessionID != "sess-1" {
		t.Fatalf("db.saved = %+v", db.saved)
	}

	// Intermediates are cleaned up, raw sources stay.
	entries, _ := os.ReadDir(filepath.Dir(artifact.Key))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "converted-") || strings.HasSuffix(e.Name(), ".partial") {
			t.Fatalf("leftover intermediate %s", e.Name())
		}
	}
	if _, err := os.Stat(files[0].Path); err != nil {
		t.Fatalf("raw source removed: %v", err)
	}
}

func TestRecompileIsIdempotent(t *testing.T) {
	db := &fakeDB{}
	m, local := testManager(t, &stubEngine{}, db)
	files := writeSources(t, local, "sess-1", "a.wav", "b.wav")

	first, err := m.Process(context.Background(), "sess-1", files)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	firstBytes, _ := os.ReadFile(first.Key)

	second, err := m.Process(context.Background(), "sess-1", files)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	secondBytes, _ := os.ReadFile(second.Key)

	if first.Key != second.Key {
		t.Fatalf("recompile changed the artifact key: %q vs %q", first.Key, second.Key)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Fatal("recompiling the same ordered inputs must produce byte-identical output")
	}
}

func TestConcurrentCompilesAdmitExactlyOne(t *testing.T) {
	engine := &stubEngine{
		enterConcat: make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	db := &fakeDB{}
	m, local := testManager(t, engine, db)
	files := writeSources(t, local, "sess-1", "a.wav")

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = m.Process(context.Background(), "sess-1", files)
	}()

	<-engine.enterConcat // first run is inside the engine

	_, secondErr := m.Process(context.Background(), "sess-1", files)
	var already *AlreadyCompilingError
	if !errors.As(secondErr, &already) {
		t.Fatalf("second Process err = %v, want AlreadyCompilingError", secondErr)
	}

	close(engine.release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first Process: %v", firstErr)
	}

	// The flag is released after completion: a later run is admitted.
	if _, err := m.Process(context.Background(), "sess-1", files); err != nil {
		t.Fatalf("post-completion Process: %v", err)
	}
}

func TestConversionFailureAbortsWholeSession(t *testing.T) {
	db := &fakeDB{}
	m, local := testManager(t, &stubEngine{failConvertOn: "b.wav"}, db)
	files := writeSources(t, local, "sess-1", "a.wav", "b.wav", "c.wav")

	_, err := m.Process(context.Background(), "sess-1", files)
	var conv *ConversionError
	if !errors.As(err, &conv) {
		t.Fatalf("err = %v, want ConversionError", err)
	}
	if conv.Filename != "b.wav" {
		t.Fatalf("failing file = %q, want b.wav", conv.Filename)
	}

	if local.ArtifactExists("sess-1") {
		t.Fatal("no artifact may be published after a conversion failure")
	}
	if len(db.saved) != 0 {
		t.Fatal("nothing may be persisted after a conversion failure")
	}
	// Raw sources survive for resubmission; intermediates do not.
	dir, _ := local.SessionDir("sess-1")
	entries, _ := os.ReadDir(dir)
	var raws int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "converted-") {
			t.Fatalf("leftover intermediate %s", e.Name())
		}
		raws++
	}
	if raws != 3 {
		t.Fatalf("raw sources = %d, want 3", raws)
	}
}

func TestConcatFailurePublishesNothing(t *testing.T) {
	db := &fakeDB{}
	m, local := testManager(t, &stubEngine{concatErr: errors.New("demuxer exploded")}, db)
	files := writeSources(t, local, "sess-1", "a.wav")

	_, err := m.Process(context.Background(), "sess-1", files)
	var comp *CompilationError
	if !errors.As(err, &comp) {
		t.Fatalf("err = %v, want CompilationError", err)
	}
	if local.ArtifactExists("sess-1") {
		t.Fatal("no partial artifact may be visible")
	}
	dir, _ := local.SessionDir("sess-1")
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".partial") {
			t.Fatalf("leftover partial %s", e.Name())
		}
	}
}

func TestMetadataFailureIsNotSuccess(t *testing.T) {
	db := &fakeDB{err: errors.New("disk full")}
	m, local := testManager(t, &stubEngine{}, db)
	files := writeSources(t, local, "sess-1", "a.wav")

	_, err := m.Process(context.Background(), "sess-1", files)
	var persist *storage.PersistenceError
	if !errors.As(err, &persist) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
}

func TestValidateAudioFormat(t *testing.T) {
	for _, name := range []string{"a.wav", "b.MP3", "c.m4a", "d.flac", "e.webm"} {
		if !ValidateAudioFormat(name) {
			t.Errorf("ValidateAudioFormat(%q) = false", name)
		}
	}
	for _, name := range []string{"notes.txt", "movie.mkv", "archive.zip", "noext"} {
		if ValidateAudioFormat(name) {
			t.Errorf("ValidateAudioFormat(%q) = true", name)
		}
	}
}
