package queue

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/pipeline"
	"github.com/voicemimic/voice-compiler/internal/storage"
	"github.com/voicemimic/voice-compiler/internal/types"
)

type copyEngine struct {
	convertErr error
}

func (e *copyEngine) Convert(ctx context.Context, src, dst string) error {
	if e.convertErr != nil {
		return e.convertErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func (e *copyEngine) Concatenate(ctx context.Context, srcs []string, dst string) error {
	var out []byte
	for _, src := range srcs {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		out = append(out, data...)
	}
	return os.WriteFile(dst, out, 0644)
}

type memDB struct{}

func (memDB) SaveArtifact(*types.CompiledArtifact) error { return nil }

func testPool(t *testing.T, engine pipeline.Engine) (*WorkerPool, *storage.Local) {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	log := logger.New()
	manager := pipeline.NewManager(engine, local, memDB{}, nil, log, pipeline.Options{Workers: 2})
	pool := NewWorkerPool(2, manager, log)
	pool.Start()
	t.Cleanup(pool.Stop)
	return pool, local
}

func enqueueSession(t *testing.T, pool *WorkerPool, local *storage.Local, sessionID string) *Job {
	t.Helper()
	if err := pool.Reserve(sessionID); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	path, err := local.SaveSource(sessionID, "clip.wav", strings.NewReader("pcm"))
	if err != nil {
		t.Fatalf("SaveSource: %v", err)
	}
	job := NewJob(context.Background(), sessionID, []pipeline.SourceFile{{Filename: "clip.wav", Path: path}})
	pool.Enqueue(job)
	return job
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job never finished")
	}
}

func TestPoolCompletesJob(t *testing.T) {
	pool, local := testPool(t, &copyEngine{})
	job := enqueueSession(t, pool, local, "sess-ok")
	waitDone(t, job)

	if job.Status != types.StatusCompleted || job.Err != nil {
		t.Fatalf("job = %s, err = %v", job.Status, job.Err)
	}
	if job.Artifact == nil || !local.ArtifactExists("sess-ok") {
		t.Fatal("completed job must have a published artifact")
	}

	// The pool released the reservation when the job finished.
	if err := pool.Reserve("sess-ok"); err != nil {
		t.Fatalf("session still reserved after completion: %v", err)
	}
	pool.Release("sess-ok")
}

func TestPoolReportsFailure(t *testing.T) {
	pool, local := testPool(t, &copyEngine{convertErr: errors.New("bad input")})
	job := enqueueSession(t, pool, local, "sess-bad")
	waitDone(t, job)

	if job.Status != types.StatusFailed {
		t.Fatalf("status = %s, want FAILED", job.Status)
	}
	var conv *pipeline.ConversionError
	if !errors.As(job.Err, &conv) {
		t.Fatalf("err = %v, want ConversionError", job.Err)
	}
	if local.ArtifactExists("sess-bad") {
		t.Fatal("failed job must not publish an artifact")
	}
}

func TestHubSeesTerminalUpdate(t *testing.T) {
	pool, local := testPool(t, &copyEngine{})

	updates, cancel := pool.Hub().Subscribe("sess-watched")
	defer cancel()

	job := enqueueSession(t, pool, local, "sess-watched")
	waitDone(t, job)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Status == types.StatusCompleted {
				if u.Artifact == "" {
					t.Fatal("terminal update must carry the artifact reference")
				}
				return
			}
		case <-deadline:
			t.Fatal("never saw a terminal update")
		}
	}
}
