package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicemimic/voice-compiler/internal/types"
)

func testDB(t *testing.T) *MetadataDB {
	t.Helper()
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewMetadataDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetArtifactBeforeAnyCompile(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetArtifact("never-compiled"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("err = %v, want ErrArtifactNotFound", err)
	}
}

func TestSaveAndGetArtifact(t *testing.T) {
	db := testDB(t)

	in := &types.CompiledArtifact{
		SessionID: "session-a",
		Key:       "uploads/session-a/compiled.wav",
		ByteSize:  1234,
		Manifest:  []string{"converted-001-a.wav", "converted-002-b.wav"},
		RemoteURL: "https://drive.google.com/file/d/x/view",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveArtifact(in); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	out, err := db.GetArtifact("session-a")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if out.Key != in.Key || out.ByteSize != in.ByteSize || out.RemoteURL != in.RemoteURL {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if len(out.Manifest) != 2 || out.Manifest[0] != "converted-001-a.wav" {
		t.Fatalf("manifest = %v", out.Manifest)
	}
}

func TestRecompileUpsertsSameSession(t *testing.T) {
	db := testDB(t)

	first := &types.CompiledArtifact{
		SessionID: "session-a",
		Key:       "uploads/session-a/compiled.wav",
		ByteSize:  100,
		Manifest:  []string{"one.wav"},
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveArtifact(first); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	second := &types.CompiledArtifact{
		SessionID: "session-a",
		Key:       "uploads/session-a/compiled.wav",
		ByteSize:  250,
		Manifest:  []string{"one.wav", "two.wav"},
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveArtifact(second); err != nil {
		t.Fatalf("recompile upsert: %v", err)
	}

	out, err := db.GetArtifact("session-a")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if out.ByteSize != 250 || len(out.Manifest) != 2 {
		t.Fatalf("expected updated row, got %+v", out)
	}

	all, err := db.ListArtifacts(10)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("recompile must not add a second row, got %d", len(all))
	}
}

func TestArtifactsOfDifferentSessionsStayApart(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"session-a", "session-b"} {
		a := &types.CompiledArtifact{
			SessionID: id,
			Key:       "uploads/" + id + "/compiled.wav",
			ByteSize:  1,
			Manifest:  []string{"x.wav"},
			CreatedAt: time.Now().UTC(),
		}
		if err := db.SaveArtifact(a); err != nil {
			t.Fatalf("SaveArtifact(%s): %v", id, err)
		}
	}

	a, err := db.GetArtifact("session-a")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	b, err := db.GetArtifact("session-b")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if a.Key == b.Key {
		t.Fatal("sessions must not share an artifact key")
	}
}
