package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/queue"
	"github.com/voicemimic/voice-compiler/internal/types"
)

// fakeSocket blocks in ReadMessage until an error is pushed, like a peer
// that is silent until it disconnects.
type fakeSocket struct {
	readErr chan error
	wrote   chan types.JobUpdate
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		readErr: make(chan error),
		wrote:   make(chan types.JobUpdate, 8),
	}
}

func (f *fakeSocket) WriteJSON(v interface{}) error {
	f.wrote <- v.(types.JobUpdate)
	return nil
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	return 0, nil, <-f.readErr
}

func recvUpdate(t *testing.T, ch chan types.JobUpdate) types.JobUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update written")
		return types.JobUpdate{}
	}
}

func TestStatusStreamEndsWhenPeerDisconnects(t *testing.T) {
	hub := queue.NewHub()
	updates, cancel := hub.Subscribe("sess-idle")
	defer cancel()

	h := NewStatusHandler(hub, logger.New())
	sock := newFakeSocket()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.stream(sock, updates)
	}()

	// Nothing is publishing for this session; the peer goes away.
	sock.readErr <- errors.New("peer closed")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream must end when the subscriber disconnects")
	}
}

func TestStatusStreamStopsAtTerminalUpdate(t *testing.T) {
	hub := queue.NewHub()
	updates, cancel := hub.Subscribe("sess-1")
	defer cancel()

	h := NewStatusHandler(hub, logger.New())
	sock := newFakeSocket()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.stream(sock, updates)
	}()

	hub.Publish(types.JobUpdate{SessionID: "sess-1", Status: types.StatusProcessing})
	hub.Publish(types.JobUpdate{
		SessionID: "sess-1",
		Status:    types.StatusCompleted,
		Artifact:  "uploads/sess-1/compiled.wav",
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream must end at a terminal status")
	}

	if u := recvUpdate(t, sock.wrote); u.Status != types.StatusProcessing {
		t.Fatalf("first update = %+v, want PROCESSING", u)
	}
	u := recvUpdate(t, sock.wrote)
	if u.Status != types.StatusCompleted || u.Artifact == "" {
		t.Fatalf("terminal update = %+v, want COMPLETED with artifact", u)
	}

	sock.readErr <- errors.New("closing") // let the read loop exit
}
