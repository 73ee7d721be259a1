package queue

import (
	"sync"

	"github.com/voicemimic/voice-compiler/internal/types"
)

// Hub fans job status updates out to subscribers keyed by session ID.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan types.JobUpdate]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan types.JobUpdate]struct{})}
}

// Subscribe returns a channel of updates for one session and a cancel
// function that must be called when the subscriber goes away.
func (h *Hub) Subscribe(sessionID string) (<-chan types.JobUpdate, func()) {
	ch := make(chan types.JobUpdate, 8)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan types.JobUpdate]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers an update to every subscriber of the session. Slow
// subscribers drop updates rather than stalling the pipeline.
func (h *Hub) Publish(u types.JobUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[u.SessionID] {
		select {
		case ch <- u:
		default:
		}
	}
}
