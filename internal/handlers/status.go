package handlers

import (
	"github.com/gofiber/websocket/v2"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/queue"
	"github.com/voicemimic/voice-compiler/internal/storage"
	"github.com/voicemimic/voice-compiler/internal/types"
)

// StatusHandler streams compile job status updates for one session over a
// websocket until the job reaches a terminal state.
type StatusHandler struct {
	hub *queue.Hub
	log *logger.Logger
}

func NewStatusHandler(hub *queue.Hub, log *logger.Logger) *StatusHandler {
	return &StatusHandler{hub: hub, log: log}
}

// statusConn is the part of the websocket connection the stream uses;
// *websocket.Conn implements it.
type statusConn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
}

// Handle serves one websocket subscriber.
func (h *StatusHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	sessionID := c.Params("sessionId")
	if !storage.ValidSessionID(sessionID) {
		c.WriteJSON(types.JobUpdate{Status: types.StatusFailed, Error: "invalid session id"})
		return
	}

	updates, cancel := h.hub.Subscribe(sessionID)
	defer cancel()

	h.log.WithSession(sessionID).Debug("status subscriber connected")
	h.stream(c, updates)
}

// stream forwards updates until the job is terminal or the peer goes away.
// The read loop exists only to detect disconnects; a subscriber with no
// active job would otherwise pin its hub subscription forever. Inbound
// frames are discarded.
func (h *StatusHandler) stream(c statusConn, updates <-chan types.JobUpdate) {
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update := <-updates:
			if err := c.WriteJSON(update); err != nil {
				return
			}
			if update.Status == types.StatusCompleted || update.Status == types.StatusFailed {
				return
			}
		case <-disconnected:
			return
		}
	}
}
