package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/storage"
	"github.com/voicemimic/voice-compiler/internal/types"
)

// ArtifactGetter looks up the compiled artifact recorded for a session.
type ArtifactGetter interface {
	GetArtifact(sessionID string) (*types.CompiledArtifact, error)
}

// Notifier hands an artifact reference to the downstream training job.
type Notifier interface {
	Notify(ctx context.Context, fileURL string) error
}

// TrainHandler triggers model training for a compiled session.
type TrainHandler struct {
	db         ArtifactGetter
	notifier   Notifier
	publicBase string
	log        *logger.Logger
}

func NewTrainHandler(db ArtifactGetter, notifier Notifier, publicBase string, log *logger.Logger) *TrainHandler {
	return &TrainHandler{
		db:         db,
		notifier:   notifier,
		publicBase: publicBase,
		log:        log,
	}
}

type trainRequest struct {
	SessionID string `json:"sessionId"`
}

// Handle processes the training trigger request.
func (h *TrainHandler) Handle(c *fiber.Ctx) error {
	var req trainRequest
	if err := c.BodyParser(&req); err != nil || !storage.ValidSessionID(req.SessionID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Missing or invalid sessionId",
			"code":    "ERR_BAD_SESSION",
		})
	}

	if _, err := h.db.GetArtifact(req.SessionID); err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Compiled file not found.",
				"code":    "ERR_NOT_COMPILED",
			})
		}
		h.log.WithSession(req.SessionID).WithField("error", err.Error()).Error("artifact lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to look up compiled file.",
			"code":    "ERR_LOOKUP_FAILED",
		})
	}

	fileURL := fmt.Sprintf("%s/uploads/%s/%s", h.publicBase, req.SessionID, storage.ArtifactName)
	if err := h.notifier.Notify(c.UserContext(), fileURL); err != nil {
		h.log.WithSession(req.SessionID).WithField("error", err.Error()).Error("training trigger failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to trigger model training.",
			"code":    "ERR_TRIGGER_FAILED",
		})
	}

	h.log.WithSession(req.SessionID).Info("model training triggered")
	return c.JSON(fiber.Map{
		"message": "Model training triggered successfully.",
	})
}
