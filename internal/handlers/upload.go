package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/pipeline"
	"github.com/voicemimic/voice-compiler/internal/queue"
	"github.com/voicemimic/voice-compiler/internal/storage"
)

// UploadHandler receives a session's segments as one multipart request,
// hands them to the compile pipeline and answers with the artifact
// reference.
type UploadHandler struct {
	pool       *queue.WorkerPool
	local      *storage.Local
	publicBase string
	maxSizeMB  int
	log        *logger.Logger
}

func NewUploadHandler(pool *queue.WorkerPool, local *storage.Local, publicBase string, maxSizeMB int, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		pool:       pool,
		local:      local,
		publicBase: publicBase,
		maxSizeMB:  maxSizeMB,
		log:        log,
	}
}

// Handle processes the upload request.
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Expected a multipart upload",
			"code":    "ERR_BAD_REQUEST",
		})
	}

	sessionID := c.FormValue("sessionId")
	if !storage.ValidSessionID(sessionID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Missing or invalid sessionId",
			"code":    "ERR_BAD_SESSION",
		})
	}

	parts := form.File["files"]
	if len(parts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "No files uploaded",
			"code":    "ERR_NO_FILES",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	for _, part := range parts {
		if part.Size > maxSize {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": fmt.Sprintf("File %s too large (max %dMB)", part.Filename, h.maxSizeMB),
				"code":    "ERR_FILE_TOO_LARGE",
			})
		}
		if !pipeline.ValidateAudioFormat(part.Filename) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": fmt.Sprintf("Unsupported audio format: %s", part.Filename),
				"code":    "ERR_INVALID_FORMAT",
			})
		}
	}

	// Reserve the session before staging any bytes. The session directory is
	// shared, so a duplicate request that saved first would overwrite the
	// admitted run's inputs mid-read.
	if err := h.pool.Reserve(sessionID); err != nil {
		return h.compileFailed(c, sessionID, err)
	}

	// Save raw sources in part order: this is the client's segment
	// sequence order and determines concatenation order.
	files := make([]pipeline.SourceFile, 0, len(parts))
	for _, part := range parts {
		src, err := part.Open()
		if err != nil {
			h.pool.Release(sessionID)
			return h.saveFailed(c, sessionID, err)
		}
		path, err := h.local.SaveSource(sessionID, part.Filename, src)
		src.Close()
		if err != nil {
			h.pool.Release(sessionID)
			return h.saveFailed(c, sessionID, err)
		}
		files = append(files, pipeline.SourceFile{Filename: part.Filename, Path: path})
	}

	job := queue.NewJob(c.UserContext(), sessionID, files)
	h.pool.Enqueue(job)

	select {
	case <-job.Done():
	case <-c.UserContext().Done():
		return c.Status(fiber.StatusRequestTimeout).JSON(fiber.Map{
			"message": "Client disconnected before compilation finished",
			"code":    "ERR_CANCELLED",
		})
	}

	if job.Err != nil {
		return h.compileFailed(c, sessionID, job.Err)
	}

	return c.JSON(fiber.Map{
		"message":      "Files uploaded, converted, and compiled successfully.",
		"compiledFile": fmt.Sprintf("%s/uploads/%s/%s", h.publicBase, sessionID, storage.ArtifactName),
		"manifest":     job.Artifact.Manifest,
		"bytes":        job.Artifact.ByteSize,
	})
}

func (h *UploadHandler) saveFailed(c *fiber.Ctx, sessionID string, err error) error {
	h.log.WithSession(sessionID).WithField("error", err.Error()).Error("failed to save uploaded file")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Failed to save uploaded files",
		"code":    "ERR_SAVE_FAILED",
	})
}

func (h *UploadHandler) compileFailed(c *fiber.Ctx, sessionID string, err error) error {
	var (
		already *pipeline.AlreadyCompilingError
		conv    *pipeline.ConversionError
	)
	switch {
	case errors.As(err, &already):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": err.Error(),
			"code":    "ERR_ALREADY_COMPILING",
		})
	case errors.As(err, &conv):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": fmt.Sprintf("Failed to convert %s; remove or replace it and try again.", conv.Filename),
			"code":    "ERR_CONVERSION_FAILED",
			"file":    conv.Filename,
		})
	default:
		h.log.WithSession(sessionID).WithField("error", err.Error()).Error("compilation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to process files.",
			"code":    "ERR_COMPILE_FAILED",
		})
	}
}
