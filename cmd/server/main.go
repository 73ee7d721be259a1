package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/voicemimic/voice-compiler/internal/cleanup"
	"github.com/voicemimic/voice-compiler/internal/config"
	"github.com/voicemimic/voice-compiler/internal/handlers"
	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/pipeline"
	"github.com/voicemimic/voice-compiler/internal/queue"
	"github.com/voicemimic/voice-compiler/internal/storage"
	"github.com/voicemimic/voice-compiler/internal/training"
)

func main() {
	log := logger.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	publicBase := cfg.Server.PublicURL
	if publicBase == "" {
		publicBase = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	// Storage
	local, err := storage.NewLocal(cfg.Storage.UploadsDir)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare uploads directory")
	}

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// Remote artifact mirror (optional - may be absent if credentials not set up)
	var remote pipeline.RemoteStore
	if cfg.GoogleDrive.CredentialsFile != "" {
		if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
			drive, err := storage.NewDriveStore(
				cfg.GoogleDrive.CredentialsFile,
				cfg.GoogleDrive.TokenFile,
				cfg.GoogleDrive.FolderName,
			)
			if err != nil {
				log.WithError(err).Warn("Google Drive not available, artifacts will only be stored locally")
			} else {
				remote = drive
				log.Info("Google Drive artifact mirroring enabled")
			}
		} else {
			log.Info("Google Drive credentials not found, storing artifacts locally only")
		}
	}

	// Compile pipeline
	engine := pipeline.NewFFmpegEngine(cfg.Audio.FFmpegBin, cfg.Audio.SampleRate, cfg.Audio.Codec)
	manager := pipeline.NewManager(engine, local, db, remote, log, pipeline.Options{
		ConvertTimeout: cfg.ConvertTimeout(),
		CompileTimeout: cfg.CompileTimeout(),
		Workers:        cfg.Workers.Count,
	})

	pool := queue.NewWorkerPool(cfg.Workers.Count, manager, log)
	pool.Start()
	defer pool.Stop()

	// Cleanup scheduler
	sweeper := cleanup.NewScheduler(cfg.Storage.UploadsDir, cfg.Cleanup.IntervalMinutes, cfg.Cleanup.MaxAgeHours, log)
	sweeper.Start()
	defer sweeper.Stop()

	// Training trigger
	trigger := training.New(
		cfg.Training.Endpoint,
		cfg.TrainingTimeout(),
		cfg.TrainingMaxRetry(),
	)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	uploadHandler := handlers.NewUploadHandler(pool, local, publicBase, cfg.Limits.MaxFileSizeMB, log)
	trainHandler := handlers.NewTrainHandler(db, trigger, publicBase, log)
	statusHandler := handlers.NewStatusHandler(pool.Hub(), log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.Post("/api/upload", uploadHandler.Handle)
	app.Post("/api/upload-model", trainHandler.Handle)
	app.Get("/ws/status/:sessionId", websocket.New(statusHandler.Handle))

	app.Get("/api/artifacts", func(c *fiber.Ctx) error {
		artifacts, err := db.ListArtifacts(50)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
		}
		return c.JSON(artifacts)
	})

	// Compiled artifacts are downloadable for playback
	app.Static("/uploads", cfg.Storage.UploadsDir)

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("shutting down gracefully")
		app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("server starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}
