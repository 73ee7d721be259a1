package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/storage"
)

// Scheduler periodically removes stale raw uploads and normalization
// intermediates from session directories. Compiled artifacts are never
// swept: they stay downloadable until the operator removes the session.
type Scheduler struct {
	uploadsDir      string
	intervalMinutes int
	maxAgeHours     int
	log             *logger.Logger
	stopChan        chan struct{}
}

func NewScheduler(uploadsDir string, intervalMinutes, maxAgeHours int, log *logger.Logger) *Scheduler {
	return &Scheduler{
		uploadsDir:      uploadsDir,
		intervalMinutes: intervalMinutes,
		maxAgeHours:     maxAgeHours,
		log:             log,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the sweeper.
func (s *Scheduler) Start() {
	s.sweep()

	ticker := time.NewTicker(time.Duration(s.intervalMinutes) * time.Minute)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.WithField("interval_minutes", s.intervalMinutes).
		WithField("max_age_hours", s.maxAgeHours).
		Info("cleanup scheduler started")
}

// Stop stops the sweeper.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.log.Info("cleanup scheduler stopped")
}

// sweep removes stale intermediates older than maxAgeHours.
func (s *Scheduler) sweep() {
	now := time.Now()
	maxAge := time.Duration(s.maxAgeHours) * time.Hour

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.uploadsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip entries we cannot access
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Base(path) == storage.ArtifactName {
			return nil
		}

		if now.Sub(info.ModTime()) > maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				s.log.WithField("path", path).WithField("error", err.Error()).Warn("failed to delete stale file")
			} else {
				deletedCount++
				deletedSize += size
			}
		}
		return nil
	})

	if err != nil {
		s.log.WithField("error", err.Error()).Warn("cleanup sweep failed")
	}
	if deletedCount > 0 {
		s.log.WithField("files", deletedCount).
			WithField("mb_freed", float64(deletedSize)/(1024*1024)).
			Info("cleanup sweep complete")
	}
}
