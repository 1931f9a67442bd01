package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"civic-os/internal/config"
	"civic-os/internal/features/importer"
)

// purgeSchedule runs the retention sweep hourly
const purgeSchedule = "0 * * * *"

type MaintenanceService interface {
	// Start schedules the retention sweep
	Start(ctx context.Context) error
	// Stop halts the scheduler and waits for a running sweep to finish
	Stop() error
	// Purge removes import jobs and uploaded files older than the retention
	// window. Exposed so the cleanup binary can run a one-off sweep.
	Purge(ctx context.Context) error
}

// SessionPurger releases in-memory run state past the retention window
type SessionPurger interface {
	PurgeSessions(cutoff time.Time) int
}

type MaintenanceServiceImpl struct {
	Repo     importer.ImportRepository
	Sessions SessionPurger
	Config   *config.Config
	Logger   *zap.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
}

func NewMaintenanceService(repo importer.ImportRepository, sessions SessionPurger, cfg *config.Config, logger *zap.Logger) MaintenanceService {
	return &MaintenanceServiceImpl{
		Repo:     repo,
		Sessions: sessions,
		Config:   cfg,
		Logger:   logger,
	}
}

func (s *MaintenanceServiceImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler = cron.New()
	if _, err := s.scheduler.AddFunc(purgeSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.Purge(sweepCtx); err != nil {
			s.Logger.Error("retention sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.scheduler.Start()
	return nil
}

func (s *MaintenanceServiceImpl) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
	return nil
}

func (s *MaintenanceServiceImpl) Purge(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(s.Config.JobRetentionHrs) * time.Hour)

	deleted, err := s.Repo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	removed := s.purgeUploads(cutoff)

	sessions := 0
	if s.Sessions != nil {
		sessions = s.Sessions.PurgeSessions(cutoff)
	}

	if deleted > 0 || removed > 0 || sessions > 0 {
		s.Logger.Info("retention sweep finished",
			zap.Int64("jobs_deleted", deleted),
			zap.Int("files_removed", removed),
			zap.Int("sessions_released", sessions),
			zap.Time("cutoff", cutoff))
	}
	return nil
}

// purgeUploads removes uploaded files past the retention window. Upload
// files are best effort artifacts, so removal errors are logged, not fatal.
func (s *MaintenanceServiceImpl) purgeUploads(cutoff time.Time) int {
	if s.Config.FSPath == "" {
		return 0
	}

	entries, err := os.ReadDir(s.Config.FSPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.Logger.Warn("failed to read upload directory", zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.Config.FSPath, entry.Name())
		if err := os.Remove(path); err != nil {
			s.Logger.Warn("failed to remove stale upload", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
