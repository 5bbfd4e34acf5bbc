// -----------------------------------------------------------------------
// Maintenance Scheduler - Cron-driven stale run sweep and cleanup
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/common"
	"github.com/ternarybob/traho/internal/interfaces"
	"github.com/ternarybob/traho/internal/models"
)

// runOwner is how the sweep asks whether this process still drives a run.
// The export engine satisfies it.
type runOwner interface {
	IsRunning(orderID string) bool
}

// Service runs background maintenance on a cron schedule:
//   - stale run sweep: orders stuck in running/stopping with a silent
//     heartbeat are failed so the UI does not show ghost runs after a crash
//   - orphan cleanup: download directories without a matching order are
//     removed
type Service struct {
	config       common.SchedulerConfig
	storage      interfaces.OrderStorage
	owner        runOwner
	cron         *cron.Cron
	logger       arbor.ILogger
	downloadRoot string

	mu      sync.Mutex
	running bool
}

// NewService creates the maintenance scheduler
func NewService(config common.SchedulerConfig, storage interfaces.OrderStorage, owner runOwner, downloadRoot string, logger arbor.ILogger) *Service {
	return &Service{
		config:       config,
		storage:      storage,
		owner:        owner,
		cron:         cron.New(),
		logger:       logger,
		downloadRoot: downloadRoot,
	}
}

// Start registers the sweep and begins the cron loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.SweepSchedule
	if schedule == "" {
		schedule = "*/5 * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to register maintenance sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Str("stale_after", s.config.StaleAfterDuration().String()).
		Msg("Maintenance scheduler started")

	return nil
}

// Stop halts the cron loop, waiting for an in-flight sweep to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Maintenance scheduler stopped")
}

// sweep runs one maintenance pass
func (s *Service) sweep() {
	ctx := context.Background()
	s.SweepStaleRuns(ctx)
	s.CleanOrphanDownloads(ctx)
}

// SweepStaleRuns fails active orders whose heartbeat went silent and that
// no engine in this process owns
func (s *Service) SweepStaleRuns(ctx context.Context) int {
	staleAfter := s.config.StaleAfterDuration()
	swept := 0

	for _, status := range []models.RunStatus{models.RunStatusRunning, models.RunStatusStopping} {
		orders, err := s.storage.ListByStatus(ctx, status)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Stale sweep could not list orders")
			continue
		}

		for _, order := range orders {
			if s.owner != nil && s.owner.IsRunning(order.ID) {
				continue
			}
			if time.Since(order.LastHeartbeat) < staleAfter {
				continue
			}

			msg := fmt.Sprintf("run abandoned, no heartbeat for %s", staleAfter)
			if err := s.storage.UpdateStatus(ctx, order.ID, models.RunStatusFailed, msg); err != nil {
				s.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to sweep stale run")
				continue
			}
			swept++
			s.logger.Warn().
				Str("order_id", order.ID).
				Str("last_heartbeat", order.LastHeartbeat.Format(time.RFC3339)).
				Msg("Swept stale run to failed")
		}
	}

	return swept
}

// CleanOrphanDownloads removes per-order download directories whose order
// no longer exists
func (s *Service) CleanOrphanDownloads(ctx context.Context) int {
	entries, err := os.ReadDir(s.downloadRoot)
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := s.storage.Get(ctx, entry.Name()); err == nil {
			continue
		}

		path := filepath.Join(s.downloadRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove orphan download directory")
			continue
		}
		removed++
		s.logger.Debug().Str("path", path).Msg("Removed orphan download directory")
	}

	return removed
}
