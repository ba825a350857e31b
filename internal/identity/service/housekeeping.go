package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quokkaworks/identity/internal/identity/directory"
)

// HousekeepingService periodically prunes the directory database: old
// login-history rows and signing keys past their grace period. Revocation
// entries expire on their own via the ledger's TTLs and need no sweeper.
type HousekeepingService struct {
	Store    directory.Store
	Logger   *slog.Logger
	Interval time.Duration

	// HistoryRetention is how long login events are kept.
	HistoryRetention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping worker. A non-positive
// interval defaults to 1 hour; a non-positive retention to 90 days.
func NewHousekeepingService(store directory.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	return &HousekeepingService{
		Store:            store,
		Logger:           logger,
		Interval:         interval,
		HistoryRetention: retention,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the worker and blocks until any in-progress cleanup
// finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletions. Each one is independent so a
// failure in one doesn't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()

	cutoff := time.Now().Add(-s.HistoryRetention)
	if deleted, err := s.Store.LoginHistory().DeleteOlderThan(ctx, cutoff); err != nil {
		s.Logger.Error("failed to prune login history", "error", err)
	} else if deleted > 0 {
		s.Logger.Debug("pruned login history", "deleted", deleted)
	}

	if err := s.Store.SigningKeys().DeleteExpiredSigningKeys(ctx); err != nil {
		s.Logger.Error("failed to delete expired signing keys", "error", err)
	} else {
		s.Logger.Debug("deleted expired signing keys")
	}
}
