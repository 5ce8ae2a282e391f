package service

import (
	"context"
	"time"

	"whatscrm/internal/constants"

	"github.com/sirupsen/logrus"
)

// RecordCleaner is the slice of the store the retention scheduler
// purges through.
type RecordCleaner interface {
	CleanupOldRecords(retentionDays int) (int64, error)
	CleanupOldContacts(retentionDays int) (int64, error)
}

// Scheduler enforces the retention window. On a fixed interval it
// deletes messages past retention and contact cache entries that have
// gone stale, with one sweep right after startup.
type Scheduler struct {
	store         RecordCleaner
	retentionDays int
	interval      time.Duration
	logger        *logrus.Logger
}

func NewScheduler(store RecordCleaner, retentionDays int, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Duration(constants.DefaultCleanupIntervalHours) * time.Hour
	}
	return &Scheduler{
		store:         store,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
	}
}

// Start blocks until ctx is cancelled. With retention disabled the
// scheduler idles instead of returning, so callers manage one lifecycle
// either way.
func (s *Scheduler) Start(ctx context.Context) {
	if s.retentionDays <= 0 {
		s.logger.Info("Retention disabled, scheduler idle")
		<-ctx.Done()
		return
	}

	s.logger.WithFields(logrus.Fields{
		"retentionDays": s.retentionDays,
		"interval":      s.interval.String(),
	}).Info("Retention scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	messages, err := s.store.CleanupOldRecords(s.retentionDays)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge old messages")
	}
	contacts, err := s.store.CleanupOldContacts(s.retentionDays)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge stale contacts")
	}

	s.logger.WithFields(logrus.Fields{
		"messages": messages,
		"contacts": contacts,
		"took":     time.Since(start).String(),
	}).Info("Retention sweep complete")
}
