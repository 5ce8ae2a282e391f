package service

import (
	"context"
	"time"

	"whatscrm/internal/metrics"

	"github.com/sirupsen/logrus"
)

type StaleRecipientCounter interface {
	CountStaleRecipients(ctx context.Context, olderThanMinutes int) (int64, error)
}

// CampaignMonitor watches for campaign sends that never received a
// delivery receipt. Since receipts are the only signal a send worked,
// a growing stale count means either the provider is degraded or the
// webhook subscription dropped.
type CampaignMonitor struct {
	db             StaleRecipientCounter
	checkInterval  time.Duration
	staleThreshold time.Duration
	logger         *logrus.Logger
	stopCh         chan struct{}
}

func NewCampaignMonitor(db StaleRecipientCounter, checkInterval, staleThreshold time.Duration, logger *logrus.Logger) *CampaignMonitor {
	return &CampaignMonitor{
		db:             db,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
}

func (m *CampaignMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval,
		"stale_threshold": m.staleThreshold,
	}).Info("Starting campaign monitor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkStaleRecipients(ctx)
		}
	}
}

func (m *CampaignMonitor) Stop() {
	close(m.stopCh)
}

func (m *CampaignMonitor) checkStaleRecipients(ctx context.Context) {
	count, err := m.db.CountStaleRecipients(ctx, int(m.staleThreshold.Minutes()))
	if err != nil {
		m.logger.WithError(err).Error("Failed to check for stale campaign recipients")
		return
	}
	metrics.SetGauge("campaign_stale_recipients", float64(count), nil, "Campaign sends stuck without a delivery receipt")
	if count > 0 {
		m.logger.WithFields(logrus.Fields{
			"stale_count": count,
			"threshold":   m.staleThreshold,
		}).Warn("Campaign sends without delivery confirmation")
	}
}
