package service

import (
	"context"
	"fmt"
	"time"

	"whatscrm/internal/models"

	"github.com/sirupsen/logrus"
)

type StatusStore interface {
	GetMessageByProviderID(ctx context.Context, providerMessageID string, kind models.ConnectionKind) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus, at time.Time) error
	GetRecipientByMessageID(ctx context.Context, whatsappMessageID string) (*models.CampaignRecipient, error)
	UpdateRecipientStatus(ctx context.Context, recipientID string, status models.DeliveryStatus) error
	IncrementCampaignSent(ctx context.Context, campaignID string) error
	IncrementCampaignDelivered(ctx context.Context, campaignID string) error
	IncrementCampaignRead(ctx context.Context, campaignID string) error
	IncrementCampaignFailed(ctx context.Context, campaignID string) error
}

// StatusReconciler folds delivery receipts into the message ledger and,
// when the message belongs to a campaign send, into the campaign
// rollup. Transitions are monotonic (sent, delivered, read, with failed
// terminal from anywhere); receipts arriving out of order or twice must
// never regress a status or double-count a campaign counter.
type StatusReconciler struct {
	store  StatusStore
	logger *logrus.Logger
}

func NewStatusReconciler(store StatusStore, logger *logrus.Logger) *StatusReconciler {
	return &StatusReconciler{
		store:  store,
		logger: logger,
	}
}

// Apply processes one status event. The message row and the campaign
// recipient are reconciled independently: a receipt for an unledgered
// send still updates the campaign rollup.
func (r *StatusReconciler) Apply(ctx context.Context, event models.InboundEvent) error {
	status := event.Status
	if !status.IsKnown() {
		r.logger.WithFields(logrus.Fields{
			"status":            string(status),
			"providerMessageId": SanitizeMessageID(event.ProviderMessageID),
		}).Warn("Ignoring unknown delivery status")
		return nil
	}

	if err := r.applyToMessage(ctx, event, status); err != nil {
		return err
	}
	return r.applyToRecipient(ctx, event.ProviderMessageID, status)
}

func (r *StatusReconciler) applyToMessage(ctx context.Context, event models.InboundEvent, status models.DeliveryStatus) error {
	msg, err := r.store.GetMessageByProviderID(ctx, event.ProviderMessageID, event.ConnectionKind)
	if err != nil {
		return fmt.Errorf("failed to look up message for receipt: %w", err)
	}
	if msg == nil {
		r.logger.WithFields(logrus.Fields{
			"providerMessageId": SanitizeMessageID(event.ProviderMessageID),
			"connectionKind":    event.ConnectionKind,
		}).Debug("Receipt for unledgered message")
		return nil
	}

	if !msg.Status.CanTransition(status) {
		r.logger.WithFields(logrus.Fields{
			"messageId": msg.ID,
			"current":   string(msg.Status),
			"incoming":  string(status),
		}).Debug("Skipping non-forward status transition")
		return nil
	}

	if err := r.store.UpdateMessageStatus(ctx, msg.ID, status, event.Timestamp.UTC()); err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

func (r *StatusReconciler) applyToRecipient(ctx context.Context, providerMessageID string, status models.DeliveryStatus) error {
	recipient, err := r.store.GetRecipientByMessageID(ctx, providerMessageID)
	if err != nil {
		return fmt.Errorf("failed to look up campaign recipient: %w", err)
	}
	if recipient == nil {
		return nil
	}

	current := recipient.Status
	if !current.CanTransition(status) {
		return nil
	}

	if err := r.store.UpdateRecipientStatus(ctx, recipient.ID, status); err != nil {
		return fmt.Errorf("failed to update campaign recipient: %w", err)
	}

	// Counter guards key off the recipient's pre-transition status so a
	// redelivered receipt can never count twice.
	switch status {
	case models.DeliveryStatusSent:
		return r.increment(ctx, r.store.IncrementCampaignSent, recipient.CampaignID, "sent")
	case models.DeliveryStatusDelivered:
		return r.increment(ctx, r.store.IncrementCampaignDelivered, recipient.CampaignID, "delivered")
	case models.DeliveryStatusRead:
		// A read receipt that skipped delivered back-fills that counter
		if current != models.DeliveryStatusDelivered {
			if err := r.increment(ctx, r.store.IncrementCampaignDelivered, recipient.CampaignID, "delivered"); err != nil {
				return err
			}
		}
		return r.increment(ctx, r.store.IncrementCampaignRead, recipient.CampaignID, "read")
	case models.DeliveryStatusFailed:
		return r.increment(ctx, r.store.IncrementCampaignFailed, recipient.CampaignID, "failed")
	}
	return nil
}

func (r *StatusReconciler) increment(ctx context.Context, fn func(context.Context, string) error, campaignID, counter string) error {
	if err := fn(ctx, campaignID); err != nil {
		return fmt.Errorf("failed to increment campaign %s counter: %w", counter, err)
	}
	return nil
}
