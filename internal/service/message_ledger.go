package service

import (
	"context"
	"fmt"

	"whatscrm/internal/database"
	"whatscrm/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type MessageStore interface {
	GetMessageByProviderID(ctx context.Context, providerMessageID string, kind models.ConnectionKind) (*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
}

// MessageLedger owns the append-only message timeline. The provider's
// own message id, scoped by connection kind, is the single source of
// deduplication truth: a redelivered event must never create a second
// row or re-trigger side effects.
type MessageLedger struct {
	store  MessageStore
	logger *logrus.Logger
}

func NewMessageLedger(store MessageStore, logger *logrus.Logger) *MessageLedger {
	return &MessageLedger{
		store:  store,
		logger: logger,
	}
}

// Append inserts the event's message row unless it is already ledgered.
// The bool reports whether a new row was written; duplicates return the
// existing id.
func (l *MessageLedger) Append(ctx context.Context, conversationID string, event models.InboundEvent) (string, bool, error) {
	if event.ProviderMessageID == "" {
		return "", false, fmt.Errorf("missing provider message id")
	}

	existing, err := l.store.GetMessageByProviderID(ctx, event.ProviderMessageID, event.ConnectionKind)
	if err != nil {
		return "", false, fmt.Errorf("failed to check message ledger: %w", err)
	}
	if existing != nil {
		l.logger.WithFields(logrus.Fields{
			"providerMessageId": SanitizeMessageID(event.ProviderMessageID),
			"connectionKind":    event.ConnectionKind,
		}).Debug("Duplicate provider message, skipping")
		return existing.ID, false, nil
	}

	msg := l.buildRow(conversationID, event)
	if err := l.store.CreateMessage(ctx, msg); err != nil {
		if database.IsUniqueConstraint(err) {
			// Lost an insert race to the same provider event
			winner, lookupErr := l.store.GetMessageByProviderID(ctx, event.ProviderMessageID, event.ConnectionKind)
			if lookupErr == nil && winner != nil {
				return winner.ID, false, nil
			}
		}
		return "", false, fmt.Errorf("failed to append message: %w", err)
	}

	return msg.ID, true, nil
}

// buildRow seeds status by direction: inbound rows are delivered on
// arrival, outbound rows replayed from history enter as sent.
func (l *MessageLedger) buildRow(conversationID string, event models.InboundEvent) *models.Message {
	ts := event.Timestamp.UTC()

	msg := &models.Message{
		ID:                uuid.New().String(),
		ConversationID:    conversationID,
		ProviderMessageID: event.ProviderMessageID,
		ConnectionKind:    event.ConnectionKind,
		Direction:         event.Direction,
		Type:              event.Type,
		Content:           event.Content,
		MediaURL:          event.MediaURL,
		MediaMimeType:     event.MediaMimeType,
		Latitude:          event.Latitude,
		Longitude:         event.Longitude,
	}

	if event.Direction == models.DirectionInbound {
		msg.Status = models.DeliveryStatusDelivered
		msg.DeliveredAt = &ts
	} else {
		msg.Status = models.DeliveryStatusSent
		msg.SentAt = &ts
	}

	return msg
}
