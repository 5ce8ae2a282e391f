package service

import (
	"context"
	"fmt"
	"time"

	"whatscrm/internal/database"
	"whatscrm/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ConversationStore interface {
	GetConversationByAPIKey(ctx context.Context, channel, numberID, contactPhone string) (*models.Conversation, error)
	GetConversationByBridgeKey(ctx context.Context, channel, numberID, connectionType, externalChatID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ApplyLiveInbound(ctx context.Context, conversationID string, at time.Time) error
	MergeConversationTimestamp(ctx context.Context, conversationID string, at time.Time) error
	UpdateConversationContactName(ctx context.Context, conversationID, name string) error
}

// ConversationResolver folds an event into its conversation thread. The
// natural key depends on the connection kind: cloud numbers key on the
// contact phone, bridge numbers on the transport-native chat id. The two
// keyspaces never merge.
type ConversationResolver struct {
	store  ConversationStore
	logger *logrus.Logger
}

func NewConversationResolver(store ConversationStore, logger *logrus.Logger) *ConversationResolver {
	return &ConversationResolver{
		store:  store,
		logger: logger,
	}
}

// Resolve returns the conversation id for an event, creating the thread
// on first contact and applying the merge rules otherwise: live inbound
// bumps unread and surfaces the thread with wall-clock recency, history
// replay and outbound traffic only advance the timestamp monotonically.
func (r *ConversationResolver) Resolve(ctx context.Context, event models.InboundEvent, leadID string) (string, error) {
	conv, err := r.lookup(ctx, event)
	if err != nil {
		return "", fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv != nil {
		if err := r.merge(ctx, conv.ID, event); err != nil {
			return "", err
		}
		r.refreshContactName(ctx, conv, event)
		return conv.ID, nil
	}

	contactName := event.ContactName
	if contactName == "" {
		contactName = event.ContactPhone
	}

	lastMessageAt := r.mergeTimestamp(event)

	newConv := &models.Conversation{
		ID:             uuid.New().String(),
		Channel:        event.Channel,
		NumberID:       event.NumberID,
		ConnectionType: event.ConnectionType,
		ContactPhone:   event.ContactPhone,
		ContactName:    contactName,
		ExternalChatID: event.ExternalChatID,
		Status:         models.ConversationStatusActive,
		LastMessageAt:  &lastMessageAt,
	}
	if leadID != "" {
		newConv.LeadID = &leadID
	}
	if isLiveInbound(event) {
		newConv.UnreadCount = 1
	}

	if err := r.store.CreateConversation(ctx, newConv); err != nil {
		if database.IsUniqueConstraint(err) {
			// A concurrent event created the thread first
			existing, lookupErr := r.lookup(ctx, event)
			if lookupErr == nil && existing != nil {
				if err := r.merge(ctx, existing.ID, event); err != nil {
					return "", err
				}
				return existing.ID, nil
			}
		}
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"conversationId": newConv.ID,
		"numberId":       event.NumberID,
		"connectionKind": event.ConnectionKind,
		"contact":        SanitizePhoneNumber(event.ContactPhone),
	}).Info("Created conversation")

	return newConv.ID, nil
}

func (r *ConversationResolver) lookup(ctx context.Context, event models.InboundEvent) (*models.Conversation, error) {
	if event.ConnectionKind == models.ConnectionKindAPI {
		return r.store.GetConversationByAPIKey(ctx, event.Channel, event.NumberID, event.ContactPhone)
	}
	return r.store.GetConversationByBridgeKey(ctx, event.Channel, event.NumberID, event.ConnectionType, event.ExternalChatID)
}

func (r *ConversationResolver) merge(ctx context.Context, conversationID string, event models.InboundEvent) error {
	if isLiveInbound(event) {
		if err := r.store.ApplyLiveInbound(ctx, conversationID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to apply live inbound update: %w", err)
		}
		return nil
	}
	if err := r.store.MergeConversationTimestamp(ctx, conversationID, event.Timestamp.UTC()); err != nil {
		return fmt.Errorf("failed to merge conversation timestamp: %w", err)
	}
	return nil
}

// mergeTimestamp picks the lastMessageAt seed for a new thread: live
// events surface with arrival wall clock, history keeps its own time.
func (r *ConversationResolver) mergeTimestamp(event models.InboundEvent) time.Time {
	if isLiveInbound(event) {
		return time.Now().UTC()
	}
	return event.Timestamp.UTC()
}

// refreshContactName upgrades a phone-number placeholder to a real name
// once one is seen. Failures only cost the cosmetic update.
func (r *ConversationResolver) refreshContactName(ctx context.Context, conv *models.Conversation, event models.InboundEvent) {
	if event.ContactName == "" || event.ContactName == conv.ContactName {
		return
	}
	if conv.ContactName != "" && conv.ContactName != conv.ContactPhone {
		return
	}
	if err := r.store.UpdateConversationContactName(ctx, conv.ID, event.ContactName); err != nil {
		r.logger.WithError(err).WithField("conversationId", conv.ID).Warn("Failed to refresh conversation contact name")
	}
}

func isLiveInbound(event models.InboundEvent) bool {
	return event.Mode == models.IngestModeNotify && event.Direction == models.DirectionInbound
}
