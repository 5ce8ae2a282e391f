package service

import (
	"context"
	"fmt"

	"whatscrm/internal/models"

	"github.com/sirupsen/logrus"
)

// IngestService drives the normalization pipeline. Both transports
// converge here: cloud webhook payloads and bridge events are reduced
// to InboundEvents, then folded into leads, conversations, the message
// ledger, and campaign rollups through the same stages.
type IngestService struct {
	registry      *ConnectionRegistry
	leads         *LeadResolver
	conversations *ConversationResolver
	ledger        *MessageLedger
	statuses      *StatusReconciler
	directory     *ContactDirectory
	dispatcher    *Dispatcher
	logger        *logrus.Logger
}

func NewIngestService(
	registry *ConnectionRegistry,
	leads *LeadResolver,
	conversations *ConversationResolver,
	ledger *MessageLedger,
	statuses *StatusReconciler,
	directory *ContactDirectory,
	dispatcher *Dispatcher,
	logger *logrus.Logger,
) *IngestService {
	return &IngestService{
		registry:      registry,
		leads:         leads,
		conversations: conversations,
		ledger:        ledger,
		statuses:      statuses,
		directory:     directory,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// ProcessCloudPayload walks every change in a webhook batch. Events are
// isolated: one bad change or event is logged and skipped, the rest of
// the batch still lands. Only context cancellation aborts the walk.
func (s *IngestService) ProcessCloudPayload(ctx context.Context, payload models.CloudWebhookPayload) error {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if change.Field != "messages" {
				s.logger.WithField("field", change.Field).Debug("Skipping non-message change")
				continue
			}
			s.processCloudChange(ctx, change)
		}
	}
	return nil
}

func (s *IngestService) processCloudChange(ctx context.Context, change models.CloudChange) {
	numberID := change.Value.Metadata.PhoneNumberID
	conn, ok := s.registry.Lookup(numberID)
	if !ok {
		s.logger.WithField("numberId", numberID).Warn("Change for unregistered number, skipping")
		return
	}

	for _, contact := range change.Value.Contacts {
		s.directory.ObserveProfileName(ctx, contact.WaID, contact.Profile.Name, numberID)
	}

	for _, event := range NormalizeCloudChange(conn, change) {
		if err := s.processEvent(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"numberId":          numberID,
				"providerMessageId": SanitizeMessageID(event.ProviderMessageID),
				"kind":              event.Kind,
			}).Error("Failed to process event")
		}
	}
}

// HandleBridgeMessage ingests one message event from a QR-paired
// session. History replays pass IngestModeAppend so they merge
// timestamps without touching unread counters.
func (s *IngestService) HandleBridgeMessage(ctx context.Context, numberID string, msg models.BridgeMessage, mode models.IngestMode) error {
	conn, ok := s.registry.Lookup(numberID)
	if !ok {
		return fmt.Errorf("bridge message for unregistered number: %s", numberID)
	}

	event := NormalizeBridgeMessage(conn, msg, mode)
	if event == nil {
		return nil
	}
	return s.processEvent(ctx, *event)
}

// HandleBridgeReceipt folds a bridge read or delivery receipt into the
// ledger and campaign rollups.
func (s *IngestService) HandleBridgeReceipt(ctx context.Context, numberID string, receipt models.BridgeReceipt) error {
	conn, ok := s.registry.Lookup(numberID)
	if !ok {
		return fmt.Errorf("bridge receipt for unregistered number: %s", numberID)
	}

	for _, event := range NormalizeBridgeReceipt(conn, receipt) {
		if err := s.statuses.Apply(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *IngestService) processEvent(ctx context.Context, event models.InboundEvent) error {
	if event.Kind == models.EventKindStatus {
		return s.statuses.Apply(ctx, event)
	}

	LogEventProcessing(ctx, s.logger, string(event.Type), event.ExternalChatID, event.ProviderMessageID, event.ContactPhone, event.Content)

	if err := ValidatePhoneNumber(event.ContactPhone); err != nil {
		s.logger.WithError(err).WithField("phone", SanitizePhoneNumber(event.ContactPhone)).Warn("Skipping event with invalid contact phone")
		return nil
	}

	// Cloud profile names are observed at change level from the
	// contacts array; push names travel on each bridge message.
	if event.ConnectionKind == models.ConnectionKindQR && event.ContactName != "" {
		s.directory.ObservePushName(ctx, event.ContactPhone, event.ContactName, event.NumberID)
	}

	leadID, err := s.leads.Resolve(ctx, event.ContactPhone, event.ContactName, event.Mode)
	if err != nil {
		return err
	}

	conversationID, err := s.conversations.Resolve(ctx, event, leadID)
	if err != nil {
		return err
	}

	messageID, inserted, err := s.ledger.Append(ctx, conversationID, event)
	if err != nil {
		return err
	}

	if inserted && isLiveInbound(event) {
		s.dispatcher.MessageReceived(conversationID, event)
	}

	s.logger.WithFields(logrus.Fields{
		"messageId":      messageID,
		"conversationId": conversationID,
		"inserted":       inserted,
	}).Debug("Event processed")
	return nil
}
