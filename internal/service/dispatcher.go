package service

import (
	"context"
	"time"

	"whatscrm/internal/constants"
	"whatscrm/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DispatchSender interface {
	Send(ctx context.Context, event models.IntegrationEvent) error
}

type EventBroadcaster interface {
	Broadcast(event models.IntegrationEvent)
}

// Dispatcher fans a ledgered message out to integration targets and the
// websocket hub. Delivery is fire-and-forget: a slow or failing target
// must never block webhook acknowledgement, so errors are logged and
// dropped.
type Dispatcher struct {
	sender      DispatchSender
	broadcaster EventBroadcaster
	timeout     time.Duration
	logger      *logrus.Logger
}

// NewDispatcher creates a dispatcher. Either sink may be nil when the
// corresponding output is not configured.
func NewDispatcher(sender DispatchSender, broadcaster EventBroadcaster, timeout time.Duration, logger *logrus.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = constants.DefaultDispatchTimeoutSec * time.Second
	}
	return &Dispatcher{
		sender:      sender,
		broadcaster: broadcaster,
		timeout:     timeout,
		logger:      logger,
	}
}

// MessageReceived publishes a message_received envelope for a newly
// ledgered live inbound message.
func (d *Dispatcher) MessageReceived(conversationID string, event models.InboundEvent) {
	envelope := models.IntegrationEvent{
		EventID:          uuid.NewString(),
		WhatsAppNumberID: event.NumberID,
		Event:            models.EventMessageReceived,
		Timestamp:        time.Now().UTC(),
		Data: models.MessageReceivedData{
			ConversationID:    conversationID,
			SenderPhone:       event.ContactPhone,
			SenderName:        event.ContactName,
			Content:           event.Content,
			MessageType:       string(event.Type),
			MediaURL:          event.MediaURL,
			MediaMimeType:     event.MediaMimeType,
			Latitude:          event.Latitude,
			Longitude:         event.Longitude,
			LocationName:      event.LocationName,
			ProviderMessageID: event.ProviderMessageID,
		},
	}

	if d.broadcaster != nil {
		d.broadcaster.Broadcast(envelope)
	}

	if d.sender == nil {
		return
	}

	// The request context is gone by the time targets respond, so the
	// send runs under its own deadline.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sender.Send(ctx, envelope); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"eventId":        envelope.EventID,
				"conversationId": conversationID,
			}).Error("Failed to dispatch integration event")
		}
	}()
}
