package bridge

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"whatscrm/internal/metrics"
	"whatscrm/internal/models"
)

func (b *Bridge) handleEvent(ctx context.Context, rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		b.handleMessage(ctx, evt)
	case *events.Receipt:
		b.handleReceipt(ctx, evt)
	case *events.HistorySync:
		b.handleHistorySync(ctx, evt)
	case *events.PairSuccess:
		b.handlePairSuccess(evt)
	case *events.Connected:
		metrics.SetGauge("bridge_connected", 1, map[string]string{"number_id": b.cfg.NumberID}, "Bridge session connection state")
		b.logger.WithField("number_id", b.cfg.NumberID).Info("Bridge session connected")
	case *events.Disconnected:
		metrics.SetGauge("bridge_connected", 0, map[string]string{"number_id": b.cfg.NumberID}, "Bridge session connection state")
		b.logger.WithField("number_id", b.cfg.NumberID).Warn("Bridge session disconnected")
	case *events.LoggedOut:
		metrics.SetGauge("bridge_connected", 0, map[string]string{"number_id": b.cfg.NumberID}, "Bridge session connection state")
		b.logger.WithFields(logrus.Fields{
			"number_id": b.cfg.NumberID,
			"reason":    evt.Reason,
		}).Warn("Bridge session logged out, number must be paired again")
	case *events.StreamReplaced:
		b.logger.WithField("number_id", b.cfg.NumberID).Error("Bridge stream replaced by another session")
	}
}

func (b *Bridge) handleMessage(ctx context.Context, evt *events.Message) {
	msg, ok := newBridgeMessage(evt)
	if !ok {
		return
	}

	metrics.IncrementCounter("bridge_messages_total", map[string]string{
		"number_id": b.cfg.NumberID,
		"mode":      string(models.IngestModeNotify),
	}, "Bridge messages handed to ingestion")

	if err := b.ingestor.HandleBridgeMessage(ctx, b.cfg.NumberID, msg, models.IngestModeNotify); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"number_id":  b.cfg.NumberID,
			"message_id": evt.Info.ID,
		}).Error("Failed to ingest bridge message")
	}
}

func (b *Bridge) handleReceipt(ctx context.Context, evt *events.Receipt) {
	status, ok := receiptStatus(evt.Type)
	if !ok || len(evt.MessageIDs) == 0 {
		return
	}

	receipt := models.BridgeReceipt{
		MessageIDs: evt.MessageIDs,
		ChatID:     evt.Chat.String(),
		Status:     status,
		Timestamp:  evt.Timestamp,
	}

	metrics.IncrementCounter("bridge_receipts_total", map[string]string{
		"number_id": b.cfg.NumberID,
	}, "Bridge receipts handed to ingestion")

	if err := b.ingestor.HandleBridgeReceipt(ctx, b.cfg.NumberID, receipt); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"number_id": b.cfg.NumberID,
			"chat_id":   evt.Chat.String(),
		}).Error("Failed to ingest bridge receipt")
	}
}

// handleHistorySync backfills conversations from the phone's history.
// Only the bootstrap and recent-chat payloads carry conversations worth
// archiving; push-name and other sync types are ignored. One bad
// message never stops the rest of the backfill.
func (b *Bridge) handleHistorySync(ctx context.Context, evt *events.HistorySync) {
	if !b.cfg.HistorySync || evt.Data == nil {
		return
	}
	switch evt.Data.GetSyncType() {
	case waHistorySync.HistorySync_INITIAL_BOOTSTRAP, waHistorySync.HistorySync_RECENT:
	default:
		return
	}

	for _, conv := range evt.Data.GetConversations() {
		for _, msg := range historyMessages(conv) {
			metrics.IncrementCounter("bridge_messages_total", map[string]string{
				"number_id": b.cfg.NumberID,
				"mode":      string(models.IngestModeAppend),
			}, "Bridge messages handed to ingestion")

			if err := b.ingestor.HandleBridgeMessage(ctx, b.cfg.NumberID, msg, models.IngestModeAppend); err != nil {
				b.logger.WithError(err).WithFields(logrus.Fields{
					"number_id":  b.cfg.NumberID,
					"message_id": msg.ID,
				}).Error("Failed to ingest history message")
			}
		}
	}
}

func (b *Bridge) handlePairSuccess(evt *events.PairSuccess) {
	displayName := evt.BusinessName
	if displayName == "" {
		displayName = evt.ID.User
	}

	b.logger.WithFields(logrus.Fields{
		"number_id": b.cfg.NumberID,
		"device":    evt.ID.String(),
	}).Info("Bridge paired")
	metrics.IncrementCounter("bridge_pairings_total", map[string]string{"number_id": b.cfg.NumberID}, "Completed QR pairings")

	if b.onPaired != nil {
		b.onPaired(b.cfg.NumberID, displayName)
	}
}

// newBridgeMessage maps a live client event onto the transport-neutral
// message shape. The second return is false when the event carries
// nothing ingestible (protocol messages, reactions, key distribution).
func newBridgeMessage(evt *events.Message) (models.BridgeMessage, bool) {
	msg := models.BridgeMessage{
		ID:          evt.Info.ID,
		ChatID:      evt.Info.Chat.String(),
		SenderPhone: jidIdentity(evt.Info.Sender),
		FromMe:      evt.Info.IsFromMe,
		Timestamp:   evt.Info.Timestamp,
	}
	// The push name on an own-device event names this account, not the
	// contact, so it must not flow into the contact record.
	if !evt.Info.IsFromMe {
		msg.PushName = evt.Info.PushName
	}

	if !fillContent(unwrapMessage(evt.Message), &msg) {
		return models.BridgeMessage{}, false
	}
	return msg, true
}

// historyMessages flattens one synced conversation into bridge
// messages. Entries without a key, without content, or without a
// parseable payload are skipped.
func historyMessages(conv *waHistorySync.Conversation) []models.BridgeMessage {
	chatID := conv.GetID()
	if chatID == "" {
		return nil
	}
	displayName := conv.GetDisplayName()

	var out []models.BridgeMessage
	for _, entry := range conv.GetMessages() {
		info := entry.GetMessage()
		if info == nil {
			continue
		}
		key := info.GetKey()
		if key.GetID() == "" {
			continue
		}

		msg := models.BridgeMessage{
			ID:        key.GetID(),
			ChatID:    chatID,
			PushName:  displayName,
			FromMe:    key.GetFromMe(),
			Timestamp: time.Unix(int64(info.GetMessageTimestamp()), 0).UTC(),
		}
		if !msg.FromMe {
			if participant := key.GetParticipant(); participant != "" {
				msg.SenderPhone = participant
			} else {
				msg.SenderPhone = chatID
			}
		}

		if !fillContent(unwrapMessage(info.GetMessage()), &msg) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// fillContent copies the first recognized content kind out of a message
// payload. Returns false when nothing user-visible is present.
func fillContent(payload *waE2E.Message, msg *models.BridgeMessage) bool {
	if payload == nil {
		return false
	}

	switch {
	case payload.GetConversation() != "":
		msg.Text = payload.GetConversation()
	case payload.GetExtendedTextMessage().GetText() != "":
		msg.Text = payload.GetExtendedTextMessage().GetText()
	case payload.GetImageMessage() != nil:
		image := payload.GetImageMessage()
		msg.Image = &models.BridgeMedia{MimeType: image.GetMimetype(), Caption: image.GetCaption()}
	case payload.GetVideoMessage() != nil:
		video := payload.GetVideoMessage()
		msg.Video = &models.BridgeMedia{MimeType: video.GetMimetype(), Caption: video.GetCaption()}
	case payload.GetAudioMessage() != nil:
		msg.Audio = &models.BridgeMedia{MimeType: payload.GetAudioMessage().GetMimetype()}
	case payload.GetDocumentMessage() != nil:
		document := payload.GetDocumentMessage()
		msg.Document = &models.BridgeMedia{MimeType: document.GetMimetype(), Caption: document.GetCaption()}
	case payload.GetStickerMessage() != nil:
		msg.Sticker = &models.BridgeMedia{MimeType: payload.GetStickerMessage().GetMimetype()}
	case payload.GetLocationMessage() != nil:
		location := payload.GetLocationMessage()
		msg.Location = &models.BridgeLocation{
			Latitude:  location.GetDegreesLatitude(),
			Longitude: location.GetDegreesLongitude(),
			Name:      location.GetName(),
			Address:   location.GetAddress(),
		}
	case payload.GetContactMessage() != nil:
		contact := payload.GetContactMessage()
		msg.Contact = &models.BridgeContact{DisplayName: contact.GetDisplayName(), VCard: contact.GetVcard()}
	default:
		return false
	}
	return true
}

// unwrapMessage peels ephemeral and view-once wrappers off a payload.
// Wrappers nest at most a few levels deep.
func unwrapMessage(payload *waE2E.Message) *waE2E.Message {
	for i := 0; i < 3 && payload != nil; i++ {
		switch {
		case payload.GetEphemeralMessage() != nil:
			payload = payload.GetEphemeralMessage().GetMessage()
		case payload.GetViewOnceMessage() != nil:
			payload = payload.GetViewOnceMessage().GetMessage()
		case payload.GetViewOnceMessageV2() != nil:
			payload = payload.GetViewOnceMessageV2().GetMessage()
		case payload.GetViewOnceMessageV2Extension() != nil:
			payload = payload.GetViewOnceMessageV2Extension().GetMessage()
		default:
			return payload
		}
	}
	return payload
}

// jidIdentity reduces a JID to the bare number for regular users and
// keeps the server suffix for alias servers so the pipeline can filter
// them.
func jidIdentity(jid types.JID) string {
	if jid.Server == types.DefaultUserServer {
		return jid.User
	}
	return jid.String()
}

func receiptStatus(t types.ReceiptType) (models.DeliveryStatus, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return models.DeliveryStatusDelivered, true
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return models.DeliveryStatusRead, true
	}
	return "", false
}
