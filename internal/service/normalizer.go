package service

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"whatscrm/internal/constants"
	"whatscrm/internal/models"
)

// statusBroadcastJID is the pseudo-chat WhatsApp uses for status posts.
// Events addressed to it are not conversations with a contact.
const statusBroadcastJID = "status@broadcast"

// IsFilteredIdentity reports whether an identity belongs to the class of
// pseudo-contacts (status broadcasts, linked-id aliases) that must never
// produce leads, conversations, or messages.
func IsFilteredIdentity(id string) bool {
	if id == "" {
		return false
	}
	if id == statusBroadcastJID || strings.HasPrefix(id, "status@") {
		return true
	}
	return strings.HasSuffix(id, "@lid")
}

// isGroupJID reports whether a bridge chat id addresses a group chat.
func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// phoneFromJID extracts the bare phone number from a transport identity
// such as "15551234567@s.whatsapp.net". Plain phone numbers pass through.
func phoneFromJID(jid string) string {
	if idx := strings.Index(jid, "@"); idx >= 0 {
		return jid[:idx]
	}
	return jid
}

// parseCloudTimestamp converts the cloud webhook's unix-seconds string.
// Malformed values fall back to the arrival wall clock so an event is
// never dropped over a bad timestamp.
func parseCloudTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

// mediaPlaceholder is the visible content used on the bridge path when a
// media message carries no caption.
func mediaPlaceholder(t models.MessageType) string {
	switch t {
	case models.MessageTypeImage:
		return "Image"
	case models.MessageTypeVideo:
		return "Video"
	case models.MessageTypeAudio:
		return "Audio"
	case models.MessageTypeDocument:
		return "Document"
	case models.MessageTypeSticker:
		return "Sticker"
	default:
		return ""
	}
}

// NormalizeCloudChange maps one cloud webhook change onto canonical
// events. Statuses and messages in the same change are independent
// events; filtered identities are dropped before any of them are built.
func NormalizeCloudChange(conn Connection, change models.CloudChange) []models.InboundEvent {
	value := change.Value

	names := make(map[string]string, len(value.Contacts))
	for _, contact := range value.Contacts {
		if contact.WaID != "" && contact.Profile.Name != "" {
			names[contact.WaID] = contact.Profile.Name
		}
	}

	var events []models.InboundEvent

	for _, status := range value.Statuses {
		if IsFilteredIdentity(status.RecipientID) {
			continue
		}
		events = append(events, models.InboundEvent{
			Kind:              models.EventKindStatus,
			Channel:           models.ChannelWhatsApp,
			ConnectionKind:    models.ConnectionKindAPI,
			ConnectionType:    conn.ConnectionType,
			NumberID:          conn.NumberID,
			Mode:              models.IngestModeNotify,
			ProviderMessageID: status.ID,
			Status:            models.DeliveryStatus(status.Status),
			RecipientPhone:    status.RecipientID,
			Timestamp:         parseCloudTimestamp(status.Timestamp),
		})
	}

	for _, msg := range value.Messages {
		if IsFilteredIdentity(msg.From) {
			continue
		}
		event := models.InboundEvent{
			Kind:              models.EventKindMessage,
			Channel:           models.ChannelWhatsApp,
			ConnectionKind:    models.ConnectionKindAPI,
			ConnectionType:    conn.ConnectionType,
			NumberID:          conn.NumberID,
			Mode:              models.IngestModeNotify,
			Direction:         models.DirectionInbound,
			ContactPhone:      msg.From,
			ContactName:       names[msg.From],
			ExternalChatID:    msg.From,
			ProviderMessageID: msg.ID,
			Timestamp:         parseCloudTimestamp(msg.Timestamp),
		}
		applyCloudContent(&event, msg)
		events = append(events, event)
	}

	return events
}

func applyCloudContent(event *models.InboundEvent, msg models.CloudMessage) {
	switch {
	case msg.Type == "text" && msg.Text != nil:
		event.Type = models.MessageTypeText
		event.Content = msg.Text.Body
	case msg.Type == "image" && msg.Image != nil:
		applyCloudMedia(event, models.MessageTypeImage, msg.Image)
	case msg.Type == "video" && msg.Video != nil:
		applyCloudMedia(event, models.MessageTypeVideo, msg.Video)
	case msg.Type == "audio" && msg.Audio != nil:
		applyCloudMedia(event, models.MessageTypeAudio, msg.Audio)
	case msg.Type == "document" && msg.Document != nil:
		applyCloudMedia(event, models.MessageTypeDocument, msg.Document)
	case msg.Type == "sticker" && msg.Sticker != nil:
		applyCloudMedia(event, models.MessageTypeSticker, msg.Sticker)
	case msg.Type == "location" && msg.Location != nil:
		lat, lng := msg.Location.Latitude, msg.Location.Longitude
		event.Type = models.MessageTypeLocation
		event.Latitude = &lat
		event.Longitude = &lng
		event.LocationName = msg.Location.Name
		event.Content = msg.Location.Address
	case msg.Type == "contacts" && len(msg.Contacts) > 0:
		event.Type = models.MessageTypeContact
		event.Content = serializePayload(msg.Contacts)
	default:
		// Unrecognized types are archived as text, never dropped
		event.Type = models.MessageTypeText
		event.Content = serializeRaw(msg.Raw, msg)
	}
}

func applyCloudMedia(event *models.InboundEvent, t models.MessageType, media *models.CloudMedia) {
	event.Type = t
	event.Content = media.Caption
	event.MediaURL = media.ID
	event.MediaMimeType = media.MimeType
}

// NormalizeBridgeMessage maps one bridge message onto a canonical event.
// Returns nil for identities the pipeline must ignore (status broadcast,
// linked ids, group chats).
func NormalizeBridgeMessage(conn Connection, msg models.BridgeMessage, mode models.IngestMode) *models.InboundEvent {
	if IsFilteredIdentity(msg.ChatID) || IsFilteredIdentity(msg.SenderPhone) {
		return nil
	}
	if isGroupJID(msg.ChatID) {
		return nil
	}

	direction := models.DirectionInbound
	if msg.FromMe {
		direction = models.DirectionOutbound
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	} else {
		timestamp = timestamp.UTC()
	}

	event := &models.InboundEvent{
		Kind:              models.EventKindMessage,
		Channel:           models.ChannelWhatsApp,
		ConnectionKind:    models.ConnectionKindQR,
		ConnectionType:    conn.ConnectionType,
		NumberID:          conn.NumberID,
		Mode:              mode,
		Direction:         direction,
		ContactPhone:      phoneFromJID(msg.ChatID),
		ContactName:       msg.PushName,
		ExternalChatID:    msg.ChatID,
		ProviderMessageID: msg.ID,
		Timestamp:         timestamp,
	}
	applyBridgeContent(event, msg)
	return event
}

func applyBridgeContent(event *models.InboundEvent, msg models.BridgeMessage) {
	switch {
	case msg.Text != "":
		event.Type = models.MessageTypeText
		event.Content = msg.Text
	case msg.Image != nil:
		applyBridgeMedia(event, models.MessageTypeImage, msg.Image)
	case msg.Video != nil:
		applyBridgeMedia(event, models.MessageTypeVideo, msg.Video)
	case msg.Audio != nil:
		applyBridgeMedia(event, models.MessageTypeAudio, msg.Audio)
	case msg.Document != nil:
		applyBridgeMedia(event, models.MessageTypeDocument, msg.Document)
	case msg.Sticker != nil:
		applyBridgeMedia(event, models.MessageTypeSticker, msg.Sticker)
	case msg.Location != nil:
		lat, lng := msg.Location.Latitude, msg.Location.Longitude
		event.Type = models.MessageTypeLocation
		event.Latitude = &lat
		event.Longitude = &lng
		event.LocationName = msg.Location.Name
		event.Content = msg.Location.Address
	case msg.Contact != nil:
		event.Type = models.MessageTypeContact
		event.Content = serializePayload(msg.Contact)
	default:
		event.Type = models.MessageTypeText
		event.Content = serializeRaw(msg.Raw, msg)
	}
}

func applyBridgeMedia(event *models.InboundEvent, t models.MessageType, media *models.BridgeMedia) {
	event.Type = t
	event.MediaURL = media.Path
	event.MediaMimeType = media.MimeType
	if event.MediaMimeType == "" && media.Path != "" {
		event.MediaMimeType = mimeFromPath(media.Path)
	}
	if media.Caption != "" {
		event.Content = media.Caption
	} else {
		event.Content = mediaPlaceholder(t)
	}
}

// mimeFromPath guesses a MIME type from the file extension of a bridge
// media path. The bridge stores downloads with their original extension,
// so this is reliable for anything WhatsApp itself accepts.
func mimeFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := constants.MimeTypes[ext]; ok {
		return mime
	}
	return constants.DefaultMimeType
}

// NormalizeBridgeReceipt expands one bridge receipt into a status event
// per acknowledged message id.
func NormalizeBridgeReceipt(conn Connection, rcpt models.BridgeReceipt) []models.InboundEvent {
	if IsFilteredIdentity(rcpt.ChatID) || isGroupJID(rcpt.ChatID) {
		return nil
	}

	timestamp := rcpt.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	} else {
		timestamp = timestamp.UTC()
	}

	events := make([]models.InboundEvent, 0, len(rcpt.MessageIDs))
	for _, messageID := range rcpt.MessageIDs {
		events = append(events, models.InboundEvent{
			Kind:              models.EventKindStatus,
			Channel:           models.ChannelWhatsApp,
			ConnectionKind:    models.ConnectionKindQR,
			ConnectionType:    conn.ConnectionType,
			NumberID:          conn.NumberID,
			Mode:              models.IngestModeNotify,
			ProviderMessageID: messageID,
			Status:            rcpt.Status,
			RecipientPhone:    phoneFromJID(rcpt.ChatID),
			Timestamp:         timestamp,
		})
	}
	return events
}

func serializePayload(payload interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

func serializeRaw(raw json.RawMessage, fallback interface{}) string {
	if len(raw) > 0 {
		return string(raw)
	}
	return serializePayload(fallback)
}
