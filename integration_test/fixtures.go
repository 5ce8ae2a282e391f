package integration_test

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"whatscrm/internal/models"
)

// cloudEnvelope wraps a change value in the full webhook payload shape
// the Cloud API posts, routed to the given registered number.
func cloudEnvelope(numberID string, value models.CloudChangeValue) models.CloudWebhookPayload {
	value.MessagingProduct = "whatsapp"
	value.Metadata = models.CloudMetadata{
		DisplayPhoneNumber: numberID,
		PhoneNumberID:      numberID,
	}
	return models.CloudWebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []models.CloudEntry{{
			ID:      "waba-" + numberID,
			Changes: []models.CloudChange{{Field: "messages", Value: value}},
		}},
	}
}

// CloudTextPayload builds a webhook payload carrying one inbound text
// message, with a contacts entry when a profile name is given.
func CloudTextPayload(numberID, from, messageID, profileName, body string, ts time.Time) models.CloudWebhookPayload {
	value := models.CloudChangeValue{
		Messages: []models.CloudMessage{{
			From:      from,
			ID:        messageID,
			Timestamp: strconv.FormatInt(ts.Unix(), 10),
			Type:      "text",
			Text:      &models.CloudText{Body: body},
		}},
	}
	if profileName != "" {
		value.Contacts = []models.CloudContact{{
			Profile: models.CloudProfile{Name: profileName},
			WaID:    from,
		}}
	}
	return cloudEnvelope(numberID, value)
}

// CloudImagePayload builds a webhook payload carrying one inbound image
// message.
func CloudImagePayload(numberID, from, messageID, caption string, ts time.Time) models.CloudWebhookPayload {
	return cloudEnvelope(numberID, models.CloudChangeValue{
		Messages: []models.CloudMessage{{
			From:      from,
			ID:        messageID,
			Timestamp: strconv.FormatInt(ts.Unix(), 10),
			Type:      "image",
			Image: &models.CloudMedia{
				ID:       "media-" + messageID,
				MimeType: "image/jpeg",
				SHA256:   "c2f1a0b3",
				Caption:  caption,
			},
		}},
	})
}

// CloudLocationPayload builds a webhook payload carrying one shared
// location pin.
func CloudLocationPayload(numberID, from, messageID string, lat, lng float64, name, address string, ts time.Time) models.CloudWebhookPayload {
	return cloudEnvelope(numberID, models.CloudChangeValue{
		Messages: []models.CloudMessage{{
			From:      from,
			ID:        messageID,
			Timestamp: strconv.FormatInt(ts.Unix(), 10),
			Type:      "location",
			Location: &models.CloudLocation{
				Latitude:  lat,
				Longitude: lng,
				Name:      name,
				Address:   address,
			},
		}},
	})
}

// CloudStatusPayload builds a webhook payload carrying one delivery
// receipt for a previously sent message.
func CloudStatusPayload(numberID, messageID, status, recipient string, ts time.Time) models.CloudWebhookPayload {
	return cloudEnvelope(numberID, models.CloudChangeValue{
		Statuses: []models.CloudStatus{{
			ID:          messageID,
			Status:      status,
			Timestamp:   strconv.FormatInt(ts.Unix(), 10),
			RecipientID: recipient,
		}},
	})
}

// ParseCloudPayload decodes a raw webhook body the way the HTTP handler
// does, so message fixtures keep their Raw bytes populated.
func ParseCloudPayload(t *testing.T, raw string) models.CloudWebhookPayload {
	t.Helper()
	var payload models.CloudWebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload), "failed to parse cloud payload fixture")
	return payload
}

// BridgeText builds one text message event from a QR-paired session.
func BridgeText(id, chatID, pushName, text string, fromMe bool, ts time.Time) models.BridgeMessage {
	return models.BridgeMessage{
		ID:        id,
		ChatID:    chatID,
		PushName:  pushName,
		FromMe:    fromMe,
		Timestamp: ts,
		Text:      text,
	}
}

// BridgeImage builds one image message event from a QR-paired session.
func BridgeImage(id, chatID, caption string, ts time.Time) models.BridgeMessage {
	return models.BridgeMessage{
		ID:        id,
		ChatID:    chatID,
		Timestamp: ts,
		Image: &models.BridgeMedia{
			Path:     "/var/lib/whatscrm/media/" + id + ".jpg",
			MimeType: "image/jpeg",
			Caption:  caption,
		},
	}
}

// BridgeReceiptFor builds a receipt covering the given message ids.
func BridgeReceiptFor(chatID string, status models.DeliveryStatus, ts time.Time, messageIDs ...string) models.BridgeReceipt {
	return models.BridgeReceipt{
		MessageIDs: messageIDs,
		ChatID:     chatID,
		Status:     status,
		Timestamp:  ts,
	}
}
