package models

import "time"

// EventMessageReceived is the event name attached to integration
// dispatches for newly ledgered inbound messages.
const EventMessageReceived = "message_received"

// IntegrationEvent is the envelope posted to configured dispatch
// targets and broadcast over the websocket hub.
type IntegrationEvent struct {
	EventID          string      `json:"event_id"`
	WhatsAppNumberID string      `json:"whatsapp_number_id"`
	Event            string      `json:"event"`
	Timestamp        time.Time   `json:"timestamp"`
	Data             interface{} `json:"data"`
}

// MessageReceivedData is the payload of a message_received event.
type MessageReceivedData struct {
	ConversationID    string   `json:"conversation_id"`
	SenderPhone       string   `json:"sender_phone"`
	SenderName        string   `json:"sender_name,omitempty"`
	Content           string   `json:"content"`
	MessageType       string   `json:"message_type"`
	MediaURL          string   `json:"media_url,omitempty"`
	MediaMimeType     string   `json:"media_mime_type,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	LocationName      string   `json:"location_name,omitempty"`
	ProviderMessageID string   `json:"provider_message_id"`
}
