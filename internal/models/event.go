package models

import "time"

// ConnectionKind distinguishes the two transports feeding the pipeline.
// The same provider message id may legitimately exist once per kind.
type ConnectionKind string

const (
	ConnectionKindAPI ConnectionKind = "api"
	ConnectionKindQR  ConnectionKind = "qr"
)

// IngestMode tells the pipeline whether an event is a live notification
// or a history replay. The distinction drives the unread counter and
// lastMessageAt merge rules.
type IngestMode string

const (
	IngestModeNotify IngestMode = "notify"
	IngestModeAppend IngestMode = "append"
)

// EventKind separates content messages from delivery receipts. Both can
// arrive in the same webhook batch and are processed independently.
type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindStatus  EventKind = "status"
)

// InboundEvent is the canonical form every transport shape is normalized
// into before any state is touched.
type InboundEvent struct {
	Kind           EventKind
	Channel        string
	ConnectionKind ConnectionKind
	ConnectionType string
	NumberID       string
	Mode           IngestMode
	Direction      Direction

	// Contact identity. ContactPhone is the bare phone number used for
	// lead resolution; ExternalChatID is the transport-native chat id
	// used in the QR-path conversation key.
	ContactPhone   string
	ContactName    string
	ExternalChatID string

	// Message payload, set when Kind == EventKindMessage.
	ProviderMessageID string
	Type              MessageType
	Content           string
	MediaURL          string
	MediaMimeType     string
	Latitude          *float64
	Longitude         *float64
	LocationName      string
	Timestamp         time.Time

	// Receipt payload, set when Kind == EventKindStatus.
	Status         DeliveryStatus
	RecipientPhone string
}
