package models

import "time"

// DeliveryStatus represents the delivery state of a message
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryStatusPending:   0,
	DeliveryStatusSent:      1,
	DeliveryStatusDelivered: 2,
	DeliveryStatusRead:      3,
}

// CanTransition reports whether a message or recipient may move from
// current to next. Transitions only move forward along
// pending -> sent -> delivered -> read; failed is reachable from any
// non-failed state and terminal.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	if s == DeliveryStatusFailed {
		return false
	}
	if next == DeliveryStatusFailed {
		return true
	}
	currentRank, ok := deliveryStatusRank[s]
	if !ok {
		return false
	}
	nextRank, ok := deliveryStatusRank[next]
	if !ok {
		return false
	}
	return nextRank > currentRank
}

// IsKnown reports whether s is one of the recognized delivery states.
func (s DeliveryStatus) IsKnown() bool {
	if s == DeliveryStatusFailed {
		return true
	}
	_, ok := deliveryStatusRank[s]
	return ok
}

// Direction of a message relative to the CRM-owned number
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageType is the canonical content classification
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
)

// Message is one row in the conversation ledger. Identity for
// deduplication is (ProviderMessageID, ConnectionKind); the surrogate ID
// exists for foreign keys and the read API. Rows are immutable after
// insert except for Status and its timestamp columns.
type Message struct {
	ID                string
	ConversationID    string
	ProviderMessageID string
	ConnectionKind    ConnectionKind
	Direction         Direction
	Type              MessageType
	Content           string
	MediaURL          string
	MediaMimeType     string
	Latitude          *float64
	Longitude         *float64
	Status            DeliveryStatus
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	CreatedAt         time.Time
}
