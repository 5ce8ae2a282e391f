package models

import "time"

// ConversationStatus is the lifecycle state of a conversation thread.
type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusArchived ConversationStatus = "archived"
)

// Conversation is one chat thread. The natural key depends on the
// connection kind: API threads are keyed by (channel, number_id,
// contact_phone); bridge threads by (channel, number_id,
// connection_type, external_chat_id). The two keyspaces never merge.
type Conversation struct {
	ID             string
	Channel        string
	NumberID       string
	ConnectionType string
	ContactPhone   string
	ContactName    string
	ExternalChatID string
	LeadID         *string
	Status         ConversationStatus
	UnreadCount    int
	LastMessageAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChannelWhatsApp is the only channel the ingest pipeline currently
// produces; the column exists so other messaging channels can share the
// table without colliding with WhatsApp threads.
const ChannelWhatsApp = "whatsapp"

// ConnectionTypeAPI is the connection_type recorded for cloud API
// threads. Bridge threads carry the connection type reported by the
// bridge session (for example "qr").
const ConnectionTypeAPI = "api"
