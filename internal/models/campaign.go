package models

import "time"

// Campaign tracks an outbound send and its delivery rollups. The
// counter columns are only ever moved by atomic SQL increments guarded
// by the recipient's pre-transition status, so each recipient
// contributes at most once per counter.
type Campaign struct {
	ID                string
	Name              string
	MessagesSent      int
	MessagesDelivered int
	MessagesRead      int
	MessagesFailed    int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CampaignRecipient links one target phone to the provider message id
// the campaign send produced, so status receipts can be routed back to
// the owning campaign.
type CampaignRecipient struct {
	ID                string
	CampaignID        string
	Phone             string
	WhatsAppMessageID string
	Status            DeliveryStatus
	UpdatedAt         time.Time
}
