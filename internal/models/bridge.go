package models

import (
	"encoding/json"
	"time"
)

// BridgeMessage is the transport-neutral shape of one message event
// from a QR-paired session. The bridge layer fills it from the
// underlying client event before handing it to ingestion, so the
// service layer never sees client types.
type BridgeMessage struct {
	ID          string
	ChatID      string
	SenderPhone string
	PushName    string
	FromMe      bool
	Timestamp   time.Time
	Text        string
	Image       *BridgeMedia
	Video       *BridgeMedia
	Audio       *BridgeMedia
	Document    *BridgeMedia
	Sticker     *BridgeMedia
	Location    *BridgeLocation
	Contact     *BridgeContact
	Raw         json.RawMessage
}

// BridgeMedia is a media attachment carried by a bridge message. Path
// points at the locally stored file when the bridge downloaded it.
type BridgeMedia struct {
	Path     string
	MimeType string
	Caption  string
}

// BridgeLocation is a shared location pin from a bridge message.
type BridgeLocation struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

// BridgeContact is a contact card shared in a bridge message.
type BridgeContact struct {
	DisplayName string
	VCard       string
}

// BridgeReceipt is a read or delivery receipt from a QR-paired session
// covering one or more previously sent messages in a chat.
type BridgeReceipt struct {
	MessageIDs []string
	ChatID     string
	Status     DeliveryStatus
	Timestamp  time.Time
}
