package models

import "encoding/json"

// CloudWebhookPayload is the envelope Meta posts to the webhook
// endpoint. One request can batch several entries, each with several
// changes.
type CloudWebhookPayload struct {
	Object string       `json:"object"`
	Entry  []CloudEntry `json:"entry"`
}

// CloudEntry is one business-account entry inside a webhook payload.
type CloudEntry struct {
	ID      string        `json:"id"`
	Changes []CloudChange `json:"changes"`
}

// CloudChange wraps a single change notification.
type CloudChange struct {
	Field string           `json:"field"`
	Value CloudChangeValue `json:"value"`
}

// CloudChangeValue carries the routing metadata plus either messages,
// statuses, or both. The contacts array maps sender wa_ids to profile
// names for the messages in the same change.
type CloudChangeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         CloudMetadata   `json:"metadata"`
	Contacts         []CloudContact  `json:"contacts,omitempty"`
	Messages         []CloudMessage  `json:"messages,omitempty"`
	Statuses         []CloudStatus   `json:"statuses,omitempty"`
	Errors           []CloudAPIError `json:"errors,omitempty"`
}

// CloudMetadata identifies which registered number received the change.
type CloudMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// CloudContact is a sender profile entry from the change-level contacts
// array.
type CloudContact struct {
	Profile CloudProfile `json:"profile"`
	WaID    string       `json:"wa_id"`
}

// CloudProfile holds the sender's display name.
type CloudProfile struct {
	Name string `json:"name"`
}

// CloudMessage is one inbound message notification. Timestamp is unix
// seconds encoded as a string. Raw preserves the exact JSON object the
// message arrived as, so messages of types this build does not model
// are never dropped.
type CloudMessage struct {
	From      string             `json:"from"`
	ID        string             `json:"id"`
	Timestamp string             `json:"timestamp"`
	Type      string             `json:"type"`
	Text      *CloudText         `json:"text,omitempty"`
	Image     *CloudMedia        `json:"image,omitempty"`
	Video     *CloudMedia        `json:"video,omitempty"`
	Audio     *CloudMedia        `json:"audio,omitempty"`
	Document  *CloudMedia        `json:"document,omitempty"`
	Sticker   *CloudMedia        `json:"sticker,omitempty"`
	Location  *CloudLocation     `json:"location,omitempty"`
	Contacts  []CloudContactCard `json:"contacts,omitempty"`
	Raw       json.RawMessage    `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps a copy of the raw
// object for fallback serialization of unmodeled message types.
func (m *CloudMessage) UnmarshalJSON(data []byte) error {
	type alias CloudMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = CloudMessage(a)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// CloudText is the body of a text message.
type CloudText struct {
	Body string `json:"body"`
}

// CloudMedia describes an uploaded media object. The Cloud API sends a
// media id to fetch through the Graph API rather than a direct URL.
type CloudMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// CloudLocation is a shared location pin.
type CloudLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// CloudContactCard is a contact shared inside a message body.
type CloudContactCard struct {
	Name   CloudContactName    `json:"name"`
	Phones []CloudContactPhone `json:"phones,omitempty"`
}

// CloudContactName is the structured name of a shared contact card.
type CloudContactName struct {
	FormattedName string `json:"formatted_name"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
}

// CloudContactPhone is one phone entry of a shared contact card.
type CloudContactPhone struct {
	Phone string `json:"phone"`
	WaID  string `json:"wa_id,omitempty"`
	Type  string `json:"type,omitempty"`
}

// CloudStatus is one delivery receipt for a previously sent message.
type CloudStatus struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Errors      []CloudAPIError `json:"errors,omitempty"`
}

// CloudAPIError is the error detail Meta attaches to failed statuses.
type CloudAPIError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}
