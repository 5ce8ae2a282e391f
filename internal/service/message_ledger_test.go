package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"whatscrm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMessageLedger_AppendInbound(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	event := liveInboundEvent()
	store.On("GetMessageByProviderID", mock.Anything, "wamid.TEXT01", models.ConnectionKindAPI).Return(nil, nil)
	store.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg *models.Message) bool {
		return msg.ConversationID == "conv-1" &&
			msg.ProviderMessageID == "wamid.TEXT01" &&
			msg.ConnectionKind == models.ConnectionKindAPI &&
			msg.Direction == models.DirectionInbound &&
			msg.Type == models.MessageTypeText &&
			msg.Content == "hello there" &&
			msg.Status == models.DeliveryStatusDelivered &&
			msg.DeliveredAt != nil && msg.DeliveredAt.Equal(event.Timestamp.UTC()) &&
			msg.SentAt == nil &&
			msg.ID != ""
	})).Return(nil)

	id, inserted, err := ledger.Append(context.Background(), "conv-1", event)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, id)
	store.AssertExpectations(t)
}

func TestMessageLedger_AppendOutboundHistory(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	event := bridgeHistoryEvent()
	event.Direction = models.DirectionOutbound

	store.On("GetMessageByProviderID", mock.Anything, "3EB0HIST01", models.ConnectionKindQR).Return(nil, nil)
	store.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg *models.Message) bool {
		return msg.Status == models.DeliveryStatusSent &&
			msg.SentAt != nil && msg.SentAt.Equal(event.Timestamp.UTC()) &&
			msg.DeliveredAt == nil
	})).Return(nil)

	_, inserted, err := ledger.Append(context.Background(), "conv-2", event)
	require.NoError(t, err)
	assert.True(t, inserted)
	store.AssertExpectations(t)
}

func TestMessageLedger_DuplicateIsIdempotent(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	existing := &models.Message{ID: "msg-1", ProviderMessageID: "wamid.TEXT01"}
	store.On("GetMessageByProviderID", mock.Anything, "wamid.TEXT01", models.ConnectionKindAPI).Return(existing, nil)

	id, inserted, err := ledger.Append(context.Background(), "conv-1", liveInboundEvent())
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "msg-1", id)
	store.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestMessageLedger_InsertRaceReturnsWinner(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	winner := &models.Message{ID: "msg-winner", ProviderMessageID: "wamid.TEXT01"}
	uniqueErr := fmt.Errorf("insert message: %w", fmt.Errorf("UNIQUE constraint failed: messages.provider_message_id"))

	store.On("GetMessageByProviderID", mock.Anything, "wamid.TEXT01", models.ConnectionKindAPI).Return(nil, nil).Once()
	store.On("CreateMessage", mock.Anything, mock.Anything).Return(uniqueErr)
	store.On("GetMessageByProviderID", mock.Anything, "wamid.TEXT01", models.ConnectionKindAPI).Return(winner, nil).Once()

	id, inserted, err := ledger.Append(context.Background(), "conv-1", liveInboundEvent())
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "msg-winner", id)
	store.AssertExpectations(t)
}

func TestMessageLedger_MissingProviderIDRejected(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	event := liveInboundEvent()
	event.ProviderMessageID = ""

	_, _, err := ledger.Append(context.Background(), "conv-1", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing provider message id")
	store.AssertNotCalled(t, "GetMessageByProviderID", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageLedger_LocationFieldsCarryThrough(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	lat, lng := 52.52, 13.405
	event := liveInboundEvent()
	event.Type = models.MessageTypeLocation
	event.Content = "Unter den Linden 1, Berlin"
	event.Latitude = &lat
	event.Longitude = &lng

	store.On("GetMessageByProviderID", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	store.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg *models.Message) bool {
		return msg.Type == models.MessageTypeLocation &&
			msg.Latitude != nil && *msg.Latitude == lat &&
			msg.Longitude != nil && *msg.Longitude == lng
	})).Return(nil)

	_, _, err := ledger.Append(context.Background(), "conv-1", event)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestMessageLedger_LookupFailurePropagates(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	store.On("GetMessageByProviderID", mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("disk I/O error"))

	_, _, err := ledger.Append(context.Background(), "conv-1", liveInboundEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check message ledger")
}

func TestMessageLedger_SameProviderIDAcrossKinds(t *testing.T) {
	// The same provider id must be insertable once per connection kind;
	// the ledger only consults its own kind's keyspace.
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	apiEvent := liveInboundEvent()
	apiEvent.ProviderMessageID = "shared-id"

	qrEvent := bridgeHistoryEvent()
	qrEvent.ProviderMessageID = "shared-id"

	store.On("GetMessageByProviderID", mock.Anything, "shared-id", models.ConnectionKindAPI).Return(nil, nil)
	store.On("GetMessageByProviderID", mock.Anything, "shared-id", models.ConnectionKindQR).Return(nil, nil)
	store.On("CreateMessage", mock.Anything, mock.Anything).Return(nil).Twice()

	_, insertedAPI, err := ledger.Append(context.Background(), "conv-1", apiEvent)
	require.NoError(t, err)
	_, insertedQR, err := ledger.Append(context.Background(), "conv-2", qrEvent)
	require.NoError(t, err)

	assert.True(t, insertedAPI)
	assert.True(t, insertedQR)

	var kinds []models.ConnectionKind
	for _, call := range store.Calls {
		if call.Method == "GetMessageByProviderID" {
			kinds = append(kinds, call.Arguments.Get(2).(models.ConnectionKind))
		}
	}
	assert.ElementsMatch(t, []models.ConnectionKind{models.ConnectionKindAPI, models.ConnectionKindQR}, kinds)
}

func TestMessageLedger_TimestampNormalizedToUTC(t *testing.T) {
	store := &mockMessageStore{}
	ledger := NewMessageLedger(store, newTestLogger())

	event := liveInboundEvent()
	event.Timestamp = time.Date(2026, 8, 20, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	store.On("GetMessageByProviderID", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	store.On("CreateMessage", mock.Anything, mock.MatchedBy(func(msg *models.Message) bool {
		return msg.DeliveredAt != nil && msg.DeliveredAt.Location() == time.UTC
	})).Return(nil)

	_, _, err := ledger.Append(context.Background(), "conv-1", event)
	require.NoError(t, err)
	store.AssertExpectations(t)
}
