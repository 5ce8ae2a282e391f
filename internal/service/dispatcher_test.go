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

func waitForDispatch(t *testing.T, sender *mockDispatchSender) models.IntegrationEvent {
	t.Helper()
	select {
	case event := <-sender.sent:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return models.IntegrationEvent{}
	}
}

func TestDispatcher_BuildsEnvelope(t *testing.T) {
	sender := newMockDispatchSender()
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	dispatcher := NewDispatcher(sender, nil, time.Second, newTestLogger())

	lat, lng := 52.52, 13.405
	event := liveInboundEvent()
	event.Latitude = &lat
	event.Longitude = &lng
	event.LocationName = "Office"
	event.MediaURL = "media-1"
	event.MediaMimeType = "image/jpeg"

	dispatcher.MessageReceived("conv-1", event)

	envelope := waitForDispatch(t, sender)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "1055001000000", envelope.WhatsAppNumberID)
	assert.Equal(t, models.EventMessageReceived, envelope.Event)
	assert.WithinDuration(t, time.Now().UTC(), envelope.Timestamp, 5*time.Second)

	data, ok := envelope.Data.(models.MessageReceivedData)
	require.True(t, ok)
	assert.Equal(t, "conv-1", data.ConversationID)
	assert.Equal(t, "15551234567", data.SenderPhone)
	assert.Equal(t, "Ada Example", data.SenderName)
	assert.Equal(t, "hello there", data.Content)
	assert.Equal(t, "text", data.MessageType)
	assert.Equal(t, "media-1", data.MediaURL)
	assert.Equal(t, "image/jpeg", data.MediaMimeType)
	assert.Equal(t, "Office", data.LocationName)
	assert.Equal(t, "wamid.TEXT01", data.ProviderMessageID)
	require.NotNil(t, data.Latitude)
	assert.InDelta(t, 52.52, *data.Latitude, 0.0001)
}

func TestDispatcher_SendRunsUnderDeadline(t *testing.T) {
	sender := newMockDispatchSender()
	sender.On("Send", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(nil)

	dispatcher := NewDispatcher(sender, nil, time.Second, newTestLogger())
	dispatcher.MessageReceived("conv-1", liveInboundEvent())

	waitForDispatch(t, sender)
	sender.AssertExpectations(t)
}

func TestDispatcher_SendFailureIsNotFatal(t *testing.T) {
	sender := newMockDispatchSender()
	sender.On("Send", mock.Anything, mock.Anything).Return(fmt.Errorf("target unreachable"))

	dispatcher := NewDispatcher(sender, nil, time.Second, newTestLogger())

	// Must not panic or block the caller
	dispatcher.MessageReceived("conv-1", liveInboundEvent())
	waitForDispatch(t, sender)
}

func TestDispatcher_BroadcastsBeforeSending(t *testing.T) {
	sender := newMockDispatchSender()
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	broadcaster := &mockBroadcaster{}
	broadcaster.On("Broadcast", mock.MatchedBy(func(event models.IntegrationEvent) bool {
		return event.Event == models.EventMessageReceived
	})).Return()

	dispatcher := NewDispatcher(sender, broadcaster, time.Second, newTestLogger())
	dispatcher.MessageReceived("conv-1", liveInboundEvent())

	// Broadcast is synchronous, so the expectation already holds here
	broadcaster.AssertExpectations(t)
	waitForDispatch(t, sender)
}

func TestDispatcher_NilSinksAreSafe(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil, time.Second, newTestLogger())
	dispatcher.MessageReceived("conv-1", liveInboundEvent())
}

func TestDispatcher_BroadcastOnlyWhenNoTargets(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	broadcaster.On("Broadcast", mock.Anything).Return()

	dispatcher := NewDispatcher(nil, broadcaster, time.Second, newTestLogger())
	dispatcher.MessageReceived("conv-1", liveInboundEvent())

	broadcaster.AssertExpectations(t)
}

func TestNewDispatcher_DefaultTimeout(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil, 0, newTestLogger())
	assert.Equal(t, 10*time.Second, dispatcher.timeout)

	custom := NewDispatcher(nil, nil, 3*time.Second, newTestLogger())
	assert.Equal(t, 3*time.Second, custom.timeout)
}
