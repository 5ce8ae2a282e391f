package service

import (
	"context"
	"io"
	"time"

	"whatscrm/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type mockLeadStore struct {
	mock.Mock
}

func (m *mockLeadStore) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lead), args.Error(1)
}

func (m *mockLeadStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

func (m *mockLeadStore) TouchLeadContact(ctx context.Context, leadID string, at time.Time) error {
	args := m.Called(ctx, leadID, at)
	return args.Error(0)
}

func (m *mockLeadStore) GetDefaultPipeline(ctx context.Context) (*models.Pipeline, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Pipeline), args.Error(1)
}

func (m *mockLeadStore) GetFirstStage(ctx context.Context, pipelineID string) (*models.PipelineStage, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PipelineStage), args.Error(1)
}

func (m *mockLeadStore) GetMaxKanbanOrder(ctx context.Context, stageID string) (int, error) {
	args := m.Called(ctx, stageID)
	return args.Int(0), args.Error(1)
}

type mockConversationStore struct {
	mock.Mock
}

func (m *mockConversationStore) GetConversationByAPIKey(ctx context.Context, channel, numberID, contactPhone string) (*models.Conversation, error) {
	args := m.Called(ctx, channel, numberID, contactPhone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *mockConversationStore) GetConversationByBridgeKey(ctx context.Context, channel, numberID, connectionType, externalChatID string) (*models.Conversation, error) {
	args := m.Called(ctx, channel, numberID, connectionType, externalChatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *mockConversationStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *mockConversationStore) ApplyLiveInbound(ctx context.Context, conversationID string, at time.Time) error {
	args := m.Called(ctx, conversationID, at)
	return args.Error(0)
}

func (m *mockConversationStore) MergeConversationTimestamp(ctx context.Context, conversationID string, at time.Time) error {
	args := m.Called(ctx, conversationID, at)
	return args.Error(0)
}

func (m *mockConversationStore) UpdateConversationContactName(ctx context.Context, conversationID, contactName string) error {
	args := m.Called(ctx, conversationID, contactName)
	return args.Error(0)
}

type mockMessageStore struct {
	mock.Mock
}

func (m *mockMessageStore) GetMessageByProviderID(ctx context.Context, providerMessageID string, kind models.ConnectionKind) (*models.Message, error) {
	args := m.Called(ctx, providerMessageID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *mockMessageStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockStatusStore struct {
	mock.Mock
}

func (m *mockStatusStore) GetMessageByProviderID(ctx context.Context, providerMessageID string, kind models.ConnectionKind) (*models.Message, error) {
	args := m.Called(ctx, providerMessageID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *mockStatusStore) UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus, at time.Time) error {
	args := m.Called(ctx, messageID, status, at)
	return args.Error(0)
}

func (m *mockStatusStore) GetRecipientByMessageID(ctx context.Context, whatsappMessageID string) (*models.CampaignRecipient, error) {
	args := m.Called(ctx, whatsappMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CampaignRecipient), args.Error(1)
}

func (m *mockStatusStore) UpdateRecipientStatus(ctx context.Context, recipientID string, status models.DeliveryStatus) error {
	args := m.Called(ctx, recipientID, status)
	return args.Error(0)
}

func (m *mockStatusStore) IncrementCampaignSent(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func (m *mockStatusStore) IncrementCampaignDelivered(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func (m *mockStatusStore) IncrementCampaignRead(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func (m *mockStatusStore) IncrementCampaignFailed(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

type mockDirectoryStore struct {
	mock.Mock
}

func (m *mockDirectoryStore) SaveDirectoryContact(ctx context.Context, contact *models.DirectoryContact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

func (m *mockDirectoryStore) GetDirectoryContact(ctx context.Context, phone string) (*models.DirectoryContact, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DirectoryContact), args.Error(1)
}

func (m *mockDirectoryStore) CleanupOldContacts(retentionDays int) (int64, error) {
	args := m.Called(retentionDays)
	return args.Get(0).(int64), args.Error(1)
}

type mockRecordCleaner struct {
	mock.Mock
}

func (m *mockRecordCleaner) CleanupOldRecords(retentionDays int) (int64, error) {
	args := m.Called(retentionDays)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRecordCleaner) CleanupOldContacts(retentionDays int) (int64, error) {
	args := m.Called(retentionDays)
	return args.Get(0).(int64), args.Error(1)
}

type mockDispatchSender struct {
	mock.Mock
	sent chan models.IntegrationEvent
}

func newMockDispatchSender() *mockDispatchSender {
	return &mockDispatchSender{sent: make(chan models.IntegrationEvent, 8)}
}

func (m *mockDispatchSender) Send(ctx context.Context, event models.IntegrationEvent) error {
	args := m.Called(ctx, event)
	if m.sent != nil {
		m.sent <- event
	}
	return args.Error(0)
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(event models.IntegrationEvent) {
	m.Called(event)
}
