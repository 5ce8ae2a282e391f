package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"whatscrm/internal/features"
	"whatscrm/internal/models"
	"whatscrm/internal/service"
	"whatscrm/pkg/webhook"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCloudIngestor struct {
	mock.Mock
}

func (m *MockCloudIngestor) ProcessCloudPayload(ctx context.Context, payload models.CloudWebhookPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) ListConversations(ctx context.Context, limit, offset int) ([]models.Conversation, error) {
	args := m.Called(ctx, limit, offset)
	if convs := args.Get(0); convs != nil {
		return convs.([]models.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	args := m.Called(ctx, id)
	if conv := args.Get(0); conv != nil {
		return conv.(*models.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ResetUnread(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

const testWebhookSecret = "test-webhook-secret"

func newTestConfig() *models.Config {
	return &models.Config{
		Server: models.ServerConfig{
			Port:               8082,
			WebhookSecret:      testWebhookSecret,
			RateLimitPerMinute: 1000,
			MaxBodyBytes:       1 << 20,
		},
		Connections: []models.ConnectionConfig{
			{NumberID: "15550001111", Kind: "api", DisplayName: "Main line", VerifyToken: "verify-me"},
		},
		Database: models.DatabaseConfig{Path: ":memory:"},
	}
}

func newTestServer(t *testing.T, cfg *models.Config) (*Server, *MockCloudIngestor, *MockStore) {
	t.Helper()
	features.Initialize()

	registry, err := service.NewConnectionRegistry(cfg.Connections)
	require.NoError(t, err)

	ingest := new(MockCloudIngestor)
	store := new(MockStore)
	logger := logrus.New()
	server := NewServer(cfg, registry, ingest, store, nil, logger)
	return server, ingest, store
}

func signBody(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestServer_HandleHealth(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())
	store.On("Ping", mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestServer_HandleHealth_DatabaseDown(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())
	store.On("Ping", mock.Anything).Return(errors.New("database is locked"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_WebhookVerify(t *testing.T) {
	server, _, _ := newTestServer(t, newTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=challenge-42", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "challenge-42", w.Body.String())
}

func TestServer_WebhookVerify_BadToken(t *testing.T) {
	server, _, _ := newTestServer(t, newTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-42", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_WebhookVerify_BadMode(t *testing.T) {
	server, _, _ := newTestServer(t, newTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/whatsapp/webhook?hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=challenge-42", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_WebhookEvent(t *testing.T) {
	server, ingest, _ := newTestServer(t, newTestConfig())

	body := `{"object":"whatsapp_business_account","entry":[{"id":"biz-1","changes":[]}]}`
	ingest.On("ProcessCloudPayload", mock.Anything, mock.MatchedBy(func(p models.CloudWebhookPayload) bool {
		return p.Object == "whatsapp_business_account" && len(p.Entry) == 1
	})).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, signBody(body))
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	ingest.AssertExpectations(t)
}

func TestServer_WebhookEvent_IngestErrorStillAcknowledged(t *testing.T) {
	server, ingest, _ := newTestServer(t, newTestConfig())

	body := `{"object":"whatsapp_business_account","entry":[]}`
	ingest.On("ProcessCloudPayload", mock.Anything, mock.Anything).Return(errors.New("context canceled"))

	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, signBody(body))
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	// The provider would resend on anything but 2xx, replaying events
	// that may already be applied.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_WebhookEvent_BadSignature(t *testing.T) {
	server, ingest, _ := newTestServer(t, newTestConfig())

	body := `{"object":"whatsapp_business_account","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, "sha256=deadbeef")
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	ingest.AssertNumberOfCalls(t, "ProcessCloudPayload", 0)
}

func TestServer_WebhookEvent_MissingSignature(t *testing.T) {
	server, ingest, _ := newTestServer(t, newTestConfig())

	body := `{"object":"whatsapp_business_account","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	ingest.AssertNumberOfCalls(t, "ProcessCloudPayload", 0)
}

func TestServer_WebhookEvent_InvalidJSON(t *testing.T) {
	server, ingest, _ := newTestServer(t, newTestConfig())

	body := `{"object":`
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, signBody(body))
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	ingest.AssertNumberOfCalls(t, "ProcessCloudPayload", 0)
}

func TestServer_WebhookEvent_UnrelatedObject(t *testing.T) {
	server, ingest, _ := newTestServer(t, newTestConfig())

	body := `{"object":"instagram","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, signBody(body))
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	ingest.AssertNumberOfCalls(t, "ProcessCloudPayload", 0)
}

func TestServer_ListConversations(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())

	store.On("ListConversations", mock.Anything, 50, 0).Return([]models.Conversation{
		{ID: "conv-1", Channel: models.ChannelWhatsApp, NumberID: "15550001111", ConnectionType: "api", ContactPhone: "+15551234567", Status: models.ConversationStatusActive, UnreadCount: 2},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "conv-1", resp[0]["id"])
	assert.Equal(t, "+15551234567", resp[0]["contact_phone"])
	assert.Equal(t, float64(2), resp[0]["unread_count"])
}

func TestServer_ListConversations_PaginationClamped(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())

	store.On("ListConversations", mock.Anything, 200, 30).Return([]models.Conversation{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?limit=500&offset=30", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestServer_ListMessages(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())

	store.On("GetConversationByID", mock.Anything, "conv-1").Return(&models.Conversation{ID: "conv-1"}, nil)
	store.On("ListMessagesByConversation", mock.Anything, "conv-1", 50, 0).Return([]models.Message{
		{ID: "msg-1", ConversationID: "conv-1", ProviderMessageID: "wamid.X1", Direction: models.DirectionInbound, Type: models.MessageTypeText, Content: "hello", Status: models.DeliveryStatusDelivered},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "msg-1", resp[0]["id"])
	assert.Equal(t, "wamid.X1", resp[0]["provider_message_id"])
	assert.Equal(t, "inbound", resp[0]["direction"])
}

func TestServer_ListMessages_ConversationNotFound(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())

	store.On("GetConversationByID", mock.Anything, "missing").Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/missing/messages", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	store.AssertNumberOfCalls(t, "ListMessagesByConversation", 0)

	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "NOT_FOUND", errResp.Error.Code)
	assert.Equal(t, "conversation not found", errResp.Error.Message)
	assert.NotEmpty(t, errResp.RequestID, "error bodies carry the request correlation id")
}

func TestServer_MarkRead(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())

	store.On("GetConversationByID", mock.Anything, "conv-1").Return(&models.Conversation{ID: "conv-1", UnreadCount: 5}, nil)
	store.On("ResetUnread", mock.Anything, "conv-1").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/conv-1/read", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	store.AssertExpectations(t)
}

func TestServer_MarkRead_ConversationNotFound(t *testing.T) {
	server, _, store := newTestServer(t, newTestConfig())

	store.On("GetConversationByID", mock.Anything, "missing").Return(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/missing/read", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	store.AssertNumberOfCalls(t, "ResetUnread", 0)
}

func TestServer_Metrics_RequiresKey(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.MetricsAPIKey = "metrics-key"
	server, _, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_Metrics_WithKey(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.MetricsAPIKey = "metrics-key"
	server, _, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-API-Key", "metrics-key")
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "counters")
	assert.Contains(t, resp, "uptime_ms")
}

func TestServer_Metrics_LoopbackOnlyWithoutConfiguredKey(t *testing.T) {
	server, _, _ := newTestServer(t, newTestConfig())

	// httptest stamps a non-loopback RemoteAddr by default.
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:52108"
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "[::1]:52108"
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// A forwarded header claiming loopback must not open the endpoint.
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_Version(t *testing.T) {
	server, _, _ := newTestServer(t, newTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, Version, resp["build_version"])
	assert.Contains(t, resp, "api_version")
}

func TestServer_WebsocketRouteAbsentWithoutHub(t *testing.T) {
	server, _, _ := newTestServer(t, newTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_WebsocketRouteRegisteredWithHub(t *testing.T) {
	cfg := newTestConfig()
	features.Initialize()

	registry, err := service.NewConnectionRegistry(cfg.Connections)
	require.NoError(t, err)

	logger := logrus.New()
	hub := service.NewWSHub(logger)
	server := NewServer(cfg, registry, new(MockCloudIngestor), new(MockStore), hub, logger)

	// Not a real upgrade request, but the route must exist; anything but
	// the router's 404 means the hub handler answered.
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNotFound, w.Code)
}

func TestServer_RateLimiting(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.RateLimitPerMinute = 2
	server, _, store := newTestServer(t, cfg)
	store.On("Ping", mock.Anything).Return(nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
		w := httptest.NewRecorder()
		server.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health stays reachable for probes even when the client is limited
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RequestSizeLimit(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.MaxBodyBytes = 16
	server, ingest, _ := newTestServer(t, cfg)

	body := strings.Repeat("x", 1024)
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, signBody(body))
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	ingest.AssertNumberOfCalls(t, "ProcessCloudPayload", 0)
}
