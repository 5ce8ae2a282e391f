package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"whatscrm/internal/constants"
	"whatscrm/internal/errors"
	"whatscrm/internal/features"
	"whatscrm/internal/httputil"
	"whatscrm/internal/metrics"
	"whatscrm/internal/middleware"
	"whatscrm/internal/models"
	"whatscrm/internal/service"
	"whatscrm/internal/tracing"
	"whatscrm/internal/validation"
	"whatscrm/internal/versioning"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// CloudIngestor accepts verified webhook batches from the Cloud API.
type CloudIngestor interface {
	ProcessCloudPayload(ctx context.Context, payload models.CloudWebhookPayload) error
}

// Store is the database surface the HTTP API consumes.
type Store interface {
	Ping(ctx context.Context) error
	ListConversations(ctx context.Context, limit, offset int) ([]models.Conversation, error)
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	ListMessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
	ResetUnread(ctx context.Context, conversationID string) error
}

type Server struct {
	cfg         *models.Config
	registry    *service.ConnectionRegistry
	ingest      CloudIngestor
	store       Store
	hub         *service.WSHub
	logger      *logrus.Logger
	router      *mux.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer wires the HTTP surface. hub may be nil, in which case the
// websocket endpoint is not registered.
func NewServer(cfg *models.Config, registry *service.ConnectionRegistry, ingest CloudIngestor, store Store, hub *service.WSHub, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		registry:    registry,
		ingest:      ingest,
		store:       store,
		hub:         hub,
		logger:      logger,
		router:      mux.NewRouter(),
		rateLimiter: NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	s.router.Use(versioning.NewVersionMiddleware(s.logger).VersionHandler)
	if s.logger.IsLevelEnabled(logrus.DebugLevel) {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}
	if features.IsEnabled(features.FlagRateLimiting) {
		s.router.Use(s.rateLimitMiddleware)
	}
	if features.IsEnabled(features.FlagRequestValidation) {
		s.router.Use(s.requestSizeMiddleware)
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	metricsHandler := versioning.RequireFeature("metrics_endpoint")(s.requireMetricsKey(s.handleMetrics()))
	s.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	webhookRouter := s.router.PathPrefix("/api/whatsapp").Subrouter()
	webhookRouter.Use(middleware.WebhookObservabilityMiddleware(s.logger, "cloud"))
	webhookRouter.HandleFunc("/webhook", s.handleWebhookVerify()).Methods(http.MethodGet)
	webhookRouter.HandleFunc("/webhook", s.handleWebhookEvent()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/conversations", s.handleListConversations()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/read", s.handleMarkRead()).Methods(http.MethodPost)
	api.HandleFunc("/version", s.handleVersion()).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)
	}
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Load balancer probes hit /health every few seconds from one IP
		// and must not consume the budget.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ip := httputil.GetClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			metrics.IncrementCounter("http_rate_limited_total", nil, "Requests rejected by the rate limiter")
			s.logger.WithFields(logrus.Fields{
				"clientIp": ip,
				"path":     r.URL.Path,
			}).Warn("Rate limit exceeded")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, s.cfg.Server.MaxBodyBytes); err != nil {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		// Content-Length can lie; cap the actual read too.
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// requireMetricsKey guards the metrics endpoint. With a configured API
// key any client presenting it is allowed; without one only loopback
// clients are, so an exposed port never serves metrics to the world.
func (s *Server) requireMetricsKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.Server.MetricsAPIKey
		if key != "" {
			if r.Header.Get("X-API-Key") != key {
				s.auditAuthFailure(r, "metrics")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
			return
		}

		// The loopback check reads the socket address, not forwarded
		// headers, which any client can set.
		if ip := net.ParseIP(httputil.RemoteIP(r)); ip == nil || !ip.IsLoopback() {
			s.auditAuthFailure(r, "metrics")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) auditAuthFailure(r *http.Request, surface string) {
	metrics.IncrementCounter("auth_failures_total", map[string]string{"surface": surface}, "Authentication failures by surface")
	if !features.IsEnabled(features.FlagAuditLogging) {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"surface":  surface,
		"clientIp": httputil.GetClientIP(r),
		"path":     r.URL.Path,
		"method":   r.Method,
	}).Warn("Authentication failure")
}

// handleWebhookVerify answers the provider's subscription handshake.
// The challenge is echoed back only when the token matches a configured
// cloud connection.
func (s *Server) handleWebhookVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		mode := query.Get("hub.mode")
		token := query.Get("hub.verify_token")
		challenge := query.Get("hub.challenge")

		if mode != "subscribe" || !s.registry.MatchesVerifyToken(token) {
			s.auditAuthFailure(r, "webhook_verify")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
	}
}

// handleWebhookEvent ingests a signed webhook batch. Once the signature
// checks out the delivery is acknowledged with 200 no matter what
// happens inside the batch: a non-2xx only makes the provider resend
// events that may already be partially applied.
func (s *Server) handleWebhookEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := verifySignature(r, s.cfg.Server.WebhookSecret)
		if err != nil {
			s.auditAuthFailure(r, "webhook")
			metrics.IncrementCounter("webhook_signature_failures_total", nil, "Webhook deliveries rejected for bad signatures")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload models.CloudWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			s.respondError(w, r, errors.NewValidationError("payload", "request body is not valid JSON"))
			return
		}

		if payload.Object != "whatsapp_business_account" {
			s.logger.WithField("object", payload.Object).Debug("Ignoring webhook for unrelated object")
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := s.ingest.ProcessCloudPayload(r.Context(), payload); err != nil {
			s.logger.WithError(err).Error("Webhook batch processing aborted")
		}

		w.WriteHeader(http.StatusOK)
	}
}

type conversationResponse struct {
	ID             string     `json:"id"`
	Channel        string     `json:"channel"`
	NumberID       string     `json:"number_id"`
	ConnectionType string     `json:"connection_type"`
	ContactPhone   string     `json:"contact_phone,omitempty"`
	ContactName    string     `json:"contact_name,omitempty"`
	ExternalChatID string     `json:"external_chat_id,omitempty"`
	LeadID         *string    `json:"lead_id,omitempty"`
	Status         string     `json:"status"`
	UnreadCount    int        `json:"unread_count"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toConversationResponse(c *models.Conversation) conversationResponse {
	return conversationResponse{
		ID:             c.ID,
		Channel:        c.Channel,
		NumberID:       c.NumberID,
		ConnectionType: c.ConnectionType,
		ContactPhone:   c.ContactPhone,
		ContactName:    c.ContactName,
		ExternalChatID: c.ExternalChatID,
		LeadID:         c.LeadID,
		Status:         string(c.Status),
		UnreadCount:    c.UnreadCount,
		LastMessageAt:  c.LastMessageAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

type messageResponse struct {
	ID                string     `json:"id"`
	ConversationID    string     `json:"conversation_id"`
	ProviderMessageID string     `json:"provider_message_id"`
	Direction         string     `json:"direction"`
	Type              string     `json:"type"`
	Content           string     `json:"content"`
	MediaURL          string     `json:"media_url,omitempty"`
	MediaMimeType     string     `json:"media_mime_type,omitempty"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	Status            string     `json:"status"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toMessageResponse(m *models.Message) messageResponse {
	return messageResponse{
		ID:                m.ID,
		ConversationID:    m.ConversationID,
		ProviderMessageID: m.ProviderMessageID,
		Direction:         string(m.Direction),
		Type:              string(m.Type),
		Content:           m.Content,
		MediaURL:          m.MediaURL,
		MediaMimeType:     m.MediaMimeType,
		Latitude:          m.Latitude,
		Longitude:         m.Longitude,
		Status:            string(m.Status),
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		ReadAt:            m.ReadAt,
		CreatedAt:         m.CreatedAt,
	}
}

func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := parsePagination(r)

		conversations, err := s.store.ListConversations(r.Context(), limit, offset)
		if err != nil {
			s.respondError(w, r, errors.NewDatabaseError("list conversations", err))
			return
		}

		resp := make([]conversationResponse, 0, len(conversations))
		for i := range conversations {
			resp = append(resp, toConversationResponse(&conversations[i]))
		}
		s.writeJSON(w, resp)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["id"]
		limit, offset := parsePagination(r)

		conv, err := s.store.GetConversationByID(r.Context(), conversationID)
		if err != nil {
			s.respondError(w, r, errors.NewDatabaseError("get conversation", err))
			return
		}
		if conv == nil {
			s.respondError(w, r, errors.NewNotFoundError("conversation", conversationID))
			return
		}

		messages, err := s.store.ListMessagesByConversation(r.Context(), conversationID, limit, offset)
		if err != nil {
			s.respondError(w, r, errors.NewDatabaseError("list messages", err))
			return
		}

		resp := make([]messageResponse, 0, len(messages))
		for i := range messages {
			resp = append(resp, toMessageResponse(&messages[i]))
		}
		s.writeJSON(w, resp)
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["id"]

		conv, err := s.store.GetConversationByID(r.Context(), conversationID)
		if err != nil {
			s.respondError(w, r, errors.NewDatabaseError("get conversation", err))
			return
		}
		if conv == nil {
			s.respondError(w, r, errors.NewNotFoundError("conversation", conversationID))
			return
		}

		if err := s.store.ResetUnread(r.Context(), conversationID); err != nil {
			s.respondError(w, r, errors.NewDatabaseError("reset unread", err))
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Error("Health check failed")
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func (s *Server) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := versioning.DefaultVersionInfo()
		info.Build = Version
		info.Commit = GitCommit
		if v, ok := versioning.GetVersion(r.Context()); ok {
			info.Features = versioning.FeaturesFor(v)
		}
		s.writeJSON(w, info)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// respondError logs a failed request and writes the structured error
// body. Retryable failures log at warn, everything else at error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	entry := s.logger.WithFields(errors.Fields(err))
	if id := tracing.GetRequestID(r.Context()); id != "" {
		entry = entry.WithField(service.LogFieldRequestID, id)
	}
	entry.Log(errors.LogLevel(err), "Request failed")

	errors.WriteHTTP(w, r, err)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func (s *Server) Start() error {
	port := strconv.Itoa(s.cfg.Server.Port)
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
