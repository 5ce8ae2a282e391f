// Package integration_test exercises the ingestion pipeline end to end:
// real SQLite storage, real resolvers, and a live HTTP dispatch target,
// with only the WhatsApp providers themselves replaced by fixture
// payloads.
package integration_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"whatscrm/internal/database"
	"whatscrm/internal/models"
	"whatscrm/internal/retry"
	"whatscrm/internal/service"
	"whatscrm/pkg/webhook"
)

const (
	// Registered connections shared by every test environment.
	cloudNumberID       = "104857200310001"
	secondCloudNumberID = "104857200310002"
	qrNumberID          = "15550007001"

	verifyToken    = "integration-verify-token"
	dispatchSecret = "integration-dispatch-secret"
)

// capturedDispatch is one delivery recorded by the dispatch target.
type capturedDispatch struct {
	body      []byte
	signature string
}

// TestEnvironment wires the full ingestion stack against a temporary
// database and an in-process dispatch target.
type TestEnvironment struct {
	t      *testing.T
	db     *database.Database
	ingest *service.IngestService

	dispatchServer *httptest.Server

	mu            sync.Mutex
	dispatches    []capturedDispatch
	dispatchFails int

	cleanupFuncs []func()
}

// NewTestEnvironment builds the stack. The database lives in the test's
// temp dir because opening ":memory:" would skip the file validation
// path real deployments go through.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	env := &TestEnvironment{t: t}

	dbPath := filepath.Join(t.TempDir(), "whatscrm-test.db")
	db, err := database.New(dbPath)
	require.NoError(t, err, "failed to create test database")
	env.db = db
	env.cleanupFuncs = append(env.cleanupFuncs, func() { _ = db.Close() })

	env.dispatchServer = httptest.NewServer(http.HandlerFunc(env.handleDispatch))
	env.cleanupFuncs = append(env.cleanupFuncs, env.dispatchServer.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry, err := service.NewConnectionRegistry([]models.ConnectionConfig{
		{NumberID: cloudNumberID, Kind: "api", DisplayName: "Main line", VerifyToken: verifyToken},
		{NumberID: secondCloudNumberID, Kind: "api", DisplayName: "Sales line", VerifyToken: verifyToken},
		{NumberID: qrNumberID, Kind: "qr", DisplayName: "Field phone"},
	})
	require.NoError(t, err, "failed to build connection registry")

	sender := webhook.NewClient(
		[]webhook.Target{{Name: "crm-hub", URL: env.dispatchServer.URL, Secret: dispatchSecret}},
		&http.Client{Timeout: 2 * time.Second},
		retry.BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  3,
		},
		logger,
	)
	dispatcher := service.NewDispatcher(sender, nil, 2*time.Second, logger)

	env.ingest = service.NewIngestService(
		registry,
		service.NewLeadResolver(db, logger),
		service.NewConversationResolver(db, logger),
		service.NewMessageLedger(db, logger),
		service.NewStatusReconciler(db, logger),
		service.NewContactDirectory(db, 24, logger),
		dispatcher,
		logger,
	)

	return env
}

// Cleanup tears the environment down in reverse construction order.
func (env *TestEnvironment) Cleanup() {
	for i := len(env.cleanupFuncs) - 1; i >= 0; i-- {
		env.cleanupFuncs[i]()
	}
}

func (env *TestEnvironment) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	env.mu.Lock()
	defer env.mu.Unlock()

	if env.dispatchFails > 0 {
		env.dispatchFails--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	env.dispatches = append(env.dispatches, capturedDispatch{
		body:      body,
		signature: r.Header.Get(webhook.SignatureHeader),
	})
	w.WriteHeader(http.StatusOK)
}

// SetDispatchFailures makes the dispatch target reject the next n
// deliveries with a 500 before accepting again.
func (env *TestEnvironment) SetDispatchFailures(n int) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.dispatchFails = n
}

// DispatchCount returns how many deliveries the target has accepted.
func (env *TestEnvironment) DispatchCount() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return len(env.dispatches)
}

// LastDispatch returns the most recently accepted delivery.
func (env *TestEnvironment) LastDispatch() (capturedDispatch, bool) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if len(env.dispatches) == 0 {
		return capturedDispatch{}, false
	}
	return env.dispatches[len(env.dispatches)-1], true
}

// WaitForCondition polls until the condition holds or the timeout
// passes. Dispatch happens on a background goroutine, so tests must
// wait rather than assert immediately.
func (env *TestEnvironment) WaitForCondition(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// AssertNoDispatch waits long enough for a stray async delivery to have
// landed and then checks that none did.
func (env *TestEnvironment) AssertNoDispatch() {
	env.t.Helper()
	time.Sleep(200 * time.Millisecond)
	if count := env.DispatchCount(); count != 0 {
		env.t.Errorf("expected no dispatches, got %d", count)
	}
}

// SeedCampaign inserts a campaign row with zeroed counters.
func (env *TestEnvironment) SeedCampaign(ctx context.Context, id, name string) *models.Campaign {
	env.t.Helper()
	campaign := &models.Campaign{ID: id, Name: name}
	require.NoError(env.t, env.db.CreateCampaign(ctx, campaign), "failed to seed campaign")
	return campaign
}

// SeedRecipient inserts a pending campaign recipient keyed by the
// provider message id of its send.
func (env *TestEnvironment) SeedRecipient(ctx context.Context, id, campaignID, phone, messageID string) *models.CampaignRecipient {
	env.t.Helper()
	recipient := &models.CampaignRecipient{
		ID:                id,
		CampaignID:        campaignID,
		Phone:             phone,
		WhatsAppMessageID: messageID,
		Status:            models.DeliveryStatusPending,
	}
	require.NoError(env.t, env.db.CreateCampaignRecipient(ctx, recipient), "failed to seed campaign recipient")
	return recipient
}
