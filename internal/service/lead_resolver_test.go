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

func TestLeadResolver_ExistingLeadLiveMessage(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	existing := &models.Lead{ID: "lead-1", Phone: "15551234567", Name: "Ada Example"}
	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(existing, nil)
	store.On("TouchLeadContact", mock.Anything, "lead-1", mock.AnythingOfType("time.Time")).Return(nil)

	id, err := resolver.Resolve(context.Background(), "15551234567", "Ada Example", models.IngestModeNotify)
	require.NoError(t, err)
	assert.Equal(t, "lead-1", id)
	store.AssertExpectations(t)
}

func TestLeadResolver_HistoryReplayDoesNotTouch(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	existing := &models.Lead{ID: "lead-1", Phone: "15551234567"}
	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(existing, nil)

	id, err := resolver.Resolve(context.Background(), "15551234567", "", models.IngestModeAppend)
	require.NoError(t, err)
	assert.Equal(t, "lead-1", id)
	store.AssertNotCalled(t, "TouchLeadContact", mock.Anything, mock.Anything, mock.Anything)
}

func TestLeadResolver_CreatesStagedLead(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	pipeline := &models.Pipeline{ID: "pipe-1", Name: "Sales", IsDefault: true}
	stage := &models.PipelineStage{ID: "stage-1", PipelineID: "pipe-1", Name: "New", Position: 0}

	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(nil, nil)
	store.On("GetDefaultPipeline", mock.Anything).Return(pipeline, nil)
	store.On("GetFirstStage", mock.Anything, "pipe-1").Return(stage, nil)
	store.On("GetMaxKanbanOrder", mock.Anything, "stage-1").Return(4, nil)
	store.On("CreateLead", mock.Anything, mock.MatchedBy(func(lead *models.Lead) bool {
		return lead.Phone == "15551234567" &&
			lead.Name == "Ada Example" &&
			lead.Source == models.LeadSourceWhatsAppInbound &&
			lead.StageID != nil && *lead.StageID == "stage-1" &&
			lead.KanbanOrder == 5 &&
			lead.ID != ""
	})).Return(nil)

	id, err := resolver.Resolve(context.Background(), "15551234567", "Ada Example", models.IngestModeNotify)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	store.AssertExpectations(t)

	// New leads are not touched; creation itself is the first contact
	store.AssertNotCalled(t, "TouchLeadContact", mock.Anything, mock.Anything, mock.Anything)
}

func TestLeadResolver_CreatesUnstagedLeadWithoutPipeline(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(nil, nil)
	store.On("GetDefaultPipeline", mock.Anything).Return(nil, nil)
	store.On("CreateLead", mock.Anything, mock.MatchedBy(func(lead *models.Lead) bool {
		return lead.StageID == nil && lead.KanbanOrder == 0
	})).Return(nil)

	_, err := resolver.Resolve(context.Background(), "15551234567", "", models.IngestModeNotify)
	require.NoError(t, err)
	store.AssertNotCalled(t, "GetFirstStage", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "GetMaxKanbanOrder", mock.Anything, mock.Anything)
}

func TestLeadResolver_NameDefaultsToPhone(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(nil, nil)
	store.On("GetDefaultPipeline", mock.Anything).Return(nil, nil)
	store.On("CreateLead", mock.Anything, mock.MatchedBy(func(lead *models.Lead) bool {
		return lead.Name == "15551234567"
	})).Return(nil)

	_, err := resolver.Resolve(context.Background(), "15551234567", "", models.IngestModeNotify)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestLeadResolver_CreateRaceFallsBackToWinner(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	winner := &models.Lead{ID: "lead-winner", Phone: "15551234567"}
	uniqueErr := fmt.Errorf("insert lead: %w", fmt.Errorf("UNIQUE constraint failed: leads.phone"))

	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(nil, nil).Once()
	store.On("GetDefaultPipeline", mock.Anything).Return(nil, nil)
	store.On("CreateLead", mock.Anything, mock.Anything).Return(uniqueErr)
	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(winner, nil).Once()
	store.On("TouchLeadContact", mock.Anything, "lead-winner", mock.AnythingOfType("time.Time")).Return(nil)

	id, err := resolver.Resolve(context.Background(), "15551234567", "", models.IngestModeNotify)
	require.NoError(t, err)
	assert.Equal(t, "lead-winner", id)
	store.AssertExpectations(t)
}

func TestLeadResolver_CreateFailurePropagates(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(nil, nil)
	store.On("GetDefaultPipeline", mock.Anything).Return(nil, nil)
	store.On("CreateLead", mock.Anything, mock.Anything).Return(fmt.Errorf("disk full"))

	_, err := resolver.Resolve(context.Background(), "15551234567", "", models.IngestModeNotify)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create lead")
}

func TestLeadResolver_TouchFailurePropagates(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	existing := &models.Lead{ID: "lead-1", Phone: "15551234567"}
	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(existing, nil)
	store.On("TouchLeadContact", mock.Anything, "lead-1", mock.Anything).Return(fmt.Errorf("database is locked"))

	_, err := resolver.Resolve(context.Background(), "15551234567", "", models.IngestModeNotify)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bump lead contact time")
}

func TestLeadResolver_TouchTimestampIsRecent(t *testing.T) {
	store := &mockLeadStore{}
	resolver := NewLeadResolver(store, newTestLogger())

	var touchedAt time.Time
	existing := &models.Lead{ID: "lead-1", Phone: "15551234567"}
	store.On("GetLeadByPhone", mock.Anything, "15551234567").Return(existing, nil)
	store.On("TouchLeadContact", mock.Anything, "lead-1", mock.Anything).Run(func(args mock.Arguments) {
		touchedAt = args.Get(2).(time.Time)
	}).Return(nil)

	_, err := resolver.Resolve(context.Background(), "15551234567", "", models.IngestModeNotify)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), touchedAt, 5*time.Second)
}
