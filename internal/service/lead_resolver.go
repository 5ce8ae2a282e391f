package service

import (
	"context"
	"fmt"
	"time"

	"whatscrm/internal/database"
	"whatscrm/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type LeadStore interface {
	GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error)
	CreateLead(ctx context.Context, lead *models.Lead) error
	TouchLeadContact(ctx context.Context, leadID string, at time.Time) error
	GetDefaultPipeline(ctx context.Context) (*models.Pipeline, error)
	GetFirstStage(ctx context.Context, pipelineID string) (*models.PipelineStage, error)
	GetMaxKanbanOrder(ctx context.Context, stageID string) (int, error)
}

// LeadResolver finds or creates the lead behind an inbound contact phone.
type LeadResolver struct {
	store  LeadStore
	logger *logrus.Logger
}

func NewLeadResolver(store LeadStore, logger *logrus.Logger) *LeadResolver {
	return &LeadResolver{
		store:  store,
		logger: logger,
	}
}

// Resolve returns the lead id for a phone number, creating the lead on
// first contact. Live events bump lastContactedAt; history replay does
// not, so recency ordering is never distorted by old messages.
func (r *LeadResolver) Resolve(ctx context.Context, phone, displayName string, mode models.IngestMode) (string, error) {
	lead, err := r.store.GetLeadByPhone(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("failed to look up lead: %w", err)
	}
	if lead != nil {
		if err := r.touchIfLive(ctx, lead.ID, mode); err != nil {
			return "", err
		}
		return lead.ID, nil
	}

	name := displayName
	if name == "" {
		name = phone
	}

	newLead := &models.Lead{
		ID:     uuid.New().String(),
		Phone:  phone,
		Name:   name,
		Source: models.LeadSourceWhatsAppInbound,
	}

	if err := r.applyDefaultPlacement(ctx, newLead); err != nil {
		return "", err
	}

	if err := r.store.CreateLead(ctx, newLead); err != nil {
		if database.IsUniqueConstraint(err) {
			// A concurrent inbound message created the lead first
			existing, lookupErr := r.store.GetLeadByPhone(ctx, phone)
			if lookupErr == nil && existing != nil {
				if err := r.touchIfLive(ctx, existing.ID, mode); err != nil {
					return "", err
				}
				return existing.ID, nil
			}
		}
		return "", fmt.Errorf("failed to create lead: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"leadId": newLead.ID,
		"phone":  SanitizePhoneNumber(phone),
		"staged": newLead.StageID != nil,
	}).Info("Created lead from inbound message")

	return newLead.ID, nil
}

func (r *LeadResolver) touchIfLive(ctx context.Context, leadID string, mode models.IngestMode) error {
	if mode != models.IngestModeNotify {
		return nil
	}
	if err := r.store.TouchLeadContact(ctx, leadID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to bump lead contact time: %w", err)
	}
	return nil
}

// applyDefaultPlacement puts a new lead at the end of the default
// pipeline's first stage. Without a default pipeline the lead is created
// unstaged; kanban order ties under concurrent creates are tolerated.
func (r *LeadResolver) applyDefaultPlacement(ctx context.Context, lead *models.Lead) error {
	pipeline, err := r.store.GetDefaultPipeline(ctx)
	if err != nil {
		return fmt.Errorf("failed to look up default pipeline: %w", err)
	}
	if pipeline == nil {
		return nil
	}

	stage, err := r.store.GetFirstStage(ctx, pipeline.ID)
	if err != nil {
		return fmt.Errorf("failed to look up first stage: %w", err)
	}
	if stage == nil {
		return nil
	}

	maxOrder, err := r.store.GetMaxKanbanOrder(ctx, stage.ID)
	if err != nil {
		return fmt.Errorf("failed to compute kanban order: %w", err)
	}

	lead.StageID = &stage.ID
	lead.KanbanOrder = maxOrder + 1
	return nil
}
