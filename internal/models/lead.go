package models

import "time"

// LeadSourceWhatsAppInbound marks leads auto-created by the ingest
// pipeline on first contact from an unknown phone.
const LeadSourceWhatsAppInbound = "whatsapp_inbound"

// Lead is a CRM contact resolved by phone number. StageID is nil when no
// default pipeline is configured; KanbanOrder is a display hint within a
// stage, not a uniqueness invariant.
type Lead struct {
	ID              string
	Phone           string
	Name            string
	Source          string
	StageID         *string
	KanbanOrder     int
	LastContactedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Pipeline groups the kanban stages leads move through.
type Pipeline struct {
	ID        string
	Name      string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PipelineStage is one column of a pipeline, ordered by Position.
type PipelineStage struct {
	ID         string
	PipelineID string
	Name       string
	Position   int
	CreatedAt  time.Time
}
