package service

import (
	"fmt"
	"sync"

	"whatscrm/internal/models"
)

// Connection is one registered WhatsApp number feeding the pipeline.
type Connection struct {
	NumberID       string
	Kind           models.ConnectionKind
	ConnectionType string
	DisplayName    string
	VerifyToken    string
}

// ConnectionRegistry maps provider identifiers to connection records.
// Cloud numbers are configured statically; QR numbers may also register
// at runtime when the bridge pairs.
type ConnectionRegistry struct {
	byNumberID map[string]Connection
	orderedIDs []string
	mu         sync.RWMutex
}

// NewConnectionRegistry builds a registry from configuration
func NewConnectionRegistry(configs []models.ConnectionConfig) (*ConnectionRegistry, error) {
	r := &ConnectionRegistry{
		byNumberID: make(map[string]Connection),
		orderedIDs: make([]string, 0, len(configs)),
	}

	for _, cfg := range configs {
		if err := ValidateNumberID(cfg.NumberID); err != nil {
			return nil, fmt.Errorf("invalid connection number id: %w", err)
		}

		kind := models.ConnectionKind(cfg.Kind)
		if kind != models.ConnectionKindAPI && kind != models.ConnectionKindQR {
			return nil, fmt.Errorf("invalid connection kind %q for number %s", cfg.Kind, cfg.NumberID)
		}

		if _, exists := r.byNumberID[cfg.NumberID]; exists {
			return nil, fmt.Errorf("duplicate connection number id: %s", cfg.NumberID)
		}

		connectionType := cfg.ConnectionType
		if connectionType == "" {
			connectionType = string(kind)
		}

		r.byNumberID[cfg.NumberID] = Connection{
			NumberID:       cfg.NumberID,
			Kind:           kind,
			ConnectionType: connectionType,
			DisplayName:    cfg.DisplayName,
			VerifyToken:    cfg.VerifyToken,
		}
		r.orderedIDs = append(r.orderedIDs, cfg.NumberID)
	}

	return r, nil
}

// Lookup resolves a provider identifier to its connection record
func (r *ConnectionRegistry) Lookup(numberID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byNumberID[numberID]
	return conn, ok
}

// IsKnown checks whether a number id is registered
func (r *ConnectionRegistry) IsKnown(numberID string) bool {
	_, ok := r.Lookup(numberID)
	return ok
}

// RegisterQR records a bridge-paired number at runtime. Re-pairing the
// same number updates its display name and keeps its position.
func (r *ConnectionRegistry) RegisterQR(numberID, displayName string) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byNumberID[numberID]; ok {
		existing.DisplayName = displayName
		r.byNumberID[numberID] = existing
		return existing
	}

	conn := Connection{
		NumberID:       numberID,
		Kind:           models.ConnectionKindQR,
		ConnectionType: string(models.ConnectionKindQR),
		DisplayName:    displayName,
	}
	r.byNumberID[numberID] = conn
	r.orderedIDs = append(r.orderedIDs, numberID)
	return conn
}

// MatchesVerifyToken reports whether the subscribe token belongs to any
// registered cloud connection
func (r *ConnectionRegistry) MatchesVerifyToken(token string) bool {
	if token == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.byNumberID {
		if conn.Kind == models.ConnectionKindAPI && conn.VerifyToken != "" && conn.VerifyToken == token {
			return true
		}
	}
	return false
}

// NumberIDs returns all registered number ids in registration order
func (r *ConnectionRegistry) NumberIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.orderedIDs))
	copy(ids, r.orderedIDs)
	return ids
}

// Count returns the number of registered connections
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byNumberID)
}
