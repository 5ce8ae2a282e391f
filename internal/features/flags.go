// Package features provides runtime feature toggles for the service.
// Flags are seeded from compiled-in defaults, then overlaid by the
// config file and finally by environment variables, so an operator can
// switch off a misbehaving subsystem without rebuilding or redeploying.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"
)

// Sentinel errors returned by registry operations.
var (
	ErrFlagNotFound      = errors.New("feature flag not found")
	ErrFlagExists        = errors.New("feature flag already exists")
	ErrInvalidPercentage = errors.New("rollout percentage out of range")
)

// Flag is a single named toggle with rollout metadata.
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
	Percentage  int       `json:"percentage,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// clone returns a copy whose Tags slice does not alias the original.
func (f *Flag) clone() *Flag {
	c := *f
	if f.Tags != nil {
		c.Tags = append([]string(nil), f.Tags...)
	}
	return &c
}

func (f *Flag) hasAnyTag(tags []string) bool {
	for _, want := range tags {
		if slices.Contains(f.Tags, want) {
			return true
		}
	}
	return false
}

// Flag names. The string values double as config-file keys and as the
// <NAME> portion of WHATSCRM_FEATURE_<NAME> environment overrides.
const (
	FlagLiveFeed           = "live_feed"
	FlagDistributedTracing = "distributed_tracing"
	FlagCircuitBreaker     = "circuit_breaker"
	FlagDispatchRetries    = "dispatch_retries"

	FlagHistoryBackfill = "history_backfill"
	FlagCampaignMonitor = "campaign_monitor"
	FlagContactRefresh  = "contact_refresh"

	FlagRateLimiting      = "rate_limiting"
	FlagAuditLogging      = "audit_logging"
	FlagRequestValidation = "request_validation"

	FlagLeadAutoMerge    = "lead_auto_merge"
	FlagOptimizedQueries = "optimized_queries"
	FlagMessageBatching  = "message_batching"
)

type flagSeed struct {
	name        string
	description string
	enabled     bool
	tags        []string
}

// Experimental flags ship disabled; everything else defaults on.
var builtinFlags = []flagSeed{
	{FlagLiveFeed, "Broadcast conversation updates over the websocket feed", true, []string{"core", "realtime"}},
	{FlagDistributedTracing, "Export OpenTelemetry traces for request handling", true, []string{"core", "observability"}},
	{FlagCircuitBreaker, "Gate integration dispatch behind circuit breakers", true, []string{"core", "reliability"}},
	{FlagDispatchRetries, "Retry failed integration deliveries with backoff", true, []string{"core", "reliability"}},

	{FlagHistoryBackfill, "Archive conversation history delivered after pairing", true, []string{"ingestion"}},
	{FlagCampaignMonitor, "Sweep campaigns for recipients stuck without receipts", true, []string{"ingestion", "reliability"}},
	{FlagContactRefresh, "Periodically refresh contact names from the provider", true, []string{"ingestion"}},

	{FlagRateLimiting, "Throttle API clients by source address", true, []string{"security"}},
	{FlagAuditLogging, "Log authentication failures with request context", true, []string{"security", "compliance"}},
	{FlagRequestValidation, "Reject oversized or malformed request bodies", true, []string{"security", "validation"}},

	{FlagLeadAutoMerge, "Merge leads when a second channel maps to the same phone", false, []string{"experimental"}},
	{FlagOptimizedQueries, "Use denormalized queries for conversation listings", false, []string{"experimental", "performance"}},
	{FlagMessageBatching, "Batch message inserts inside a single transaction", false, []string{"experimental", "performance"}},
}

// Registry holds the flag set behind an RWMutex. Reads vastly outnumber
// writes; IsEnabled sits on the webhook hot path.
type Registry struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewRegistry returns an empty registry. Call SeedDefaults to populate
// the built-in flag set.
func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]*Flag)}
}

// SeedDefaults registers every built-in flag that is not already
// present. Flags an operator has already toggled keep their state.
func (r *Registry) SeedDefaults() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, seed := range builtinFlags {
		if _, ok := r.flags[seed.name]; ok {
			continue
		}
		r.flags[seed.name] = &Flag{
			Name:        seed.name,
			Enabled:     seed.enabled,
			Description: seed.description,
			Tags:        seed.tags,
			Percentage:  100,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
}

// IsEnabled reports whether a flag is on, ignoring any partial rollout
// percentage. Unknown flags are off.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flags[name]
	return ok && f.Enabled
}

// IsEnabledFor reports whether a flag is on for one actor, honoring the
// rollout percentage. Actor keys are bucketed deterministically so a
// lead or conversation stays in the same cohort across restarts.
func (r *Registry) IsEnabledFor(name, actorKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flags[name]
	if !ok || !f.Enabled {
		return false
	}
	return rolloutBucket(name, actorKey) < f.Percentage
}

// rolloutBucket hashes flag and actor together so a partial rollout of
// one flag does not select the same cohort for every other flag.
func rolloutBucket(flagName, actorKey string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(flagName + ":" + actorKey))
	return int(h.Sum32() % 100)
}

// Enable turns a flag on.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable turns a flag off.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flags[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlagNotFound, name)
	}
	f.Enabled = enabled
	f.UpdatedAt = time.Now()
	return nil
}

// SetPercentage sets the rollout percentage (0 to 100) consulted by
// IsEnabledFor.
func (r *Registry) SetPercentage(name string, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidPercentage, percentage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flags[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlagNotFound, name)
	}
	f.Percentage = percentage
	f.UpdatedAt = time.Now()
	return nil
}

// Define registers a flag outside the built-in set.
func (r *Registry) Define(name, description string, enabled bool, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[name]; ok {
		return fmt.Errorf("%w: %s", ErrFlagExists, name)
	}
	now := time.Now()
	r.flags[name] = &Flag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
		Tags:        tags,
		Percentage:  100,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

// Remove deletes a flag.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[name]; !ok {
		return fmt.Errorf("%w: %s", ErrFlagNotFound, name)
	}
	delete(r.flags, name)
	return nil
}

// Get returns a copy of one flag.
func (r *Registry) Get(name string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flags[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlagNotFound, name)
	}
	return f.clone(), nil
}

// List returns copies of all flags sorted by name. With tags given,
// only flags carrying at least one of them are included.
func (r *Registry) List(tags ...string) []*Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Flag, 0, len(r.flags))
	for _, f := range r.flags {
		if len(tags) > 0 && !f.hasAnyTag(tags) {
			continue
		}
		result = append(result, f.clone())
	}
	slices.SortFunc(result, func(a, b *Flag) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result
}

// ExportJSON renders the flag set as indented JSON, sorted by name.
func (r *Registry) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r.List(), "", "  ")
}

// ImportJSON merges flags from an ExportJSON document. Entries without
// a name are skipped and out-of-range percentages reset to 100.
func (r *Registry) ImportJSON(data []byte) error {
	var flags []*Flag
	if err := json.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("failed to parse flag export: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range flags {
		if f.Name == "" {
			continue
		}
		if f.Percentage < 0 || f.Percentage > 100 {
			f.Percentage = 100
		}
		r.flags[f.Name] = f
	}
	return nil
}

// defaultRegistry is the process-wide flag set. cmd and internal
// consult it through the package-level helpers.
var defaultRegistry = NewRegistry()

// Initialize seeds the process-wide registry with the built-in flags.
func Initialize() {
	defaultRegistry.SeedDefaults()
}

// Default returns the process-wide registry, for loading overrides.
func Default() *Registry {
	return defaultRegistry
}

// IsEnabled reports whether a flag is on in the process-wide registry.
func IsEnabled(name string) bool {
	return defaultRegistry.IsEnabled(name)
}
