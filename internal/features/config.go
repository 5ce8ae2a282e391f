package features

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables recognized by LoadFromEnvironment.
const (
	envFlagPrefix       = "WHATSCRM_FEATURE_"
	envPercentageSuffix = "_PERCENTAGE"
	envEnableAll        = "WHATSCRM_FEATURES_ENABLE_ALL"
	envDisableAll       = "WHATSCRM_FEATURES_DISABLE_ALL"
)

// FlagsConfig is the feature block of the service configuration file.
type FlagsConfig struct {
	Flags       map[string]bool `json:"flags" mapstructure:"flags"`
	Percentages map[string]int  `json:"percentages" mapstructure:"percentages"`
	EnableAll   bool            `json:"enable_all" mapstructure:"enable_all"`
	DisableAll  bool            `json:"disable_all" mapstructure:"disable_all"`
}

// DefaultFlagsConfig returns an empty override set.
func DefaultFlagsConfig() FlagsConfig {
	return FlagsConfig{
		Flags:       make(map[string]bool),
		Percentages: make(map[string]int),
	}
}

// ValidateConfig rejects override sets that could not be applied.
func ValidateConfig(config FlagsConfig) error {
	if config.EnableAll && config.DisableAll {
		return fmt.Errorf("enable_all and disable_all are mutually exclusive")
	}
	for name, pct := range config.Percentages {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("flag %s: %w: %d", name, ErrInvalidPercentage, pct)
		}
	}
	return nil
}

// LoadFromConfig overlays file-based overrides onto the registry.
// Unknown flag names are registered rather than rejected, so a config
// file can gate code that ships in a later build.
func (r *Registry) LoadFromConfig(config FlagsConfig) error {
	if err := ValidateConfig(config); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for name, enabled := range config.Flags {
		r.upsertLocked(name, enabled, "Declared in the config file", "config", now)
	}
	for name, pct := range config.Percentages {
		if f, ok := r.flags[name]; ok {
			f.Percentage = pct
			f.UpdatedAt = now
		}
	}
	switch {
	case config.EnableAll:
		r.setAllLocked(true, now)
	case config.DisableAll:
		r.setAllLocked(false, now)
	}
	return nil
}

// LoadFromEnvironment overlays environment overrides onto the registry.
// WHATSCRM_FEATURE_<NAME>=true|false toggles one flag and
// WHATSCRM_FEATURE_<NAME>_PERCENTAGE=0..100 adjusts its rollout; names
// are lowercased, so live_feed reads WHATSCRM_FEATURE_LIVE_FEED. The
// ENABLE_ALL and DISABLE_ALL switches flip everything at once and win
// over individual variables. Malformed values are ignored.
func (r *Registry) LoadFromEnvironment() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if all, ok := boolEnv(envEnableAll); ok && all {
		r.setAllLocked(true, now)
		return
	}
	if all, ok := boolEnv(envDisableAll); ok && all {
		r.setAllLocked(false, now)
		return
	}

	for _, kv := range os.Environ() {
		key, value, found := strings.Cut(kv, "=")
		if !found || !strings.HasPrefix(key, envFlagPrefix) {
			continue
		}
		r.applyEnvLocked(strings.TrimPrefix(key, envFlagPrefix), value, now)
	}
}

// applyEnvLocked interprets one WHATSCRM_FEATURE_ variable. Callers
// hold r.mu.
func (r *Registry) applyEnvLocked(suffix, value string, now time.Time) {
	if rest, ok := strings.CutSuffix(suffix, envPercentageSuffix); ok {
		name := strings.ToLower(rest)
		pct, err := strconv.Atoi(value)
		if err != nil || pct < 0 || pct > 100 {
			return
		}
		if f, ok := r.flags[name]; ok {
			f.Percentage = pct
			f.UpdatedAt = now
		}
		return
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return
	}
	r.upsertLocked(strings.ToLower(suffix), enabled, "Declared in the environment", "env", now)
}

// upsertLocked sets a flag's enabled state, creating the flag when
// absent. Callers hold r.mu.
func (r *Registry) upsertLocked(name string, enabled bool, description, tag string, now time.Time) {
	if f, ok := r.flags[name]; ok {
		f.Enabled = enabled
		f.UpdatedAt = now
		return
	}
	r.flags[name] = &Flag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
		Tags:        []string{tag},
		Percentage:  100,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// setAllLocked flips every flag at once. Callers hold r.mu.
func (r *Registry) setAllLocked(enabled bool, now time.Time) {
	for _, f := range r.flags {
		f.Enabled = enabled
		f.UpdatedAt = now
	}
}

func boolEnv(key string) (value, ok bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return parsed, true
}

// Snapshot exports the registry as a FlagsConfig suitable for writing
// back to a config file. Full-rollout percentages are omitted.
func (r *Registry) Snapshot() FlagsConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config := DefaultFlagsConfig()
	for name, f := range r.flags {
		config.Flags[name] = f.Enabled
		if f.Percentage != 100 {
			config.Percentages[name] = f.Percentage
		}
	}
	return config
}

// EnvironmentOverrides lists the feature-related environment variables
// currently set, for startup logging.
func EnvironmentOverrides() map[string]string {
	overrides := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, found := strings.Cut(kv, "=")
		if found && strings.HasPrefix(key, envFlagPrefix) {
			overrides[key] = value
		}
	}
	for _, key := range []string{envEnableAll, envDisableAll} {
		if value := os.Getenv(key); value != "" {
			overrides[key] = value
		}
	}
	return overrides
}
