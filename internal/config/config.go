package config

import (
	"encoding/json"
	"fmt"
	"os"

	"whatscrm/internal/constants"
	"whatscrm/internal/models"
	"whatscrm/internal/security"
	"whatscrm/internal/validation"
)

var (
	ErrMissingDBPath = models.ConfigError{Message: "missing database path"}
	ErrNoConnections = models.ConfigError{Message: "connections array is required and must contain at least one connection"}
)

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	// Overrides land first so a secret supplied via environment
	// satisfies the production checks.
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	// At least one number must feed the pipeline
	if len(c.Connections) == 0 {
		return ErrNoConnections
	}

	// Validate each connection
	numberIDs := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.NumberID == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty number id in connection %d", i)}
		}

		kind := models.ConnectionKind(conn.Kind)
		if kind != models.ConnectionKindAPI && kind != models.ConnectionKindQR {
			return models.ConfigError{Message: fmt.Sprintf("connection %s has invalid kind %q (must be %q or %q)",
				conn.NumberID, conn.Kind, models.ConnectionKindAPI, models.ConnectionKindQR)}
		}

		// Check for duplicates
		if numberIDs[conn.NumberID] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate connection number id: %s", conn.NumberID)}
		}
		numberIDs[conn.NumberID] = true
	}

	// The bridge must point at one of the configured qr connections
	if c.Bridge.Enabled {
		if c.Bridge.StorePath == "" {
			return models.ConfigError{Message: "bridge store path is required when the bridge is enabled"}
		}
		if c.Bridge.NumberID == "" {
			return models.ConfigError{Message: "bridge number id is required when the bridge is enabled"}
		}
		conn := c.ConnectionByNumberID(c.Bridge.NumberID)
		if conn == nil {
			return models.ConfigError{Message: fmt.Sprintf("bridge number id %s does not match any configured connection", c.Bridge.NumberID)}
		}
		if models.ConnectionKind(conn.Kind) != models.ConnectionKindQR {
			return models.ConfigError{Message: fmt.Sprintf("bridge number id %s must reference a %q connection", c.Bridge.NumberID, models.ConnectionKindQR)}
		}
	}

	// Dispatch targets are dialed with the configured secret, so reject
	// unusable URLs before the first delivery attempt
	targetNames := make(map[string]bool)
	for i, target := range c.Dispatch.Targets {
		if err := validation.ValidateStringLength(target.Name, "dispatch target name", 1, 64); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("dispatch target %d: %v", i, err)}
		}
		if targetNames[target.Name] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate dispatch target name: %s", target.Name)}
		}
		targetNames[target.Name] = true

		if err := validation.ValidateDispatchURL(target.URL, c.Dispatch.AllowLoopback); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("dispatch target %s: %v", target.Name, err)}
		}
	}

	// Set default server configuration if not provided
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if err := validation.ValidateNumericRange(c.Server.Port, "server port", 1, 65535); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if c.Server.RateLimitPerMinute <= 0 {
		c.Server.RateLimitPerMinute = constants.DefaultRateLimitPerMinute
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}

	if c.Dispatch.TimeoutSec <= 0 {
		c.Dispatch.TimeoutSec = constants.DefaultDispatchTimeoutSec
	}
	if err := validation.ValidateTimeout(c.Dispatch.TimeoutSec, "dispatch timeout"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if c.Dispatch.MaxAttempts <= 0 {
		c.Dispatch.MaxAttempts = constants.DefaultDispatchMaxAttempts
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Monitor.CheckIntervalMin <= 0 {
		c.Monitor.CheckIntervalMin = constants.DefaultMonitorCheckIntervalMin
	}
	if c.Monitor.StaleThresholdMin <= 0 {
		c.Monitor.StaleThresholdMin = constants.DefaultStaleThresholdMin
	}

	// A retention of zero disables the purge entirely
	if c.RetentionDays != 0 {
		if err := validation.ValidateRetentionDays(c.RetentionDays); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}

	return nil
}

// applyEnvironmentOverrides lets secrets come from the environment so
// they can stay out of the config file.
func applyEnvironmentOverrides(c *models.Config) {
	if secret := os.Getenv("WHATSCRM_WEBHOOK_SECRET"); secret != "" {
		c.Server.WebhookSecret = secret
	}
	if secret := os.Getenv("WHATSCRM_DISPATCH_SECRET"); secret != "" {
		c.Dispatch.Secret = secret
	}
	if key := os.Getenv("WHATSCRM_METRICS_API_KEY"); key != "" {
		c.Server.MetricsAPIKey = key
	}

	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
}

// validateSecurity enforces the rules that only matter once the service
// faces real traffic. They key off WHATSCRM_ENV=production so local
// setups stay frictionless.
func validateSecurity(c *models.Config) error {
	if os.Getenv("WHATSCRM_ENV") != "production" {
		if c.Server.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set WHATSCRM_WEBHOOK_SECRET environment variable for security.\n")
		}
		return nil
	}

	if c.Server.WebhookSecret == "" {
		return models.ConfigError{Message: "webhook secret is required in production (set WHATSCRM_WEBHOOK_SECRET environment variable)"}
	}
	if len(c.Server.WebhookSecret) < 32 {
		return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
	}

	// Unsigned dispatch deliveries are indistinguishable from forgeries
	// downstream, so a secret is required once targets exist
	if len(c.Dispatch.Targets) > 0 && c.Dispatch.Secret == "" {
		return models.ConfigError{Message: "dispatch secret is required in production when dispatch targets are configured (set WHATSCRM_DISPATCH_SECRET environment variable)"}
	}

	if c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}

	return nil
}
