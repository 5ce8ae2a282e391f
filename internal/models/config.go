package models

// Config is the root of the JSON configuration file.
type Config struct {
	Server        ServerConfig       `json:"server"`
	Connections   []ConnectionConfig `json:"connections"`
	Database      DatabaseConfig     `json:"database"`
	Dispatch      DispatchConfig     `json:"dispatch"`
	Bridge        BridgeConfig       `json:"bridge"`
	Retry         RetryConfig        `json:"retry"`
	Tracing       TracingConfig      `json:"tracing"`
	Features      FeaturesConfig     `json:"features"`
	Monitor       MonitorConfig      `json:"monitor"`
	LogLevel      string             `json:"log_level"`
	RetentionDays int                `json:"retentionDays"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                 int    `json:"port"`
	WebhookSecret        string `json:"webhook_secret"`
	MetricsAPIKey        string `json:"metrics_api_key"`
	RateLimitPerMinute   int    `json:"rateLimitPerMinute"`
	MaxBodyBytes         int64  `json:"maxBodyBytes"`
	CleanupIntervalHours int    `json:"cleanupIntervalHours"`
}

// ConnectionConfig describes one WhatsApp number feeding the CRM.
// Cloud-API numbers are identified by the provider's phone_number_id;
// QR-bridged numbers by the session name the bridge pairs under.
type ConnectionConfig struct {
	NumberID       string `json:"number_id"`
	Kind           string `json:"kind"` // "api" or "qr"
	ConnectionType string `json:"connection_type,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	VerifyToken    string `json:"verify_token,omitempty"`
}

// DatabaseConfig locates the sqlite file.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// DispatchConfig holds outbound integration webhook settings
type DispatchConfig struct {
	Targets       []DispatchTarget `json:"targets"`
	Secret        string           `json:"secret"`
	TimeoutSec    int              `json:"timeout_sec"`
	MaxAttempts   int              `json:"max_attempts"`
	AllowLoopback bool             `json:"allow_loopback,omitempty"`
}

// DispatchTarget is one downstream integration endpoint
type DispatchTarget struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BridgeConfig holds the QR-paired client settings
type BridgeConfig struct {
	Enabled     bool   `json:"enabled"`
	StorePath   string `json:"store_path"`
	NumberID    string `json:"number_id"`
	HistorySync bool   `json:"history_sync"`
	LogLevel    string `json:"log_level,omitempty"`
}

// RetryConfig shapes the backoff used for database opens and dispatch
// deliveries.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// FeaturesConfig carries feature flag overrides from the config file
type FeaturesConfig struct {
	Flags map[string]bool `json:"flags,omitempty"`
}

// MonitorConfig controls the campaign delivery monitor sweep
type MonitorConfig struct {
	CheckIntervalMin  int `json:"check_interval_min"`
	StaleThresholdMin int `json:"stale_threshold_min"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

func (c *Config) ConnectionByNumberID(numberID string) *ConnectionConfig {
	for i := range c.Connections {
		if c.Connections[i].NumberID == numberID {
			return &c.Connections[i]
		}
	}
	return nil
}
