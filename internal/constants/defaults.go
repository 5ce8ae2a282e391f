package constants

// Default server configuration values
const (
	DefaultServerPort            = 8081
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultMaxBodyBytes          = 1024 * 1024
	DefaultRateLimitPerMinute    = 300
	DefaultCleanupIntervalHours  = 24
)

// Default contact cache lifetime
const (
	DefaultContactCacheHours = 24
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
)

// Default dispatch configuration values
const (
	DefaultDispatchTimeoutSec  = 10
	DefaultDispatchMaxAttempts = 3
)

// Default campaign monitor cadence
const (
	DefaultMonitorCheckIntervalMin = 5
	DefaultStaleThresholdMin       = 60
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Encryption key derivation salts. Changing either value invalidates
// every encrypted column already on disk, so they are fixed per schema
// generation.
const (
	EncryptionSalt       = "whatscrm-db-encryption-v1"
	EncryptionLookupSalt = "whatscrm-lookup-v1"
)
