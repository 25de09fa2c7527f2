package constants

// Default transport configuration values
const (
	DefaultRestartInitialDelaySec = 1
	DefaultRestartMaxDelaySec     = 60
	DefaultReceiveTimeoutArg      = -1
	DefaultLineBufferBytes        = 1024 * 1024
)

// Default agent turn configuration values
const (
	DefaultTurnTimeoutSec   = 600
	DefaultAgentBinary      = "claude"
	DefaultPermissionMode   = "acceptEdits"
	DefaultModel            = "claude-sonnet-4-5"
	DefaultMaxBatchMessages = 50
)

// Default persistence configuration values
const (
	DefaultSessionFileName       = "sessions.json"
	DefaultDatabaseRetryAttempts = 3
	DefaultGroupCacheHours       = 24
	DefaultContactCacheHours     = 24
	DefaultRetentionDays         = 30
)

// Default server configuration values
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default attachment configuration values
const (
	DefaultMaxInlineImageBytes = 4 * 1024 * 1024
	DefaultAttachmentsDirName  = "attachments"
)

// Encryption settings
const (
	PBKDF2Iterations    = 100000
	EncryptionKeySize   = 32
	EncryptionSaltValue = "sigclaw-name-cache-salt-v1"
	MinSecretLength     = 16
)
