package models

// Config holds the application configuration
type Config struct {
	Signal        SignalConfig   `json:"signal"`
	Agent         AgentConfig    `json:"agent"`
	Database      DatabaseConfig `json:"database"`
	Sessions      SessionsConfig `json:"sessions"`
	Attachments   AttachmentsConfig `json:"attachments"`
	Server        ServerConfig   `json:"server"`
	Tracing       TracingConfig  `json:"tracing"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retentionDays"`
}

// SignalConfig holds transport related configuration. Account is the
// bot's own number; messages it originates are filtered before routing.
type SignalConfig struct {
	Account         string `json:"account"`
	CLIPath         string `json:"cli_path"`
	ReceiveMode     string `json:"receive_mode"` // "process" or "websocket"
	WebsocketURL    string `json:"websocket_url"`
	RestartDelaySec int    `json:"restartDelaySec"`
	MaxDelaySec     int    `json:"maxDelaySec"`
}

// AgentConfig holds agent runtime invocation configuration
type AgentConfig struct {
	Binary         string   `json:"binary"`
	Model          string   `json:"model"`
	AllowedTools   []string `json:"allowed_tools"`
	PermissionMode string   `json:"permission_mode"`
	TurnTimeoutSec int      `json:"turnTimeoutSec"`
	WorkingDir     string   `json:"working_dir"`
	BotName        string   `json:"bot_name"`
	OwnerName      string   `json:"owner_name"`
}

// DatabaseConfig holds the name-cache database configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SessionsConfig holds session persistence configuration
type SessionsConfig struct {
	Path string `json:"path"`
}

// AttachmentsConfig holds attachment handling configuration. SourceDir
// is where the transport CLI writes received attachments.
type AttachmentsConfig struct {
	SourceDir          string `json:"source_dir"`
	Dir                string `json:"dir"`
	MaxInlineImageKB   int    `json:"maxInlineImageKB"`
	InlineImagesEnable bool   `json:"inlineImages"`
}

// ServerConfig holds the status HTTP server configuration
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// TracingConfig mirrors internal/tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
