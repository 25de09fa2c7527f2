package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"sigclaw/internal/constants"
	"sigclaw/internal/models"
)

var (
	ErrMissingAccount     = models.ConfigError{Message: "missing Signal account number"}
	ErrMissingSessionPath = models.ConfigError{Message: "missing session store path"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Signal.Account == "" {
		return ErrMissingAccount
	}
	if c.Sessions.Path == "" {
		return ErrMissingSessionPath
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	switch c.Signal.ReceiveMode {
	case "", "process":
		c.Signal.ReceiveMode = "process"
	case "websocket":
		if c.Signal.WebsocketURL == "" {
			return models.ConfigError{Message: "websocket receive mode requires websocket_url"}
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown receive mode: %s", c.Signal.ReceiveMode)}
	}

	if c.Signal.CLIPath == "" {
		c.Signal.CLIPath = "signal-cli"
	}
	if c.Signal.RestartDelaySec <= 0 {
		c.Signal.RestartDelaySec = constants.DefaultRestartInitialDelaySec
	}
	if c.Signal.MaxDelaySec <= 0 {
		c.Signal.MaxDelaySec = constants.DefaultRestartMaxDelaySec
	}

	if c.Agent.Binary == "" {
		c.Agent.Binary = constants.DefaultAgentBinary
	}
	if c.Agent.Model == "" {
		c.Agent.Model = constants.DefaultModel
	}
	if c.Agent.PermissionMode == "" {
		c.Agent.PermissionMode = constants.DefaultPermissionMode
	}
	if c.Agent.TurnTimeoutSec <= 0 {
		c.Agent.TurnTimeoutSec = constants.DefaultTurnTimeoutSec
	}

	if c.Attachments.Dir == "" {
		c.Attachments.Dir = constants.DefaultAttachmentsDirName
	}
	if c.Attachments.SourceDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.Attachments.SourceDir = filepath.Join(home, ".local", "share", "signal-cli", "attachments")
		}
	}
	if c.Attachments.MaxInlineImageKB <= 0 {
		c.Attachments.MaxInlineImageKB = constants.DefaultMaxInlineImageBytes / 1024
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if account := os.Getenv("SIGCLAW_ACCOUNT"); account != "" {
		c.Signal.Account = account
	}
	if cli := os.Getenv("SIGCLAW_SIGNAL_CLI"); cli != "" {
		c.Signal.CLIPath = cli
	}
	if path := os.Getenv("SIGCLAW_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("SIGCLAW_SESSIONS_PATH"); path != "" {
		c.Sessions.Path = path
	}
	if model := os.Getenv("SIGCLAW_MODEL"); model != "" {
		c.Agent.Model = model
	}
	if port := os.Getenv("SIGCLAW_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}
