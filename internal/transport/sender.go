package transport

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"sigclaw/internal/models"
)

// Sender delivers an outbound reply to a conversation
type Sender interface {
	Send(ctx context.Context, conversationID string, convType models.ConversationType, text string) error
}

// CLISender sends replies through the transport CLI. The message body
// goes over stdin so arbitrary text never hits the argument list.
type CLISender struct {
	CLIPath string
	Account string
}

// Send delivers text to a direct recipient or a group
func (s *CLISender) Send(ctx context.Context, conversationID string, convType models.ConversationType, text string) error {
	cmd := exec.CommandContext(ctx, s.CLIPath, sendArgs(s.Account, conversationID, convType)...)
	cmd.Stdin = strings.NewReader(text)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("send to %s failed: %w: %s", conversationID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func sendArgs(account, conversationID string, convType models.ConversationType) []string {
	args := []string{"-a", account, "send", "--message-from-stdin"}
	if convType == models.ConversationGroup {
		return append(args, "-g", conversationID)
	}
	return append(args, conversationID)
}
