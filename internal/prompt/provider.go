// Package prompt assembles the system prompt handed to the agent
// runtime, varying by conversation type.
package prompt

import (
	"strings"

	"sigclaw/internal/models"
)

const dmTemplate = `You are {{botName}}, a personal assistant reachable over Signal.
You are chatting one-on-one with {{ownerName}}.
Messages arrive as "[HH:MM] Name (+phone): text" lines; reply with the message body only, no timestamp or name prefix.
Keep replies concise and conversational. Plain text only, no markdown.`

const groupTemplate = `You are {{botName}}, a personal assistant reachable over Signal.
You are in a group chat named "{{groupName}}" with {{ownerName}} and others.
Messages arrive as "[HH:MM] Name (+phone): text" lines; a single reply may address several of them.
Reply with the message body only, no timestamp or name prefix.
Keep replies concise and conversational. Plain text only, no markdown.`

// Variables are the identity values substituted into the templates
type Variables struct {
	BotName   string
	OwnerName string
	GroupName string
}

// Provider renders system prompts from the built-in templates
type Provider struct {
	botName   string
	ownerName string
}

// NewProvider creates a provider with the configured identity values
func NewProvider(botName, ownerName string) *Provider {
	if botName == "" {
		botName = "Assistant"
	}
	return &Provider{botName: botName, ownerName: ownerName}
}

// SystemPrompt renders the template for the conversation type. The
// group name only appears in group prompts.
func (p *Provider) SystemPrompt(convType models.ConversationType, groupName string) string {
	vars := Variables{
		BotName:   p.botName,
		OwnerName: p.ownerName,
		GroupName: groupName,
	}
	if convType == models.ConversationGroup {
		return render(groupTemplate, vars)
	}
	return render(dmTemplate, vars)
}

func render(template string, vars Variables) string {
	replacer := strings.NewReplacer(
		"{{botName}}", vars.BotName,
		"{{ownerName}}", orDefault(vars.OwnerName, "the user"),
		"{{groupName}}", orDefault(vars.GroupName, "this group"),
	)
	return replacer.Replace(template)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
