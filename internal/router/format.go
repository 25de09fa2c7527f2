package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sigclaw/internal/attachments"
	"sigclaw/internal/models"

	"github.com/sirupsen/logrus"
)

// NameResolver resolves display names for senders and groups
type NameResolver interface {
	GetGroupName(ctx context.Context, groupID string) string
	GetContactName(ctx context.Context, phoneNumber, envelopeName string) string
}

// AttachmentProcessor stores inbound attachments and classifies them
type AttachmentProcessor interface {
	Process(conversationID string, sentAt time.Time, att models.Attachment) (*attachments.Result, error)
}

// Formatter turns parsed messages into the formatted entries queued in
// mailboxes and renders drained batches into the agent's prompt text.
type Formatter struct {
	names       NameResolver
	attachments AttachmentProcessor
	logger      *logrus.Logger
}

// NewFormatter creates a formatter; names and attachments may be nil,
// in which case raw ids are used and attachments stay placeholder-only
func NewFormatter(names NameResolver, attachments AttachmentProcessor, logger *logrus.Logger) *Formatter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Formatter{names: names, attachments: attachments, logger: logger}
}

// Format builds the mailbox entry for one parsed message
func (f *Formatter) Format(ctx context.Context, msg *models.ParsedMessage) models.FormattedMessage {
	formatted := models.FormattedMessage{
		Timestamp:   msg.Timestamp,
		SenderName:  msg.SenderName,
		SenderPhone: msg.SenderID,
		Text:        f.bodyText(msg),
	}

	if f.names != nil {
		formatted.SenderName = f.names.GetContactName(ctx, msg.SenderID, msg.SenderName)
	} else if formatted.SenderName == "" {
		formatted.SenderName = msg.SenderID
	}

	f.applyAttachments(msg, &formatted)
	return formatted
}

func (f *Formatter) bodyText(msg *models.ParsedMessage) string {
	if msg.Variant == models.VariantReaction && msg.Reaction != nil {
		if msg.Reaction.IsRemove {
			return fmt.Sprintf("removed their %s reaction from an earlier message", msg.Reaction.Emoji)
		}
		return fmt.Sprintf("reacted %s to an earlier message", msg.Reaction.Emoji)
	}

	text := msg.Text
	if msg.Quote != nil && msg.Quote.Text != "" {
		text = fmt.Sprintf("(replying to %q) %s", msg.Quote.Text, text)
	}
	return text
}

func (f *Formatter) applyAttachments(msg *models.ParsedMessage, formatted *models.FormattedMessage) {
	for _, att := range msg.Attachments {
		placeholder := attachments.Placeholder(att, attachments.Classify(att))

		if f.attachments != nil {
			// Stored under the conversation, not the sender: a group's files
			// belong to the group's directory regardless of who sent them.
			result, err := f.attachments.Process(msg.ConversationID, msg.Timestamp, att)
			if err != nil {
				f.logger.WithError(err).WithField("attachment_id", att.ID).Warn("Attachment processing failed")
			} else {
				placeholder = result.Placeholder
				if formatted.AttachmentPath == "" {
					formatted.AttachmentPath = result.Path
				}
				if formatted.InlineImage == "" {
					formatted.InlineImage = result.InlineImage
				}
			}
		}

		if formatted.Text == "" {
			formatted.Text = placeholder
		} else {
			formatted.Text += "\n" + placeholder
		}
	}
}

// RenderLine renders one message as it appears in the agent's context,
// e.g. "[15:04] Alice (+15551234567): hello"
func RenderLine(msg models.FormattedMessage) string {
	stamp := msg.Timestamp.Format("15:04")
	if msg.SenderPhone != "" && msg.SenderPhone != msg.SenderName {
		return fmt.Sprintf("[%s] %s (%s): %s", stamp, msg.SenderName, msg.SenderPhone, msg.Text)
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, msg.SenderName, msg.Text)
}

// RenderBatch renders a drained batch into one prompt, arrival order
func RenderBatch(batch []models.FormattedMessage) string {
	lines := make([]string, len(batch))
	for i, msg := range batch {
		lines[i] = RenderLine(msg)
	}
	return strings.Join(lines, "\n")
}
