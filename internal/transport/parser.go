package transport

import (
	"time"

	"sigclaw/internal/models"
)

// ParseEnvelope normalizes one decoded envelope into a ParsedMessage.
// Returns nil for envelopes that carry nothing routable: receipts, typing
// indicators, and data messages with no text, attachments, or reaction.
func ParseEnvelope(wrapper *EnvelopeWrapper) *models.ParsedMessage {
	env := &wrapper.Envelope

	if env.ReceiptMessage != nil || env.TypingMessage != nil {
		return nil
	}

	dm := env.DataMessage
	if dm == nil {
		return nil
	}

	sender := env.SourceNumber
	if sender == "" {
		sender = env.Source
	}
	if sender == "" {
		return nil
	}

	msg := &models.ParsedMessage{
		ConversationID:   sender,
		ConversationType: models.ConversationDM,
		SenderID:         sender,
		SenderName:       env.SourceName,
		Timestamp:        time.UnixMilli(env.Timestamp),
	}

	if dm.GroupInfo != nil && dm.GroupInfo.GroupID != "" {
		msg.ConversationID = dm.GroupInfo.GroupID
		msg.ConversationType = models.ConversationGroup
	}

	if dm.Quote != nil {
		msg.Quote = &models.Quote{
			TargetTimestamp: dm.Quote.ID,
			TargetAuthor:    dm.Quote.Author,
			Text:            dm.Quote.Text,
		}
	}

	switch {
	case dm.Reaction != nil:
		msg.Variant = models.VariantReaction
		msg.Reaction = &models.Reaction{
			Emoji:           dm.Reaction.Emoji,
			TargetAuthor:    dm.Reaction.TargetAuthor,
			TargetTimestamp: dm.Reaction.TargetSentTimestamp,
			IsRemove:        dm.Reaction.IsRemove,
		}
	case dm.Message != "" || len(dm.Attachments) > 0:
		msg.Variant = models.VariantText
		msg.Text = dm.Message
		for _, att := range dm.Attachments {
			msg.Attachments = append(msg.Attachments, models.Attachment{
				ID:          att.ID,
				ContentType: att.ContentType,
				Filename:    att.Filename,
				Size:        att.Size,
			})
		}
	default:
		return nil
	}

	return msg
}
