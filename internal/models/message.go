package models

import "time"

// ConversationType distinguishes direct threads from groups
type ConversationType string

const (
	ConversationDM    ConversationType = "dm"
	ConversationGroup ConversationType = "group"
)

// MessageVariant is the payload kind of a parsed message
type MessageVariant string

const (
	VariantText     MessageVariant = "text"
	VariantReaction MessageVariant = "reaction"
)

// ParsedMessage is the normalized form of one inbound transport envelope.
// Receipts and typing indicators never reach this type; the parser drops
// them before routing.
type ParsedMessage struct {
	ConversationID   string
	ConversationType ConversationType
	SenderID         string
	SenderName       string
	Timestamp        time.Time
	Variant          MessageVariant
	Text             string
	Attachments      []Attachment
	Reaction         *Reaction
	Quote            *Quote
}

// Attachment describes one inbound attachment as reported by the transport
type Attachment struct {
	ID          string
	ContentType string
	Filename    string
	Size        int64
}

// Reaction is an emoji reaction to an earlier message
type Reaction struct {
	Emoji           string
	TargetAuthor    string
	TargetTimestamp int64
	IsRemove        bool
}

// Quote references an earlier message being replied to
type Quote struct {
	TargetTimestamp int64
	TargetAuthor    string
	Text            string
}

// FormattedMessage is the unit queued in a mailbox: a parsed message after
// attachment processing, ready to be rendered into the agent's context.
type FormattedMessage struct {
	Timestamp      time.Time
	SenderName     string
	SenderPhone    string
	Text           string
	AttachmentPath string
	InlineImage    string // base64 payload passed inline, empty when not inlined
}
