package transport

// Wire types for the signal-cli JSON event stream. Each stdout line is one
// EnvelopeWrapper. The payload is a tagged union: exactly one of the
// *Message fields is set per envelope.

// EnvelopeWrapper matches the top-level receive output structure
type EnvelopeWrapper struct {
	Envelope Envelope `json:"envelope"`
	Account  string   `json:"account"`
}

// Envelope is one inbound transport record
type Envelope struct {
	Source         string          `json:"source"`
	SourceNumber   string          `json:"sourceNumber"`
	SourceUUID     string          `json:"sourceUuid"`
	SourceName     string          `json:"sourceName"`
	Timestamp      int64           `json:"timestamp"`
	DataMessage    *DataMessage    `json:"dataMessage,omitempty"`
	ReceiptMessage *ReceiptMessage `json:"receiptMessage,omitempty"`
	TypingMessage  *TypingMessage  `json:"typingMessage,omitempty"`
}

// DataMessage carries text, attachments, reactions, and quotes
type DataMessage struct {
	Timestamp   int64            `json:"timestamp"`
	Message     string           `json:"message"`
	GroupInfo   *GroupInfo       `json:"groupInfo,omitempty"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
	Reaction    *ReactionInfo    `json:"reaction,omitempty"`
	Quote       *QuoteInfo       `json:"quote,omitempty"`
}

// GroupInfo tags a data message as belonging to a group conversation
type GroupInfo struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type"`
}

// AttachmentInfo describes one attachment of a data message
type AttachmentInfo struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// ReactionInfo is an emoji reaction to an earlier message
type ReactionInfo struct {
	Emoji               string `json:"emoji"`
	TargetAuthor        string `json:"targetAuthor"`
	TargetSentTimestamp int64  `json:"targetSentTimestamp"`
	IsRemove            bool   `json:"isRemove"`
}

// QuoteInfo references the message being replied to
type QuoteInfo struct {
	ID     int64  `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// ReceiptMessage acknowledges delivery or read state; dropped by the parser
type ReceiptMessage struct {
	When       int64   `json:"when"`
	IsDelivery bool    `json:"isDelivery"`
	IsRead     bool    `json:"isRead"`
	Timestamps []int64 `json:"timestamps"`
}

// TypingMessage signals typing started/stopped; dropped by the parser
type TypingMessage struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}
