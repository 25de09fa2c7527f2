package models

import "time"

// SessionRecord maps a conversation to its resumable agent session.
// Overwritten on every turn that yields a session id; removed when a
// resume attempt is known to be stale.
type SessionRecord struct {
	Type       ConversationType `json:"type"`
	SessionID  string           `json:"sessionId"`
	LastActive time.Time        `json:"lastActive"`
}

// Group is a cached group display name
type Group struct {
	GroupID   string
	Name      string
	CachedAt  time.Time
}

// Contact is a cached contact display name
type Contact struct {
	PhoneNumber string
	Name        string
	CachedAt    time.Time
}
