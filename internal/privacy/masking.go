// Package privacy masks conversation identifiers before they reach
// logs. Verbose mode bypasses masking at the call sites, not here.
package privacy

import "strings"

// MaskPhoneNumber shows only the last 4 digits of a phone number.
// Example: "+15551234567" -> "+*******4567"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}
	return maskString(phone, 4)
}

// MaskConversationID masks a conversation id. Direct threads are phone
// numbers; groups are opaque base64 ids and keep only a short suffix.
func MaskConversationID(conversationID string) string {
	if conversationID == "" {
		return ""
	}
	if strings.HasPrefix(conversationID, "+") {
		return MaskPhoneNumber(conversationID)
	}
	return maskString(conversationID, 6)
}

// MaskSessionID keeps the tail of an agent session id for correlation
// across log lines without exposing the full id
func MaskSessionID(sessionID string) string {
	return maskString(sessionID, 8)
}

func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
