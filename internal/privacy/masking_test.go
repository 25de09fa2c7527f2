package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"international number", "+15551234567", "+*******4567"},
		{"short plus number", "+1234", "+****"},
		{"bare digits", "5551234567", "******4567"},
		{"very short", "123", "***"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskPhoneNumber(tt.phone))
		})
	}
}

func TestMaskConversationID(t *testing.T) {
	assert.Equal(t, "+*******4567", MaskConversationID("+15551234567"))

	// Group ids keep a recognizable suffix only.
	masked := MaskConversationID("dGVzdC1ncm91cC1pZA==")
	assert.Equal(t, "**************1pZA==", masked)

	assert.Equal(t, "", MaskConversationID(""))
}

func TestMaskSessionID(t *testing.T) {
	masked := MaskSessionID("5e3a7f00-90ab-4cde-8123-456789abcdef")
	assert.Equal(t, "****************************89abcdef", masked)

	assert.Equal(t, "****", MaskSessionID("sess"))
}
