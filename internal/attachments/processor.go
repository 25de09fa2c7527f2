// Package attachments copies inbound transport attachments into a
// per-conversation directory and decides which ones are passed to the
// agent inline versus by path reference.
package attachments

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigclaw/internal/constants"
	"sigclaw/internal/models"

	"github.com/sirupsen/logrus"
)

// MediaKind is the coarse classification used for placeholders
type MediaKind string

const (
	KindImage    MediaKind = "image"
	KindVoice    MediaKind = "voice"
	KindVideo    MediaKind = "video"
	KindDocument MediaKind = "document"
)

// Config controls where attachments are read from and stored
type Config struct {
	// SourceDir is where the transport CLI stores received attachments
	SourceDir string
	// Dir is the per-conversation storage root
	Dir string
	// MaxInlineBytes caps images passed inline as base64; 0 uses the default
	MaxInlineBytes int64
	// InlineImages enables passing small images inline
	InlineImages bool
}

// Result describes one processed attachment
type Result struct {
	Path        string
	Kind        MediaKind
	InlineImage string
	Placeholder string
}

// Processor stores and classifies inbound attachments
type Processor struct {
	config Config
	logger *logrus.Logger
}

// NewProcessor creates an attachment processor
func NewProcessor(config Config, logger *logrus.Logger) *Processor {
	if config.MaxInlineBytes <= 0 {
		config.MaxInlineBytes = constants.DefaultMaxInlineImageBytes
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Processor{config: config, logger: logger}
}

// Process copies the attachment into the conversation's directory and
// classifies it. The message timestamp disambiguates repeated filenames
// within one conversation. A missing source file degrades to a
// placeholder-only result rather than failing the whole message.
func (p *Processor) Process(conversationID string, sentAt time.Time, att models.Attachment) (*Result, error) {
	kind := Classify(att)
	result := &Result{
		Kind:        kind,
		Placeholder: Placeholder(att, kind),
	}

	source := filepath.Join(p.config.SourceDir, att.ID)
	data, err := os.ReadFile(source)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"attachment_id": att.ID,
			"kind":          kind,
		}).Warn("Attachment file not readable, keeping placeholder only")
		return result, nil
	}

	destDir := filepath.Join(p.config.Dir, sanitizeComponent(conversationID))
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}

	dest := filepath.Join(destDir, destName(att, sentAt))
	if err := os.WriteFile(dest, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}
	result.Path = dest

	if p.config.InlineImages && kind == KindImage && int64(len(data)) <= p.config.MaxInlineBytes {
		result.InlineImage = base64.StdEncoding.EncodeToString(data)
	}

	return result, nil
}

// Classify maps a transport content type onto a media kind
func Classify(att models.Attachment) MediaKind {
	ct := strings.ToLower(att.ContentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case strings.HasPrefix(ct, "audio/"):
		return KindVoice
	case strings.HasPrefix(ct, "video/"):
		return KindVideo
	default:
		return KindDocument
	}
}

// Placeholder renders the line shown in the agent's context for an
// attachment, e.g. "[image: photo.jpg]"
func Placeholder(att models.Attachment, kind MediaKind) string {
	name := att.Filename
	if name == "" {
		name = att.ID
	}
	return fmt.Sprintf("[%s: %s]", kind, name)
}

// destName prefers the original filename, timestamp-prefixed so two
// messages carrying the same name do not overwrite each other. Ids are
// unique already and get only an extension guessed from the content type.
func destName(att models.Attachment, sentAt time.Time) string {
	if att.Filename != "" {
		name := sanitizeComponent(att.Filename)
		if !sentAt.IsZero() {
			name = fmt.Sprintf("%d_%s", sentAt.UnixMilli(), name)
		}
		return name
	}
	name := att.ID
	if ext := extensionFor(att.ContentType); ext != "" && filepath.Ext(name) == "" {
		name += ext
	}
	return sanitizeComponent(name)
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return constants.MimeTypeToExtension[ct]
}

// sanitizeComponent keeps stored paths inside the attachment root even
// when ids or filenames carry separators
func sanitizeComponent(name string) string {
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "attachment"
	}
	return name
}
