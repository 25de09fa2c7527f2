package constants

// MimeTypeToExtension maps transport content types to the extension
// used when an attachment arrives without a filename
var MimeTypeToExtension = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",

	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",

	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/aac":  ".aac",
	"audio/mp4":  ".m4a",

	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// DefaultMimeType is the fallback for unknown file extensions
const DefaultMimeType = "application/octet-stream"
