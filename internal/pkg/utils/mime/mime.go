package mime

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// extMimeMap refines content sniffing for formats the sniffer reports as
// text/plain or a generic container.
var extMimeMap = map[string]string{
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".avif": "image/avif",
	".heic": "image/heic",
	".heif": "image/heif",
	".ico":  "image/x-icon",
}

const octetStream = "application/octet-stream"

// Detect returns the MIME type to store for an upload. A declared type wins
// unless it is empty or application/octet-stream; otherwise the content is
// sniffed and refined by extension.
func Detect(content []byte, filename, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(declared, octetStream) {
		return declared
	}

	ext := strings.ToLower(filepath.Ext(filename))
	detected := mimetype.Detect(content).String()

	if strings.HasPrefix(detected, "text/plain") || strings.HasPrefix(detected, octetStream) || strings.HasPrefix(detected, "text/xml") {
		if refined, ok := extMimeMap[ext]; ok {
			return refined
		}
	}
	return detected
}
