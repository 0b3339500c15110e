package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes maps file extensions to MIME types for the document
// formats that appear in civic-records corpora.
var mimeTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".json":     "application/json",
	".yaml":     "text/x-yaml",
	".yml":      "text/x-yaml",
}

// MimeTypeForPath returns the MIME type for a file path based on its
// extension. Unknown extensions fall back to text/plain since record
// bodies are always stored as plain text.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mimeType, ok := mimeTypes[ext]; ok {
		return mimeType
	}
	return "text/plain"
}
