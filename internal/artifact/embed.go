package artifact

import (
	"encoding/base64"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const defaultImageMIME = "image/png"

// DataURIPrefix is how every embedded PNG screenshot starts
const DataURIPrefix = "data:" + defaultImageMIME + ";base64,"

// Embedder turns artifact files into data URIs
type Embedder struct {
	logger *zap.Logger
}

// NewEmbedder creates an Embedder
func NewEmbedder(logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{logger: logger}
}

// Embed reads the file at path and returns it as a data URI. Unreadable files
// are logged and reported as false; the file itself is left untouched.
func (e *Embedder) Embed(path string) (string, bool) {
	if path == "" || strings.HasPrefix(path, "data:") {
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warn("Could not read artifact for embedding",
			zap.String("path", path),
			zap.Error(err),
		)
		return "", false
	}

	return DataURI(MIMEType(path), data), true
}

// MIMEType guesses the media type from the file extension, falling back to PNG
func MIMEType(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return defaultImageMIME
	}
	if i := strings.Index(t, ";"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// DataURI encodes data as a base64 data URI
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
