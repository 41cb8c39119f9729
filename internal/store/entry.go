package store

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"photo-compressor-go/internal/preview"
)

// Status is the processing state of an entry.
type Status int

const (
	StatusPending Status = iota
	StatusCompressing
	StatusCompressed
	StatusFailed
)

// String returns the string representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompressing:
		return "compressing"
	case StatusCompressed:
		return "compressed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Blob is an image payload with its metadata.
type Blob struct {
	Name     string
	MimeType string
	Data     []byte
}

// Size returns the payload size in bytes.
func (b Blob) Size() int64 {
	return int64(len(b.Data))
}

// Entry is the tracked state of one image.
type Entry struct {
	ID       string
	Original Blob
	Current  Blob
	Preview  preview.Handle
	Ratio    float64
	Status   Status
	// Fallback is set when the last compression attempt kept the original bytes.
	Fallback bool
}

// DetectMimeType returns the declared mime type, or one sniffed from the
// payload, or one derived from the file extension. A generic
// application/octet-stream declaration counts as undeclared.
func DetectMimeType(b Blob) string {
	if declared := normalizeMimeType(b.MimeType); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(b.Data) > 0 {
		if ct := normalizeMimeType(http.DetectContentType(b.Data)); ct != "application/octet-stream" {
			return ct
		}
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(b.Name))); ct != "" {
		return normalizeMimeType(ct)
	}
	return "application/octet-stream"
}

// ErrNotImage marks a blob rejected by Add.
var ErrNotImage = errors.New("not an image")

// IsImageType reports whether a media type is image-like.
func IsImageType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func normalizeMimeType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
