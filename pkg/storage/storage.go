package storage

import (
	"context"
	"io"
	"time"
)

// Storage abstracts the artifact store holding uploaded audio and PDF
// files. Keys are opaque object names scoped to one bucket.
type Storage interface {
	// Store uploads an object and returns its key.
	Store(ctx context.Context, reader io.Reader, key string, contentType string) (string, error)
	// Get opens an object for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// FetchToFile downloads an object to a local temp file and returns its
	// path. The caller removes the file.
	FetchToFile(ctx context.Context, key string) (string, error)
	// Delete removes an object.
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects last modified before the threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// AudioKey returns the canonical object key for a lecture's audio upload.
func AudioKey(lectureID int64, ext string) string {
	return objectKey(lectureID, "audio", ext)
}

// PDFKey returns the canonical object key for a lecture's slide PDF.
func PDFKey(lectureID int64) string {
	return objectKey(lectureID, "slides", ".pdf")
}
