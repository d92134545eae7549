// Package gcs reads journal files from and writes them to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrInvalidURI     = errors.New("invalid GCS URI")
	ErrObjectTooLarge = errors.New("GCS object exceeds size limit")
)

// Store is the storage surface used by the API and CLI. It exists so handlers
// can be tested without a bucket.
type Store interface {
	// Fetch downloads the object at uri ("gs://bucket/path/file.csv").
	Fetch(ctx context.Context, uri string) (*Object, error)
	// Upload copies a local file to bucket/object.
	Upload(ctx context.Context, bucket, object, filePath string) error
}

// Object is a downloaded object.
type Object struct {
	Bucket string
	Path   string
	// Name is the base name of the object path, used to pick a file reader.
	Name string
	Data []byte
}

// ParseURI splits "gs://bucket/path/to/file" into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("%w: %q has no gs:// prefix", ErrInvalidURI, uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", fmt.Errorf("%w: %q has no object path", ErrInvalidURI, uri)
	}
	return parts[0], parts[1], nil
}

// BaseName extracts the file name from a GCS URI.
// e.g., "gs://bucket/folder/journal.csv" → "journal.csv"
func BaseName(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(object, "/")
}
