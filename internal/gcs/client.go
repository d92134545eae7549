package gcs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

// Client is the Store backed by a shared storage client.
// It assumes Application Default Credentials are configured.
type Client struct {
	client *storage.Client
	// MaxBytes caps Fetch. Zero means no limit.
	MaxBytes int64
}

// NewClient creates the underlying storage client once; callers Close it.
func NewClient(ctx context.Context, maxBytes int64) (*Client, error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs.NewClient: create storage client: %w", err)
	}
	return &Client{client: sc, MaxBytes: maxBytes}, nil
}

// Close releases the storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Fetch downloads the object bytes from the given GCS URI.
func (c *Client) Fetch(ctx context.Context, uri string) (*Object, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if c.MaxBytes > 0 {
		if rc.Attrs.Size > c.MaxBytes {
			return nil, fmt.Errorf("Fetch: %w: %d bytes", ErrObjectTooLarge, rc.Attrs.Size)
		}
		r = io.LimitReader(rc, c.MaxBytes+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	if c.MaxBytes > 0 && int64(len(data)) > c.MaxBytes {
		return nil, fmt.Errorf("Fetch: %w", ErrObjectTooLarge)
	}

	return &Object{Bucket: bucket, Path: object, Name: BaseName(uri), Data: data}, nil
}

// Upload uploads a local file to a GCS bucket under the given object name.
func (c *Client) Upload(ctx context.Context, bucket, object, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("Upload: open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if ct := mime.TypeByExtension(filepath.Ext(filePath)); ct != "" {
		w.ContentType = ct
	}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("Upload: copy file to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize upload: %w", err)
	}
	return nil
}
