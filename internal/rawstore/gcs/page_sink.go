// Package gcs provides a raw page sink backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// PageSink writes raw page artifacts to a configured GCS bucket. Object names
// are deterministic per stream and sequence number, so re-fetches overwrite.
type PageSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed page sink.
func New(client *storage.Client, cfg Config) (*PageSink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &PageSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// WritePage uploads one page artifact and returns its gs:// URI.
func (s *PageSink) WritePage(ctx context.Context, stream string, seq int, data []byte) (string, error) {
	path := fmt.Sprintf("%s_page_%05d.json", stream, seq)
	if s.prefix != "" {
		path = s.prefix + "/" + stream + "/" + path
	} else {
		path = stream + "/" + path
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
