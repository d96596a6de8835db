// Package gcs provides a SnapshotStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/tkearney/tenderfeed/internal/tender"
)

// Config captures the parameters required to address objects in GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every key, e.g. "tenders".
	Prefix string
}

// SnapshotStore reads and writes snapshot blobs in a configured bucket.
// GCS object writes are atomic, which gives the whole-value replacement
// semantics the read path relies on for free.
type SnapshotStore struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed snapshot store.
func New(client *storage.Client, cfg Config) (*SnapshotStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &SnapshotStore{client: client, cfg: cfg}, nil
}

// Get reads the object for key, mapping a missing object to
// tender.ErrNotFound so callers can serve the empty snapshot.
func (s *SnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.cfg.Bucket).Object(s.objectPath(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, tender.ErrNotFound
		}
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return data, nil
}

// Put overwrites the object for key with data.
func (s *SnapshotStore) Put(ctx context.Context, key string, data []byte) error {
	writer := s.client.Bucket(s.cfg.Bucket).Object(s.objectPath(key)).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object %q: %w (close writer: %v)", key, err, closeErr)
		}
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for %q: %w", key, err)
	}
	return nil
}

func (s *SnapshotStore) objectPath(key string) string {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return key + ".json"
	}
	return prefix + "/" + key + ".json"
}
