package storage

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
)

// GCS implements the snapshot blob store on Google Cloud Storage.
type GCS struct {
	client *gcs.Client
	bucket string
}

// NewGCS initializes a GCS client and verifies bucket access, failing fast
// on bad configuration. Authentication uses Application Default Credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		cerr := client.Close()
		if cerr != nil {
			return nil, fmt.Errorf("stat gcs bucket %q: %w (close: %v)", bucket, err, cerr)
		}
		return nil, fmt.Errorf("stat gcs bucket %q: %w", bucket, err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// PutObject uploads data to path, overwriting any existing object. Snapshot
// paths are deterministic per (space, save), so a retry after a partial
// upload simply rewrites the same object.
func (g *GCS) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gcs object %s: %w", path, err)
	}
	return path, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
