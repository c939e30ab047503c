// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBackend stores the ledger as a single object in a Cloud Storage
// bucket. Each Put replaces the whole object, so readers always see
// either the previous or the new ledger, never a partial write.
type GCSBackend struct {
	Bucket *storage.BucketHandle
	Object string
}

// NewGCSBackend opens a Cloud Storage client for bucket/object.
// Credentials come from the environment (ADC).
func NewGCSBackend(ctx context.Context, bucket, object string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	if object == "" {
		object = "state.json"
	}
	return &GCSBackend{
		Bucket: client.Bucket(bucket),
		Object: object,
	}, nil
}

func (b *GCSBackend) Get(ctx context.Context) ([]byte, bool, error) {
	r, err := b.Bucket.Object(b.Object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("opening object %s: %w", b.Object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("reading object %s: %w", b.Object, err)
	}
	return data, true, nil
}

func (b *GCSBackend) Put(ctx context.Context, data []byte) error {
	w := b.Bucket.Object(b.Object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing object %s: %w", b.Object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing object %s: %w", b.Object, err)
	}
	return nil
}
