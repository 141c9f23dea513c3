package history

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// BlobStorage keeps the record as one object in a gocloud bucket. Drivers for
// file:// and mem:// are always linked; s3:// and gs:// are registered by the
// binary.
type BlobStorage struct {
	bucket *blob.Bucket
	key    string
}

// OpenBlobStorage opens bucketURL and stores the record at key.
func OpenBlobStorage(ctx context.Context, bucketURL, key string) (*BlobStorage, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return NewBlobStorage(bucket, key), nil
}

// NewBlobStorage wraps an open bucket.
func NewBlobStorage(bucket *blob.Bucket, key string) *BlobStorage {
	if key == "" {
		key = DefaultKey + ".json"
	}
	return &BlobStorage{bucket: bucket, key: key}
}

func (b *BlobStorage) Load(ctx context.Context) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, b.key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.key, err)
	}
	return data, nil
}

func (b *BlobStorage) Save(ctx context.Context, data []byte) error {
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := b.bucket.WriteAll(ctx, b.key, data, opts); err != nil {
		return fmt.Errorf("write %s: %w", b.key, err)
	}
	return nil
}

// Close closes the bucket.
func (b *BlobStorage) Close() error {
	return b.bucket.Close()
}
