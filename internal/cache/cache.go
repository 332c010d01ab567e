package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

// BucketCache is a read cache in front of the remote bucket store. Set must
// not replace a cached document whose UpdatedAt is newer than doc's.
type BucketCache interface {
	Get(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, bool, error)
	Set(ctx context.Context, doc domain.BucketDocument, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, bucket domain.Bucket) error
}

type NoopBucketCache struct{}

func (NoopBucketCache) Get(_ context.Context, _ string, _ domain.Bucket) (*domain.BucketDocument, bool, error) {
	return nil, false, nil
}

func (NoopBucketCache) Set(_ context.Context, _ domain.BucketDocument, _ time.Duration) error {
	return nil
}

func (NoopBucketCache) Delete(_ context.Context, _ string, _ domain.Bucket) error {
	return nil
}

func bucketKey(tenantID string, bucket domain.Bucket) string {
	return fmt.Sprintf("sync:%s:%s", tenantID, bucket)
}
