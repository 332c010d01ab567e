package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KiritoRJ/assistenciatecnica/internal/cache"
	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

var ErrForbiddenTenant = errors.New("tenant scope mismatch")

// maxClockSkew bounds how far in the future a pushed updatedAt may be before
// it is clamped to the server clock.
const maxClockSkew = 5 * time.Minute

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type TenantLookup interface {
	ActiveTenant(ctx context.Context, id string) (*domain.Tenant, error)
}

// Service is the server side of bucket sync.
type Service struct {
	buckets  store.BucketStore
	tenants  TenantLookup
	cache    cache.BucketCache
	cacheTTL time.Duration
	now      func() time.Time
}

func New(buckets store.BucketStore, tenants TenantLookup, bucketCache cache.BucketCache, cacheTTL time.Duration) *Service {
	if bucketCache == nil {
		bucketCache = cache.NoopBucketCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		buckets:  buckets,
		tenants:  tenants,
		cache:    bucketCache,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Pull returns the stored document or nil when the bucket is absent or the
// tenant is no longer active.
func (s *Service) Pull(ctx context.Context, tenantID string, rawBucket string) (*domain.BucketDocument, error) {
	tenantID = strings.TrimSpace(tenantID)
	bucket, ok := domain.ParseBucket(rawBucket)
	if tenantID == "" || !ok {
		return nil, store.ErrInvalidInput
	}
	if err := authorize(ctx, tenantID); err != nil {
		return nil, err
	}
	if _, err := s.tenants.ActiveTenant(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if doc, hit, err := s.cache.Get(ctx, tenantID, bucket); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Str("bucket", string(bucket)).Msg("[service] cache read failed")
	} else if hit {
		return doc, nil
	}

	doc, err := s.buckets.GetBucket(ctx, tenantID, bucket)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.cache.Set(ctx, *doc, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Str("bucket", string(bucket)).Msg("[service] cache write failed")
	}
	return doc, nil
}

// Push upserts a bucket document. Pushing the same document twice leaves the
// same content stored.
func (s *Service) Push(ctx context.Context, req domain.SyncPushRequest) (domain.SyncPushResponse, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	bucket, ok := domain.ParseBucket(req.Store)
	if tenantID == "" || !ok {
		return domain.SyncPushResponse{}, store.ErrInvalidInput
	}
	if len(req.Data) == 0 || !json.Valid(req.Data) {
		return domain.SyncPushResponse{}, fmt.Errorf("%w: data must be a JSON document", store.ErrInvalidInput)
	}
	if err := authorize(ctx, tenantID); err != nil {
		return domain.SyncPushResponse{}, err
	}
	if _, err := s.tenants.ActiveTenant(ctx, tenantID); err != nil {
		return domain.SyncPushResponse{}, err
	}

	now := s.now()
	updatedAt := now
	if req.UpdatedAt != nil && !req.UpdatedAt.IsZero() {
		updatedAt = req.UpdatedAt.UTC()
		if updatedAt.After(now.Add(maxClockSkew)) {
			updatedAt = now
		}
	}
	// Postgres keeps microseconds; truncating here keeps every backend equal.
	updatedAt = updatedAt.Truncate(time.Microsecond)

	stored, applied, err := s.buckets.PutBucket(ctx, domain.BucketDocument{
		TenantID:  tenantID,
		Bucket:    bucket,
		Data:      req.Data,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return domain.SyncPushResponse{}, err
	}
	if err := s.cache.Set(ctx, *stored, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Str("bucket", string(bucket)).Msg("[service] cache write failed")
		_ = s.cache.Delete(ctx, tenantID, bucket)
	}
	if !applied {
		log.Info().Str("tenant", tenantID).Str("bucket", string(bucket)).Time("stored_at", stored.UpdatedAt).Msg("[service] stale push ignored")
	}

	return domain.SyncPushResponse{
		Success:   true,
		Applied:   applied,
		UpdatedAt: stored.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func authorize(ctx context.Context, tenantID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbiddenTenant
	}
	if actor.IsSuper() || actor.TenantID == tenantID {
		return nil
	}
	return ErrForbiddenTenant
}
