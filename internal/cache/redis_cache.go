package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

// setIfNewer keeps the cached version when it is ahead of the incoming one.
// KEYS[1] key, ARGV[1] version in unix micros, ARGV[2] payload, ARGV[3] ttl ms.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'doc', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type RedisBucketCache struct {
	client *redis.Client
}

func NewRedisBucketCache(addr string, password string, db int) *RedisBucketCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBucketCache{client: client}
}

func (c *RedisBucketCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBucketCache) Close() error {
	return c.client.Close()
}

func (c *RedisBucketCache) Get(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, bool, error) {
	val, err := c.client.HGet(ctx, bucketKey(tenantID, bucket), "doc").Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var doc domain.BucketDocument
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, false, err
	}
	return &doc, true, nil
}

func (c *RedisBucketCache) Set(ctx context.Context, doc domain.BucketDocument, ttl time.Duration) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	keys := []string{bucketKey(doc.TenantID, doc.Bucket)}
	return setIfNewer.Run(ctx, c.client, keys, doc.UpdatedAt.UnixMicro(), string(payload), ttl.Milliseconds()).Err()
}

func (c *RedisBucketCache) Delete(ctx context.Context, tenantID string, bucket domain.Bucket) error {
	return c.client.Del(ctx, bucketKey(tenantID, bucket)).Err()
}
