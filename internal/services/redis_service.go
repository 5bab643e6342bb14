package services

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService provides the distributed per-profile write lock. Redis is
// optional: when it is absent the profile service falls back to in-process
// locking, which is sufficient for a single instance.
type RedisService struct {
	client    *redis.Client
	available bool
}

// NewRedisService connects to Redis when a URL is configured. A missing or
// unreachable Redis is logged and tolerated.
func NewRedisService(redisURL string) *RedisService {
	if redisURL == "" {
		log.Printf("⚠️ [REDIS] No REDIS_URL configured, using in-process locks only")
		return &RedisService{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("⚠️ [REDIS] Invalid REDIS_URL, using in-process locks only: %v", err)
		return &RedisService{}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ [REDIS] Ping failed, using in-process locks only: %v", err)
		client.Close()
		return &RedisService{}
	}

	log.Printf("✅ [REDIS] Connected")
	return &RedisService{client: client, available: true}
}

// Available reports whether the distributed lock backend is usable.
func (r *RedisService) Available() bool {
	return r.available
}

// AcquireLock attempts to take the named lock for ttl. Returns false when
// another holder has it.
func (r *RedisService) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !r.available {
		return false, nil
	}
	return r.client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLock drops the named lock. Errors are logged, not returned; the TTL
// bounds a leaked lock either way.
func (r *RedisService) ReleaseLock(ctx context.Context, key string) {
	if !r.available {
		return
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		log.Printf("⚠️ [REDIS] Failed to release lock %s: %v", key, err)
	}
}

// Close shuts down the client.
func (r *RedisService) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
