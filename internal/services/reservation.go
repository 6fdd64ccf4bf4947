package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Reserver hands out exclusive, per-key reward guards
type Reserver interface {
	// Reserve takes the guard for key for at least lease. ok is false when the
	// guard is already held. The returned token identifies this holder.
	Reserve(ctx context.Context, key string, lease time.Duration) (token string, ok bool, err error)
	// Release frees the guard only if token still holds it
	Release(ctx context.Context, key, token string) error
}

// LocalReserver keeps guards in process memory; suitable for a single replica.
// Guards are held until released.
type LocalReserver struct {
	mu   sync.Mutex
	held map[string]string
}

// NewLocalReserver creates an in-process reserver
func NewLocalReserver() *LocalReserver {
	return &LocalReserver{held: make(map[string]string)}
}

func (r *LocalReserver) Reserve(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	r.held[key] = token
	return token, true, nil
}

func (r *LocalReserver) Release(_ context.Context, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[key] == token {
		delete(r.held, key)
	}
	return nil
}

// releaseScript deletes the guard only when it still carries the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisReserver shares guards between replicas through Redis SETNX.
// The expiry bounds how long a crashed holder can block a submission.
type RedisReserver struct {
	redis     *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisReserver creates a Redis backed reserver. ttl is the minimum
// expiry of a guard; a longer lease passed to Reserve wins.
func NewRedisReserver(client *redis.Client, ttl time.Duration) *RedisReserver {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisReserver{
		redis:     client,
		ttl:       ttl,
		keyPrefix: "ecoproof:reward:",
	}
}

func (r *RedisReserver) Reserve(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	ttl := max(r.ttl, lease)
	token := uuid.NewString()
	ok, err := r.redis.SetNX(ctx, r.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisReserver) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.redis, []string{r.keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	return nil
}
