package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease grants exclusive ownership of an aggregation run. Exactly one
// scheduler instance may hold the lease at a time.
type Lease interface {
	// TryAcquire attempts to take the lease. It reports false when another
	// holder is active; that is not an error.
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)

	// Release gives the lease back. Only the current holder's release has
	// any effect.
	Release(ctx context.Context) error
}

const leaseKey = "telemetra:aggregation:lease"

// releaseScript deletes the lease only when the stored token matches, so a
// slow holder cannot release a lease that already expired and was re-taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease coordinates scheduler instances across processes.
type RedisLease struct {
	client *redis.Client

	mu    sync.Mutex
	token string
}

func NewRedisLease(client *redis.Client) *RedisLease {
	return &RedisLease{client: client}
}

func (l *RedisLease) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, leaseKey, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{leaseKey}, token).Err()
}

// LocalLease is the in-process fallback used when no redis address is
// configured, for single-instance deployments and tests.
type LocalLease struct {
	mu      sync.Mutex
	held    bool
	expires time.Time
}

func NewLocalLease() *LocalLease {
	return &LocalLease{}
}

func (l *LocalLease) TryAcquire(_ context.Context, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.held && now.Before(l.expires) {
		return false, nil
	}
	l.held = true
	l.expires = now.Add(ttl)
	return true, nil
}

func (l *LocalLease) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}
