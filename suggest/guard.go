package suggest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LocalGuard keeps busy flags in process memory.
type LocalGuard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{busy: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, userID string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[userID]; ok {
		return nil, false, nil
	}
	g.busy[userID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, userID)
			g.mu.Unlock()
		})
	}, true, nil
}

func (g *LocalGuard) Held(_ context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.busy[userID]
	return ok, nil
}

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisGuard stores busy flags in Redis so all instances share them. The
// TTL bounds how long a crashed instance can hold a flag.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (r *RedisGuard) key(userID string) string {
	return "suggest:busy:" + userID
}

func (r *RedisGuard) Acquire(ctx context.Context, userID string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(userID), token, r.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// release even when the request context is already done
		_ = releaseScript.Run(context.WithoutCancel(ctx), r.client, []string{r.key(userID)}, token).Err()
	}, true, nil
}

func (r *RedisGuard) Held(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(userID)).Result()
	return n == 1, err
}
