package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Both scripts compare the stored token first so a holder whose TTL lapsed
// can't touch a lock someone else now owns.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock is a SET NX lock with a TTL. Each instance carries a random
// token, so only the instance that acquired the key can release or extend
// it.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock returns an unacquired lock on "lock:"+key.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		token:  newToken(),
		ttl:    ttl,
	}
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to
		// the clock so the token is still unique per process.
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the key if this instance still holds it, and returns
// ErrNotHeld otherwise.
func (l *RedisLock) Release(ctx context.Context) error {
	return l.runOwned(ctx, releaseScript, "release")
}

// Extend resets the TTL of a held lock.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	return l.runOwned(ctx, extendScript, "extend", ttl.Milliseconds())
}

func (l *RedisLock) runOwned(ctx context.Context, script *redis.Script, op string, extra ...interface{}) error {
	args := append([]interface{}{l.token}, extra...)
	n, err := script.Run(ctx, l.client, []string{l.key}, args...).Int64()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Key returns the Redis key backing the lock.
func (l *RedisLock) Key() string { return l.key }
