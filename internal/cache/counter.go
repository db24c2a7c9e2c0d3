package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "roadwatch"

// Store is a shared counter store used for cross-instance rate limiting.
type Store interface {
	// IncrementWithTTL bumps key inside a fixed window and returns the count together with
	// the time left in that window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// incrementWindow runs as one script so a counter can never be left without an expiry.
var incrementWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisStore keeps fixed-window counters in Redis.
type RedisStore struct {
	client redis.Scripter
}

// NewRedisStore wraps client. A nil client yields nil.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client}
}

func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	redisKey := namespacedKey(key)

	reply, err := incrementWindow.Run(orBackground(ctx), s.client, []string{redisKey}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: increment %s: %w", redisKey, err)
	}
	if len(reply) != 2 {
		return 0, 0, fmt.Errorf("redis: increment %s: unexpected reply %v", redisKey, reply)
	}

	ttl := time.Duration(reply[1]) * time.Millisecond
	if ttl <= 0 {
		ttl = window
	}
	return reply[0], ttl, nil
}

// namespacedKey prefixes key with the service namespace and drops empty segments.
func namespacedKey(key string) string {
	segments := strings.FieldsFunc(key, func(r rune) bool { return r == ':' })
	if len(segments) == 0 || segments[0] != keyPrefix {
		segments = append([]string{keyPrefix}, segments...)
	}
	return strings.Join(segments, ":")
}
