package middleware

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roadwatch/roadwatch/internal/cache"
)

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// RateStore coordinates rate limiting decisions for a specific key.
type RateStore interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// memoryRateStore provides process-local token buckets. It is concurrency-safe.
type memoryRateStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	clock   func() time.Time
	lastGC  time.Time
}

type memoryBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const memoryBucketIdle = 10 * time.Minute

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore() RateStore {
	return newMemoryRateStore(time.Now)
}

func newMemoryRateStore(clock func() time.Time) *memoryRateStore {
	return &memoryRateStore{
		buckets: make(map[string]*memoryBucket),
		clock:   clock,
		lastGC:  clock(),
	}
}

func (s *memoryRateStore) Take(_ context.Context, key string, limit int, window time.Duration) (RateDecision, error) {
	if limit <= 0 {
		return RateDecision{Allowed: true}, nil
	}
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()
	every := rate.Every(window / time.Duration(limit))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.collectLocked(now)
	bucket, ok := s.buckets[key]
	if !ok {
		bucket = &memoryBucket{limiter: rate.NewLimiter(every, limit)}
		s.buckets[key] = bucket
	}
	bucket.lastSeen = now

	allowed := bucket.limiter.AllowN(now, 1)
	tokens := bucket.limiter.TokensAt(now)
	perSecond := float64(every)

	decision := RateDecision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if perSecond > 0 {
		missing := 1 - tokens
		if allowed {
			missing = float64(limit) - tokens
		}
		if missing > 0 {
			decision.ResetIn = time.Duration(missing / perSecond * float64(time.Second))
		}
	}
	return decision, nil
}

func (s *memoryRateStore) collectLocked(now time.Time) {
	if now.Sub(s.lastGC) < time.Minute {
		return
	}
	s.lastGC = now
	for key, bucket := range s.buckets {
		if now.Sub(bucket.lastSeen) > memoryBucketIdle {
			delete(s.buckets, key)
		}
	}
}

// cacheRateStore implements RateStore with fixed windows in a shared cache.
type cacheRateStore struct {
	store cache.Store
}

// NewCacheRateStore shares counters across instances through store.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &cacheRateStore{store: store}
}

func (s *cacheRateStore) Take(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, "ratelimit:"+key, window)
	if err != nil {
		return RateDecision{Allowed: true, Limit: limit, Remaining: limit}, err
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetIn:   ttl,
	}, nil
}
