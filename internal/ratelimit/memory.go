package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// idleTTL bounds how long an untouched bucket is kept. A bucket idle this
// long has refilled anyway, so dropping it loses nothing.
const idleTTL = 10 * time.Minute

type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// MemoryLimiter is a token bucket per key. Buckets are held in a bounded
// expiring LRU, so memory stays flat under key churn.
type MemoryLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets *expirable.LRU[string, *bucket]
}

// NewMemoryLimiter creates a limiter allowing rate requests per second per
// key with bursts up to burst. maxKeys caps tracked callers.
func NewMemoryLimiter(rate float64, burst, maxKeys int) *MemoryLimiter {
	return &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: expirable.NewLRU[string, *bucket](maxKeys, nil, idleTTL),
	}
}

// Allow consumes one token for key.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	b := m.bucketFor(key)
	now := m.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(m.burst, b.tokens+now.Sub(b.last).Seconds()*m.rate)
	b.last = now
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

func (m *MemoryLimiter) bucketFor(key string) *bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: m.burst, last: m.now()}
	}
	// Re-adding refreshes the idle deadline.
	m.buckets.Add(key, b)
	return b
}
