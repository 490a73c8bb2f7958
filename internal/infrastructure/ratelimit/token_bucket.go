package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket refills continuously at rate tokens per second up to capacity.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	rate       float64
	lastRefill time.Time
	now        func() time.Time
}

// TokenBucketConfig holds configuration for creating a token bucket.
type TokenBucketConfig struct {
	// Capacity is the maximum number of tokens the bucket can hold
	Capacity float64
	// Rate is the number of tokens added per second
	Rate float64
	// Now overrides the clock in tests
	Now func() time.Time
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(cfg TokenBucketConfig) *TokenBucket {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		capacity:   cfg.Capacity,
		tokens:     cfg.Capacity,
		rate:       cfg.Rate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow attempts to consume one token.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) take(limit int64) *Result {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	res := &Result{Limit: limit}
	if tb.tokens >= 1 {
		tb.tokens--
		res.Allowed = true
	} else if tb.rate > 0 {
		res.RetryAfter = time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	}
	res.Remaining = int64(tb.tokens)
	return res
}

// refill must be called with the lock held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Available returns the current number of tokens available.
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// TokenBucketPool manages one bucket per key.
type TokenBucketPool struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucketEntry
	config  TokenBucketConfig
}

type tokenBucketEntry struct {
	bucket   *TokenBucket
	lastUsed time.Time
}

// NewTokenBucketPool creates a new token bucket pool.
func NewTokenBucketPool(config TokenBucketConfig) *TokenBucketPool {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &TokenBucketPool{
		buckets: make(map[string]*tokenBucketEntry),
		config:  config,
	}
}

// GetOrCreate gets an existing bucket or creates a new one.
func (p *TokenBucketPool) GetOrCreate(key string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.buckets[key]
	if !ok {
		entry = &tokenBucketEntry{bucket: NewTokenBucket(p.config)}
		p.buckets[key] = entry
	}
	entry.lastUsed = p.config.Now()
	return entry.bucket
}

// Remove removes a bucket from the pool.
func (p *TokenBucketPool) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.buckets, key)
}

// Cleanup removes buckets idle for longer than maxIdle and returns how many
// were removed.
func (p *TokenBucketPool) Cleanup(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.config.Now()
	removed := 0
	for key, entry := range p.buckets {
		if now.Sub(entry.lastUsed) > maxIdle {
			delete(p.buckets, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of buckets in the pool.
func (p *TokenBucketPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// Clear removes all buckets from the pool.
func (p *TokenBucketPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = make(map[string]*tokenBucketEntry)
}
