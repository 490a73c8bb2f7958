package apikey

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tspence/api-key-generator/pkg/logger"
)

// KeyValidator is the validation capability wrapped by CachedValidator.
// *Validator implements it.
type KeyValidator interface {
	TryValidate(ctx context.Context, raw string) (*Result, error)
}

// Cache tiers, as reported to metrics and traces.
const (
	TierMiss    = "miss"
	TierFresh   = "fresh"
	TierStale   = "stale"
	TierExpired = "expired"
)

// CachedValidator remembers validation results per (source address, key)
// pair. Results younger than the fresh window are returned as-is. Results
// between the fresh and stale windows are returned while one background
// revalidation refreshes them. Older results are revalidated synchronously,
// joining a background revalidation that is already in flight.
//
// A revoked key therefore keeps validating for at most the stale window
// after its last successful refresh.
//
// Entries are never evicted.
type CachedValidator struct {
	validator KeyValidator
	clock     Clock
	fresh     time.Duration
	stale     time.Duration

	entries sync.Map // fingerprint -> *cacheEntry
	size    atomic.Int64
	group   singleflight.Group
	opts    options
}

type cacheSnapshot struct {
	lastVerified time.Time
	result       *Result
}

type cacheEntry struct {
	snapshot   atomic.Pointer[cacheSnapshot]
	refreshing atomic.Bool
}

// NewCachedValidator wraps v. fresh should not exceed stale.
func NewCachedValidator(v KeyValidator, clock Clock, fresh, stale time.Duration, opts ...Option) *CachedValidator {
	if clock == nil {
		clock = SystemClock{}
	}
	o := applyOptions(opts)
	o.logger = o.logger.WithComponent("apikey.cache")
	return &CachedValidator{
		validator: v,
		clock:     clock,
		fresh:     fresh,
		stale:     stale,
		opts:      o,
	}
}

// Fingerprint is the cache key for a source address and key string.
func Fingerprint(remoteAddress, raw string) string {
	sum := sha512.Sum512([]byte(remoteAddress + ":" + raw))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// TryValidate validates raw as presented from remoteAddress. Cached failures
// are returned exactly like cached successes. An error is returned only when
// a revalidation could not reach a verdict; the previous result is kept.
func (c *CachedValidator) TryValidate(ctx context.Context, raw, remoteAddress string) (*Result, error) {
	fp := Fingerprint(remoteAddress, raw)
	now := c.clock.Now()

	value, loaded := c.entries.Load(fp)
	if !loaded {
		c.opts.metrics.RecordCacheLookup(TierMiss)
		value, loaded = c.entries.LoadOrStore(fp, &cacheEntry{})
		if !loaded {
			c.opts.metrics.SetCacheEntries(int(c.size.Add(1)))
		}
		return c.revalidate(ctx, fp, value.(*cacheEntry), raw, TierMiss)
	}

	entry := value.(*cacheEntry)
	snap := entry.snapshot.Load()
	if snap == nil {
		// Created by a concurrent first observation that has not finished.
		return c.revalidate(ctx, fp, entry, raw, TierMiss)
	}

	age := now.Sub(snap.lastVerified)
	switch {
	case age < c.fresh:
		c.opts.metrics.RecordCacheLookup(TierFresh)
		return snap.result, nil
	case age < c.stale:
		c.opts.metrics.RecordCacheLookup(TierStale)
		c.startBackground(ctx, fp, entry, raw)
		return snap.result, nil
	default:
		c.opts.metrics.RecordCacheLookup(TierExpired)
		return c.revalidate(ctx, fp, entry, raw, TierExpired)
	}
}

// Len returns the number of cached (address, key) pairs.
func (c *CachedValidator) Len() int {
	return int(c.size.Load())
}

// startBackground launches at most one revalidation per entry. The caller
// does not wait for it.
func (c *CachedValidator) startBackground(ctx context.Context, fp string, entry *cacheEntry, raw string) {
	if !entry.refreshing.CompareAndSwap(false, true) {
		return
	}
	bg := context.WithoutCancel(ctx)
	c.opts.logger.Debug(bg, "starting background revalidation")
	done := c.group.DoChan(fp, func() (interface{}, error) {
		return c.verify(bg, entry, raw, "background")
	})
	// The call may have joined a synchronous revalidation, so the claim is
	// released when the shared result arrives rather than inside the call.
	go func() {
		<-done
		entry.refreshing.Store(false)
	}()
}

// revalidate runs a synchronous validation, or waits for the one in flight.
func (c *CachedValidator) revalidate(ctx context.Context, fp string, entry *cacheEntry, raw, tier string) (*Result, error) {
	v, err, shared := c.group.Do(fp, func() (interface{}, error) {
		return c.verify(context.WithoutCancel(ctx), entry, raw, "sync")
	})
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("apikey.cache.tier", tier),
		attribute.Bool("apikey.cache.shared", shared),
	)
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (c *CachedValidator) verify(ctx context.Context, entry *cacheEntry, raw, mode string) (*Result, error) {
	result, err := c.validator.TryValidate(ctx, raw)
	c.opts.metrics.RecordCacheRefresh(mode, err)
	if err != nil {
		c.opts.logger.Warn(ctx, "revalidation failed; keeping previous result",
			logger.String("mode", mode), logger.Err(err))
		return nil, err
	}
	entry.snapshot.Store(&cacheSnapshot{lastVerified: c.clock.Now(), result: result})
	return result, nil
}
