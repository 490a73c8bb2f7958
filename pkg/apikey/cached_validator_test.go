package apikey_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/pkg/apikey"
)

const (
	freshWindow = 100 * time.Millisecond
	staleWindow = 500 * time.Millisecond
	remoteAddr  = "10.0.0.1"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingValidator counts calls and can be made to block until released.
type countingValidator struct {
	calls   atomic.Int64
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
	result  *apikey.Result
	err     error
}

func newCountingValidator() *countingValidator {
	return &countingValidator{result: &apikey.Result{Success: true, Key: &apikey.PersistedKey{Name: "cached"}}}
}

func (v *countingValidator) TryValidate(_ context.Context, _ string) (*apikey.Result, error) {
	v.calls.Add(1)
	v.mu.Lock()
	gate, entered, result, err := v.gate, v.entered, v.result, v.err
	v.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return result, err
}

// block makes subsequent calls wait; the returned func releases them.
func (v *countingValidator) block() (entered <-chan struct{}, release func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	gate := make(chan struct{})
	in := make(chan struct{}, 16)
	v.gate, v.entered = gate, in
	return in, func() {
		v.mu.Lock()
		v.gate, v.entered = nil, nil
		v.mu.Unlock()
		close(gate)
	}
}

func (v *countingValidator) set(result *apikey.Result, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.result, v.err = result, err
}

func TestCachedValidator_FreshAndExpiredTiers(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	inner := newCountingValidator()
	cache := apikey.NewCachedValidator(inner, clock, freshWindow, staleWindow)

	first, err := cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, int64(1), inner.calls.Load())

	clock.Advance(50 * time.Millisecond)
	second, err := cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load(), "fresh results need no work")

	clock.Advance(550 * time.Millisecond)
	_, err = cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load(), "expired results are revalidated synchronously")
	assert.Equal(t, 1, cache.Len())
}

func TestCachedValidator_StaleTierRefreshesOnceInBackground(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	inner := newCountingValidator()
	cache := apikey.NewCachedValidator(inner, clock, freshWindow, staleWindow)

	original, err := cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)

	entered, release := inner.block()
	refreshed := &apikey.Result{Success: false, Message: "Repository does not contain a key matching this ID."}
	inner.set(refreshed, nil)
	clock.Advance(200 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cache.TryValidate(ctx, "key", remoteAddr)
			assert.NoError(t, err)
			assert.Same(t, original, res, "stale callers get the cached result without waiting")
		}()
	}
	wg.Wait()

	<-entered
	assert.Equal(t, int64(2), inner.calls.Load(), "only one background revalidation starts")
	release()

	assert.Eventually(t, func() bool {
		res, err := cache.TryValidate(ctx, "key", remoteAddr)
		return err == nil && res == refreshed
	}, time.Second, 5*time.Millisecond)
}

func TestCachedValidator_ExpiredJoinsInflightRefresh(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	inner := newCountingValidator()
	cache := apikey.NewCachedValidator(inner, clock, freshWindow, staleWindow)

	_, err := cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)

	entered, release := inner.block()
	clock.Advance(200 * time.Millisecond)
	_, err = cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)
	<-entered

	clock.Advance(400 * time.Millisecond)
	done := make(chan *apikey.Result)
	go func() {
		res, err := cache.TryValidate(ctx, "key", remoteAddr)
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case <-done:
		t.Fatal("expired caller must wait for the in-flight revalidation")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	res := <-done
	assert.True(t, res.Success)
	assert.Equal(t, int64(2), inner.calls.Load(), "the expired caller reused the background result")
}

func TestCachedValidator_CachesFailures(t *testing.T) {
	ctx := context.Background()
	inner := newCountingValidator()
	inner.set(&apikey.Result{Message: "Key is null or empty."}, nil)
	cache := apikey.NewCachedValidator(inner, newFakeClock(), freshWindow, staleWindow)

	for i := 0; i < 3; i++ {
		res, err := cache.TryValidate(ctx, "", remoteAddr)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "Key is null or empty.", res.Message)
	}
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedValidator_ErrorKeepsPreviousResult(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	inner := newCountingValidator()
	cache := apikey.NewCachedValidator(inner, clock, freshWindow, staleWindow)

	original, err := cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)

	clock.Advance(staleWindow)
	inner.set(nil, stderrors.New("repository down"))
	res, err := cache.TryValidate(ctx, "key", remoteAddr)
	assert.Nil(t, res)
	assert.EqualError(t, err, "repository down")

	inner.set(original, nil)
	res, err = cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)
	assert.Same(t, original, res)
	assert.Equal(t, int64(3), inner.calls.Load(), "a failed revalidation is retried on the next call")
}

func TestCachedValidator_KeyedByAddressAndKey(t *testing.T) {
	ctx := context.Background()
	inner := newCountingValidator()
	cache := apikey.NewCachedValidator(inner, newFakeClock(), freshWindow, staleWindow)

	for _, call := range [][2]string{{"a", "1.1.1.1"}, {"a", "2.2.2.2"}, {"b", "1.1.1.1"}, {"a", "1.1.1.1"}} {
		_, err := cache.TryValidate(ctx, call[0], call[1])
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), inner.calls.Load())
	assert.Equal(t, 3, cache.Len())

	assert.Equal(t, apikey.Fingerprint("1.1.1.1", "a"), apikey.Fingerprint("1.1.1.1", "a"))
	assert.NotEqual(t, apikey.Fingerprint("1.1.1.1", "a"), apikey.Fingerprint("1.1.1.1:a", ""))
	assert.Len(t, apikey.Fingerprint("", ""), 88)
}

func TestCachedValidator_ConcurrentFirstObservation(t *testing.T) {
	ctx := context.Background()
	inner := newCountingValidator()
	entered, release := inner.block()
	cache := apikey.NewCachedValidator(inner, newFakeClock(), freshWindow, staleWindow)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cache.TryValidate(ctx, "key", remoteAddr)
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	<-entered
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, cache.Len())
	assert.LessOrEqual(t, inner.calls.Load(), int64(2))
}

func TestCachedValidator_RevocationWithinStaleWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := newTestRepository(shaAlgorithm())
	validator := apikey.NewValidator(repo)
	cache := apikey.NewCachedValidator(validator, clock, freshWindow, staleWindow)

	p := &apikey.PersistedKey{Name: "revocable"}
	raw, err := validator.GenerateKey(ctx, p, nil)
	require.NoError(t, err)

	res, err := cache.TryValidate(ctx, raw, remoteAddr)
	require.NoError(t, err)
	require.True(t, res.Success)

	repo.revoke(p.ID)
	clock.Advance(50 * time.Millisecond)
	res, err = cache.TryValidate(ctx, raw, remoteAddr)
	require.NoError(t, err)
	assert.True(t, res.Success, "revocation is not visible inside the fresh window")

	clock.Advance(staleWindow)
	res, err = cache.TryValidate(ctx, raw, remoteAddr)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Repository does not contain a key matching this ID.", res.Message)
}

func TestCachedValidator_NegativeAgeIsFresh(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	inner := newCountingValidator()
	cache := apikey.NewCachedValidator(inner, clock, freshWindow, staleWindow)

	_, err := cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)
	clock.Advance(-time.Hour)
	_, err = cache.TryValidate(ctx, "key", remoteAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.calls.Load())
}
