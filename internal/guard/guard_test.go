package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// --- RateLimiter Tests ---

func TestRateLimiter_AllowsBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "at-eda:poll")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	ctx := context.Background()

	rl.Check(ctx, "at-eda:poll")
	rl.Check(ctx, "at-eda:poll")
	result := rl.Check(ctx, "at-eda:poll")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, "at-eda:poll").Allowed)
	assert.True(t, rl.Check(ctx, "at-eda:terminate").Allowed)
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	require.NoError(t, rl.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "k"))
}

// --- CircuitBreaker Tests ---

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	assert.True(t, cb.Check(context.Background(), "at-eda:poll").Allowed)
	assert.Equal(t, CircuitClosed, cb.State("at-eda:poll"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.RecordFailure("at-eda:poll")
	cb.RecordFailure("at-eda:poll")

	result := cb.Check(ctx, "at-eda:poll")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Equal(t, CircuitOpen, cb.State("at-eda:poll"))
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.RecordFailure("k")
	cb.RecordSuccess("k")
	cb.RecordFailure("k")

	assert.True(t, cb.Check(ctx, "k").Allowed)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = clock.now
	ctx := context.Background()

	cb.RecordFailure("k")
	assert.False(t, cb.Check(ctx, "k").Allowed)

	clock.advance(2 * time.Minute)
	assert.True(t, cb.Check(ctx, "k").Allowed, "first trial after timeout")
	assert.Equal(t, CircuitHalfOpen, cb.State("k"))
	assert.False(t, cb.Check(ctx, "k").Allowed, "only one trial at a time")

	cb.RecordSuccess("k")
	assert.Equal(t, CircuitClosed, cb.State("k"))
	assert.True(t, cb.Check(ctx, "k").Allowed)
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = clock.now

	for i := 0; i < 3; i++ {
		cb.RecordFailure("k")
	}
	clock.advance(2 * time.Minute)
	require.True(t, cb.Check(context.Background(), "k").Allowed)

	cb.RecordFailure("k")
	assert.Equal(t, CircuitOpen, cb.State("k"))
}

func TestCircuitBreaker_Do(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	ctx := context.Background()
	boom := errors.New("502 bad gateway")

	err := cb.Do(ctx, "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	called := false
	err = cb.Do(ctx, "k", func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

// --- IdempotencyGuard Tests ---

func TestIdempotencyGuard_AllowsFirst(t *testing.T) {
	ig := NewIdempotencyGuard(0)
	assert.True(t, ig.Check(context.Background(), "pid/accepted").Allowed)
}

func TestIdempotencyGuard_BlocksDuplicate(t *testing.T) {
	ig := NewIdempotencyGuard(0)
	ctx := context.Background()

	ig.Check(ctx, "pid/accepted")
	result := ig.Check(ctx, "pid/accepted")

	assert.False(t, result.Allowed)
	assert.Equal(t, "idempotency", result.Guard)
}

func TestIdempotencyGuard_EmptyKeyAllowed(t *testing.T) {
	ig := NewIdempotencyGuard(0)
	ctx := context.Background()

	assert.True(t, ig.Check(ctx, "").Allowed)
	assert.True(t, ig.Check(ctx, "").Allowed)
}

func TestIdempotencyGuard_RemoveAllowsRetry(t *testing.T) {
	ig := NewIdempotencyGuard(0)
	ctx := context.Background()

	ig.Check(ctx, "k")
	ig.Remove("k")
	assert.True(t, ig.Check(ctx, "k").Allowed)
}

func TestIdempotencyGuard_KeysExpire(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	ig := NewIdempotencyGuard(time.Hour)
	ig.now = clock.now
	ctx := context.Background()
	assert.Equal(t, time.Hour, ig.TTL())

	ig.Check(ctx, "a")
	assert.False(t, ig.Check(ctx, "a").Allowed)

	clock.advance(2 * time.Hour)
	assert.True(t, ig.Check(ctx, "b").Allowed)
	assert.Equal(t, 1, ig.Len(), "expired keys are evicted")
	assert.True(t, ig.Check(ctx, "a").Allowed)
}

func TestDeliveryKey(t *testing.T) {
	assert.Equal(t, "pid/accepted", DeliveryKey(domain.NewAcceptedEvent("pid")))
}
