package llm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move the breaker past ResetAfter without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: 30 * time.Second})
	cb.now = clock.Now
	return cb, clock
}

func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.RecordFailure()
	}
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())

	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
}

func TestCircuitBreaker_Threshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	trip(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State(), "below threshold stays closed")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 3, cb.ConsecutiveFailures())

	allowed, err := cb.Allow()
	assert.False(t, allowed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(5)
	trip(cb, 3)

	cb.RecordSuccess()

	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Run("probe allowed after reset period", func(t *testing.T) {
		cb, clock := newTestBreaker(3)
		trip(cb, 3)

		allowed, _ := cb.Allow()
		assert.False(t, allowed, "rejected immediately after tripping")

		clock.Advance(31 * time.Second)
		allowed, err := cb.Allow()
		assert.True(t, allowed)
		assert.NoError(t, err)
		assert.Equal(t, CircuitHalfOpen, cb.State())
	})

	t.Run("second caller rejected while probing", func(t *testing.T) {
		cb, clock := newTestBreaker(3)
		trip(cb, 3)
		clock.Advance(31 * time.Second)
		_, _ = cb.Allow()

		allowed, err := cb.Allow()
		assert.False(t, allowed)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	})

	t.Run("probe success closes", func(t *testing.T) {
		cb, clock := newTestBreaker(3)
		trip(cb, 3)
		clock.Advance(31 * time.Second)
		_, _ = cb.Allow()

		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.State())
	})

	t.Run("probe failure reopens", func(t *testing.T) {
		cb, clock := newTestBreaker(3)
		trip(cb, 3)
		clock.Advance(31 * time.Second)
		_, _ = cb.Allow()

		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())
		allowed, _ := cb.Allow()
		assert.False(t, allowed)
	})
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb, _ := newTestBreaker(2)
	boom := errors.New("boom")
	calls := 0
	failing := func() error { calls++; return boom }

	assert.ErrorIs(t, cb.Execute(failing), boom)
	assert.ErrorIs(t, cb.Execute(failing), boom)
	assert.ErrorIs(t, cb.Execute(failing), ErrCircuitOpen)
	assert.Equal(t, 2, calls, "open breaker must not invoke fn")

	cb.Reset()
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	assert.Equal(t, 5, config.Threshold)
	assert.Equal(t, 30*time.Second, config.ResetAfter)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1000, ResetAfter: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = cb.Allow()
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cb.ConsecutiveFailures(), 50)
}
