package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type classifiedError struct {
	msg       string
	retryable bool
}

func (e *classifiedError) Error() string     { return e.msg }
func (e *classifiedError) IsRetryable() bool { return e.retryable }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, 5, cfg.MaxSameErrorType)
}

func TestLLMConfig(t *testing.T) {
	cfg := LLMConfig()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Greater(t, cfg.InitialDelay, DefaultConfig().InitialDelay)
}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return fmt.Errorf("attempt %d", calls)
	})
	require.Error(t, err)
	assert.Equal(t, "attempt 3", err.Error())
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_NilConfigUsesDefaults(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "pool", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "pool", got)
	assert.Equal(t, 2, calls)
}

func TestDoWithResult_KeepsLastResultOnError(t *testing.T) {
	got, err := DoWithResult(context.Background(), fastConfig(1), func() (int, error) {
		return 7, errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 7, got)
}

func TestBackoff_RespectsMaxDelay(t *testing.T) {
	b := newBackoff(&Config{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 10})
	require.NoError(t, b.wait(context.Background()))
	assert.Equal(t, 2*time.Millisecond, b.delay)
	require.NoError(t, b.wait(context.Background()))
	assert.Equal(t, 2*time.Millisecond, b.delay)
}

func TestApplyJitter(t *testing.T) {
	assert.Equal(t, time.Second, applyJitter(time.Second, 0))
	for i := 0; i < 50; i++ {
		d := applyJitter(time.Second, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"mysql bad connection", errors.New("driver: bad connection"), true},
		{"pg closed", errors.New("server closed the connection unexpectedly"), true},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"anthropic overloaded", errors.New("529 overloaded_error: Overloaded"), true},
		{"syntax error", errors.New("ERROR: syntax error at or near \"FROM\""), false},
		{"auth", errors.New("401 unauthorized"), false},
		{"explicit retryable", &classifiedError{msg: "x", retryable: true}, true},
		{"explicit permanent", &classifiedError{msg: "timeout", retryable: false}, false},
		{"wrapped explicit", fmt.Errorf("ctx: %w", &classifiedError{msg: "x", retryable: true}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestClassifyErrorType(t *testing.T) {
	assert.Equal(t, "nil", classifyErrorType(nil))
	assert.Equal(t, "503", classifyErrorType(errors.New("HTTP 503 service unavailable")))
	assert.Equal(t, "connection", classifyErrorType(errors.New("driver: bad connection")))
	assert.Equal(t, "timeout", classifyErrorType(errors.New("i/o timeout")))
	assert.Equal(t, "rate_limit", classifyErrorType(errors.New("rate limit reached")))
	assert.Equal(t, "overloaded", classifyErrorType(errors.New("overloaded")))
	assert.Equal(t, "unknown", classifyErrorType(errors.New("weird")))
}

func TestDoIfRetryable_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_RetriesTransient(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 2

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("429 rate limit")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated error (2 times, type=429)")
	assert.Equal(t, 2, calls)
}

func TestDoIfRetryable_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(2), func() error {
		calls++
		return &classifiedError{msg: fmt.Sprintf("flaky %d", calls), retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
