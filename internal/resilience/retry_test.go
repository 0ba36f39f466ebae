package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond}
}

func TestDoVal_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastPolicy(3), "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", MarkTransient(eris.New("relay unavailable"), 503)
		}
		return "msg-1", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := eris.New("recipient rejected")
	err := Do(context.Background(), fastPolicy(3), "test", func(ctx context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), "test", func(ctx context.Context) error {
		calls++
		return MarkTransient(eris.New("timeout"), 504)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy(5), "test", func(ctx context.Context) error {
		calls++
		cancel()
		return MarkTransient(eris.New("reset"), 0)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), "%d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, RetryableStatus(code), "%d", code)
	}
}

func TestTransient(t *testing.T) {
	assert.False(t, Transient(nil))
	assert.False(t, Transient(eris.New("invalid recipient")))
	assert.True(t, Transient(MarkTransient(eris.New("503"), 503)))
	assert.True(t, Transient(eris.Wrap(MarkTransient(eris.New("503"), 503), "dispatcher: send email")))
	assert.True(t, Transient(eris.New("read tcp: i/o timeout")))
	assert.True(t, Transient(eris.New("dial tcp: lookup relay.example: no such host")))
}
