package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = NewTransientError(errors.New("busy"), 503)

func fail(_ context.Context) (int, error) { return 0, errBusy }
func succeed(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("youtube", BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Execute(ctx, b, fail)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, b.State())

	called := false
	_, err := Execute(ctx, b, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.True(t, eris.Is(err, ErrCircuitOpen))
	assert.False(t, called)
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("twitter", BreakerConfig{FailureThreshold: 2})
	for i := 0; i < 5; i++ {
		_, _ = Execute(context.Background(), b, func(_ context.Context) (int, error) {
			return 0, errors.New("bad query")
		})
	}
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker("stripe", BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_, _ = Execute(ctx, b, fail)
	_, _ = Execute(ctx, b, succeed)
	_, _ = Execute(ctx, b, fail)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("youtube", BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Execute(ctx, b, fail)
	assert.Equal(t, CircuitOpen, b.State())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, b.State())

	// failed probe reopens
	_, _ = Execute(ctx, b, fail)
	assert.Equal(t, CircuitOpen, b.State())

	now = now.Add(2 * time.Minute)
	v, err := Execute(ctx, b, succeed)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_Concurrent(t *testing.T) {
	b := NewBreaker("youtube", BreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Execute(context.Background(), b, fail)
			_, _ = Execute(context.Background(), b, succeed)
		}()
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakers_Registry(t *testing.T) {
	reg := NewBreakers(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	a := reg.Get("youtube")
	assert.Same(t, a, reg.Get("youtube"))
	assert.NotSame(t, a, reg.Get("twitter"))

	_, _ = Execute(context.Background(), a, fail)
	states := reg.States()
	assert.Equal(t, "open", states["youtube"])
	assert.Equal(t, "closed", states["twitter"])
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
