package circuit_breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libshelf/borrow-service/pkg/circuit_breaker"
)

func Test_circuitBreaker_Call(t *testing.T) {
	okService := func() error { return nil }
	failingService := func() error { return errors.New("service error") }

	cb := circuit_breaker.New(10, 200*time.Millisecond, 0.30, 3)

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(okService))
	}

	// push failure ratio above the percentile: the breaker opens
	for i := 0; i < 10; i++ {
		_ = cb.Call(failingService)
	}
	require.ErrorIs(t, cb.Call(okService), circuit_breaker.ErrOpenCB)

	// after the timeout it half-opens and recovers on consecutive successes
	time.Sleep(250 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, cb.Call(okService))
	}
	require.NoError(t, cb.Call(okService))

	// a failure in half-open slams it shut again
	for i := 0; i < 10; i++ {
		_ = cb.Call(failingService)
	}
	time.Sleep(250 * time.Millisecond)
	require.Error(t, cb.Call(failingService))
	require.ErrorIs(t, cb.Call(okService), circuit_breaker.ErrOpenCB)

	cb.Reset()
	require.NoError(t, cb.Call(okService))
}
