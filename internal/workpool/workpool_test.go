package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}

	results, err := Map(context.Background(), 3, items, func(ctx context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * n, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{25, 16, 9, 4, 1}, results)
}

func TestMap_RespectsLimit(t *testing.T) {
	var inFlight, peak int32
	items := make([]int, 20)

	_, err := Map(context.Background(), 2, items, func(ctx context.Context, _ int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0, nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestMap_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var started int32

	_, err := Map(context.Background(), 1, []int{1, 2, 3, 4}, func(ctx context.Context, n int) (int, error) {
		atomic.AddInt32(&started, 1)
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.LessOrEqual(t, atomic.LoadInt32(&started), int32(3))
}

func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	_, err := Map(ctx, 4, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return n, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestMap_EmptyInput(t *testing.T) {
	results, err := Map(context.Background(), 0, []string{}, func(ctx context.Context, s string) (string, error) {
		return s, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

