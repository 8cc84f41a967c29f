package lazy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellInitOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(0, func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	})

	const n = 32
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.Equal(t, 42, v)
	}

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, int32(1), calls.Load())
}

func TestCellFailureIsNotCached(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	c := New(0, func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", boom
		}
		return "ok", nil
	})

	_, err := c.Get(context.Background())
	require.ErrorIs(t, err, boom)
	_, ok := c.Peek()
	require.False(t, ok)

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, int32(2), calls.Load())
}

func TestCellReset(t *testing.T) {
	var calls atomic.Int32
	c := New(0, func(context.Context) (int32, error) { return calls.Add(1), nil })

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), v)

	old, ok := c.Reset()
	require.True(t, ok)
	require.Equal(t, int32(1), old)

	v, err = c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), v)
}

func TestCellCallerCancelDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	c := New(time.Second, func(ctx context.Context) (int, error) {
		calls.Add(1)
		close(started)
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(first)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.Get(context.Background())
		second <- result{v, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, 7, got.v)
	require.Equal(t, int32(1), calls.Load())

	v, ok := c.Peek()
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestCellInitIsBoundedByTimeout(t *testing.T) {
	c := New(20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	_, err := c.Get(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := c.Peek()
	require.False(t, ok)
}
