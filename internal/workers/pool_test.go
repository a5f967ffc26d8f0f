package workers

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_DefaultsToCPUCount(t *testing.T) {
	p := NewPool(0)
	assert.Equal(t, runtime.NumCPU(), p.Size())

	p = NewPool(-3)
	assert.Equal(t, runtime.NumCPU(), p.Size())
}

func TestNewPool_ExplicitSize(t *testing.T) {
	p := NewPool(4)
	assert.Equal(t, 4, p.Size())
}

func TestPool_ForEach_VisitsEveryIndexOnce(t *testing.T) {
	p := NewPool(4)

	const n = 100
	visits := make([]atomic.Int32, n)

	err := p.ForEach(context.Background(), n, func(idx int) error {
		visits[idx].Add(1)
		return nil
	})

	require.NoError(t, err)
	for idx := range visits {
		assert.Equal(t, int32(1), visits[idx].Load(), "index %d", idx)
	}
}

func TestPool_ForEach_DisjointWritesPreserveOrder(t *testing.T) {
	p := NewPool(8)

	const n = 50
	results := make([]int, n)

	err := p.ForEach(context.Background(), n, func(idx int) error {
		results[idx] = idx * idx
		return nil
	})

	require.NoError(t, err)
	for idx := 0; idx < n; idx++ {
		assert.Equal(t, idx*idx, results[idx])
	}
}

func TestPool_ForEach_ZeroJobs(t *testing.T) {
	p := NewPool(4)

	called := atomic.Bool{}
	err := p.ForEach(context.Background(), 0, func(idx int) error {
		called.Store(true)
		return nil
	})

	require.NoError(t, err)
	assert.False(t, called.Load())
}

func TestPool_ForEach_BoundsConcurrency(t *testing.T) {
	p := NewPool(3)

	var active, peak atomic.Int32

	err := p.ForEach(context.Background(), 30, func(idx int) error {
		cur := active.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestPool_ForEach_FirstErrorWins(t *testing.T) {
	p := NewPool(2)

	wantErr := errors.New("row 7 failed")
	err := p.ForEach(context.Background(), 20, func(idx int) error {
		if idx == 7 {
			return wantErr
		}
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestPool_ForEach_ErrorStopsScheduling(t *testing.T) {
	p := NewPool(1)

	started := atomic.Int32{}
	err := p.ForEach(context.Background(), 100, func(idx int) error {
		started.Add(1)
		if idx == 0 {
			return assert.AnError
		}
		return nil
	})

	require.Error(t, err)
	// Single worker fails on the first job, so nothing else runs.
	assert.Equal(t, int32(1), started.Load())
}

func TestPool_ForEach_ContextCancelled(t *testing.T) {
	p := NewPool(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := atomic.Int32{}
	err := p.ForEach(ctx, 50, func(idx int) error {
		ran.Add(1)
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), ran.Load())
}

func TestPool_ForEach_CancelMidway(t *testing.T) {
	p := NewPool(1)

	ctx, cancel := context.WithCancel(context.Background())

	ran := atomic.Int32{}
	err := p.ForEach(ctx, 100, func(idx int) error {
		if ran.Add(1) == 5 {
			cancel()
		}
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// Cancellation is observed between jobs, so the fifth job completes
	// and no sixth job starts.
	assert.Equal(t, int32(5), ran.Load())
}

func TestPool_ForEach_MoreWorkersThanJobs(t *testing.T) {
	p := NewPool(64)

	visits := make([]atomic.Int32, 3)
	err := p.ForEach(context.Background(), 3, func(idx int) error {
		visits[idx].Add(1)
		return nil
	})

	require.NoError(t, err)
	for idx := range visits {
		assert.Equal(t, int32(1), visits[idx].Load())
	}
}
