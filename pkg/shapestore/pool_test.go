package shapestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultWorkers, DefaultWorkerPool().Size())
	assert.Same(t, DefaultWorkerPool(), DefaultWorkerPool())
	assert.Equal(t, 1, NewWorkerPool(0).Size())

	p := NewWorkerPool(2)
	ctx := context.Background()
	require.NoError(t, p.acquire(ctx))
	require.NoError(t, p.acquire(ctx))
	assert.Equal(t, 2, p.Busy())

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.acquire(short), context.DeadlineExceeded)
	assert.Equal(t, 0, p.Waiting())

	p.release()
	require.NoError(t, p.acquire(ctx))
	p.release()
	p.release()
	assert.Equal(t, 0, p.Busy())

	require.NoError(t, p.throttle(ctx), "unlimited pool never throttles")
}

func TestWorkerPoolRecordRate(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool(1, WithRecordRate(1))
	ctx := context.Background()
	require.NoError(t, p.throttle(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, p.throttle(cancelled))

	fast := NewWorkerPool(1, WithRecordRate(10000))
	s := openStore(t, writePoints(t, t.TempDir(), "pts", 50), streamingOptions(fast, 8, 2))
	records, err := mustQuery(t, s).Collect()
	require.NoError(t, err)
	assert.Len(t, records, 50)

	assert.Nil(t, NewWorkerPool(1, WithRecordRate(0)).limiter)
}
