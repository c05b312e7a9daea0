package shapestore

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamingOptions(pool *WorkerPool, queueSize, minFill int) Options {
	opts := DefaultOptions()
	opts.Pool = pool
	opts.EagerThreshold = -1
	opts.QueueSize = queueSize
	opts.QueueMinFill = minFill
	return opts
}

func TestStreamingMatchesMemory(t *testing.T) {
	t.Parallel()

	path := writePoints(t, t.TempDir(), "pts", 250)

	streamOpts := streamingOptions(NewWorkerPool(2), 16, 4)
	streamOpts.ReadOnly = true
	streaming := openStore(t, path, streamOpts)

	memOpts := DefaultOptions()
	memOpts.Pool = NewWorkerPool(2)
	memOpts.EagerThreshold = 1000
	memOpts.ReadOnly = true
	memory := openStore(t, path, memOpts)

	srs := mustQuery(t, streaming)
	require.IsType(t, &streamResult{}, srs)
	mrs := mustQuery(t, memory)
	require.IsType(t, &memoryResult{}, mrs)

	fromStream, err := srs.Collect()
	require.NoError(t, err)
	fromMemory, err := mrs.Collect()
	require.NoError(t, err)

	require.Len(t, fromStream, 250)
	require.Len(t, fromMemory, 250)
	a, b := recordIDs(fromStream), recordIDs(fromMemory)
	slices.Sort(a)
	slices.Sort(b)
	assert.Equal(t, a, b)
}

func TestStreamingOrderUnderBackpressure(t *testing.T) {
	t.Parallel()

	s := openStore(t, writePoints(t, t.TempDir(), "pts", 100), streamingOptions(NewWorkerPool(1), 5, 2))
	rs := mustQuery(t, s)
	defer rs.Close()

	var got []int
	for rs.Next() {
		got = append(got, rs.Record().ID)
		if len(got)%10 == 0 {
			// Let the producer fill the queue and pause.
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.NoError(t, rs.Err())

	want := make([]int, 100)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, got)
}

func TestResultSetCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openStore(t, writePoints(t, t.TempDir(), "pts", 200), streamingOptions(NewWorkerPool(1), 4, 1))

	for _, opts := range [][]QueryOption{nil, {WithEagerEvaluation()}} {
		rs := mustQuery(t, s, opts...)
		for range 3 {
			require.True(t, rs.Next())
		}
		require.NoError(t, rs.Close())
		require.NoError(t, rs.Close())
		assert.False(t, rs.Next())
		assert.Nil(t, rs.Record())
		assert.NoError(t, rs.Err())

		records, err := rs.Collect()
		require.NoError(t, err)
		assert.Empty(t, records)
	}

	s.mu.Lock()
	refs := s.gen.refs.Load()
	s.mu.Unlock()
	assert.Equal(t, int64(1), refs, "closed result sets still hold the generation")
}

func TestResultSetOutlivesStore(t *testing.T) {
	t.Parallel()

	s, err := Open(writePoints(t, t.TempDir(), "pts", 120), streamingOptions(NewWorkerPool(1), 8, 2))
	require.NoError(t, err)

	rs := mustQuery(t, s)
	gen := s.gen
	require.NoError(t, s.Close())

	records, err := rs.Collect()
	require.NoError(t, err)
	assert.Len(t, records, 120)
	assert.Equal(t, int64(0), gen.refs.Load())
	assert.Equal(t, int64(0), gen.geom.refs.Load())
}

func TestPoolAdmission(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(1)
	s := openStore(t, writePoints(t, t.TempDir(), "pts", 50), streamingOptions(pool, 2, 1))

	first := mustQuery(t, s)
	require.True(t, first.Next())

	second := mustQuery(t, s)
	require.Eventually(t, func() bool {
		return pool.Busy() == 1 && pool.Waiting() == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, first.Close())

	records, err := second.Collect()
	require.NoError(t, err)
	assert.Len(t, records, 50)
	assert.Equal(t, 0, pool.Busy())
}

func TestQueuedResultSetClosedBeforeAdmission(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(1)
	s := openStore(t, writePoints(t, t.TempDir(), "pts", 50), streamingOptions(pool, 2, 1))

	first := mustQuery(t, s)
	second := mustQuery(t, s)
	require.Eventually(t, func() bool { return pool.Waiting() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, second.Close())
	assert.NoError(t, second.Err())
	assert.Equal(t, 0, pool.Waiting())

	require.NoError(t, first.Close())
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()

	s := openStore(t, writePoints(t, t.TempDir(), "pts", 500), streamingOptions(NewWorkerPool(1), 4, 1))

	ctx, cancel := context.WithCancel(context.Background())
	rs, err := s.Query(ctx, NewQuery())
	require.NoError(t, err)
	defer rs.Close()

	require.True(t, rs.Next())
	cancel()

	n := 1
	for rs.Next() {
		n++
	}
	assert.Less(t, n, 500)
	require.ErrorIs(t, rs.Err(), context.Canceled)
}

func TestMemoryResult(t *testing.T) {
	t.Parallel()

	released := 0
	rs := newMemoryResult([]*Record{{ID: 1}, {ID: 2}, {ID: 3}}, func() { released++ })
	assert.Equal(t, 3, rs.Len())

	require.True(t, rs.Next())
	assert.Equal(t, 1, rs.Record().ID)

	rest, err := rs.Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, recordIDs(rest))

	require.NoError(t, rs.Close())
	assert.Equal(t, 1, released)
}
