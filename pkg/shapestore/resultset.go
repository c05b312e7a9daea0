package shapestore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ResultSet is a single-pass sequence of records.
//
//	rs, err := store.Query(ctx, q)
//	if err != nil {
//	    return err
//	}
//	defer rs.Close()
//	for rs.Next() {
//	    rec := rs.Record()
//	    // ...
//	}
//	return rs.Err()
//
// Close may be called at any point, more than once, and from another
// goroutine than the one iterating. Every result set must be closed or
// drained; both release the store files it reads from.
type ResultSet interface {
	// Next advances to the next record, blocking until one is available.
	// It returns false at the end of the sequence, after Close, or on error.
	Next() bool

	// Record returns the record Next advanced to.
	Record() *Record

	// Err returns the error that ended iteration early, if any.
	Err() error

	// Close stops production and releases resources.
	Close() error

	// Collect drains the remaining records into a slice and closes the set.
	Collect() ([]*Record, error)
}

// memoryResult serves records that were computed before Query returned.
type memoryResult struct {
	records []*Record
	pos     int
	cur     *Record
	closed  atomic.Bool
	once    sync.Once
	release func()
}

func newMemoryResult(records []*Record, release func()) *memoryResult {
	return &memoryResult{records: records, release: release}
}

func (m *memoryResult) Next() bool {
	if m.closed.Load() || m.pos >= len(m.records) {
		m.cur = nil
		return false
	}
	m.cur = m.records[m.pos]
	m.records[m.pos] = nil
	m.pos++
	return true
}

func (m *memoryResult) Record() *Record { return m.cur }

func (m *memoryResult) Err() error { return nil }

func (m *memoryResult) Close() error {
	m.once.Do(func() {
		m.closed.Store(true)
		if m.release != nil {
			m.release()
		}
	})
	return nil
}

func (m *memoryResult) Collect() ([]*Record, error) {
	return collect(m)
}

// Len returns the number of records not yet consumed.
func (m *memoryResult) Len() int { return len(m.records) - m.pos }

// producer writes records through emit until it runs out or emit reports
// that the consumer is gone.
type producer func(ctx context.Context, emit func(*Record) bool) error

// streamResult runs a producer on a pool worker and hands records to the
// consumer through a bounded queue. A full queue pauses the producer until
// the consumer has drained it below the low watermark.
type streamResult struct {
	queue   chan *Record
	resume  chan struct{}
	paused  atomic.Bool
	minFill int
	cancel  context.CancelFunc

	cur     *Record
	closed  atomic.Bool
	once    sync.Once
	release func()

	mu        sync.Mutex
	err       error
	cancelled bool
}

func newStreamResult(ctx context.Context, pool *WorkerPool, queueSize, minFill int, produce producer, release func()) *streamResult {
	if queueSize < 1 {
		queueSize = 1
	}
	minFill = min(max(minFill, 1), queueSize)

	ctx, cancel := context.WithCancel(ctx)
	s := &streamResult{
		queue:   make(chan *Record, queueSize),
		resume:  make(chan struct{}, 1),
		minFill: minFill,
		cancel:  cancel,
		release: release,
	}
	go s.run(ctx, pool, produce)
	return s
}

func (s *streamResult) run(ctx context.Context, pool *WorkerPool, produce producer) {
	defer close(s.queue)

	if err := pool.acquire(ctx); err != nil {
		s.setErr(err)
		return
	}
	defer pool.release()

	s.setErr(produce(ctx, func(r *Record) bool { return s.emit(ctx, r) }))
}

func (s *streamResult) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, context.Canceled) && s.cancelled {
		err = nil
	}
	s.err = err
}

// emit queues r, waiting while the queue is full. It returns false once the
// result set is closed or its context is done.
func (s *streamResult) emit(ctx context.Context, r *Record) bool {
	select {
	case s.queue <- r:
		return true
	case <-ctx.Done():
		return false
	default:
	}

	// Drop a stale wake-up before pausing.
	select {
	case <-s.resume:
	default:
	}
	s.paused.Store(true)
	if len(s.queue) >= s.minFill {
		select {
		case <-s.resume:
		case <-ctx.Done():
			s.paused.Store(false)
			return false
		}
	}
	s.paused.Store(false)

	select {
	case s.queue <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *streamResult) Next() bool {
	if s.closed.Load() {
		s.cur = nil
		return false
	}
	r, ok := <-s.queue
	if !ok {
		s.cur = nil
		_ = s.Close()
		return false
	}
	if s.paused.Load() && len(s.queue) < s.minFill {
		select {
		case s.resume <- struct{}{}:
		default:
		}
	}
	s.cur = r
	return true
}

func (s *streamResult) Record() *Record { return s.cur }

func (s *streamResult) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the producer, waits for it to exit and releases the store
// files.
func (s *streamResult) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()

		s.closed.Store(true)
		s.cancel()
		for range s.queue {
		}
		if s.release != nil {
			s.release()
		}
	})
	return nil
}

func (s *streamResult) Collect() ([]*Record, error) {
	return collect(s)
}

func collect(rs ResultSet) ([]*Record, error) {
	var out []*Record
	for rs.Next() {
		out = append(out, rs.Record())
	}
	err := rs.Err()
	_ = rs.Close()
	return out, err
}
