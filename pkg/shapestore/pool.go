package shapestore

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultWorkers is the size of the process-wide worker pool.
const DefaultWorkers = 10

// WorkerPool bounds the number of streaming result sets producing records at
// the same time. A result set opened while every worker is busy waits for a
// free worker before it reads anything. Pools are safe for concurrent use and
// may be shared by any number of stores.
type WorkerPool struct {
	size    int64
	sem     *semaphore.Weighted
	limiter *rate.Limiter // nil if unlimited
	busy    atomic.Int64
	waiting atomic.Int64
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithRecordRate caps the records per second read by all workers of the
// pool together. Zero or less means unlimited.
func WithRecordRate(perSecond float64) PoolOption {
	return func(p *WorkerPool) {
		if perSecond > 0 {
			burst := max(int(perSecond), 1)
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewWorkerPool returns a pool of n workers; n below 1 means 1.
func NewWorkerPool(n int, opts ...PoolOption) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{size: int64(n), sem: semaphore.NewWeighted(int64(n))}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var (
	defaultPoolOnce sync.Once
	defaultPool     *WorkerPool
)

// DefaultWorkerPool returns the pool shared by stores opened without one.
func DefaultWorkerPool() *WorkerPool {
	defaultPoolOnce.Do(func() { defaultPool = NewWorkerPool(DefaultWorkers) })
	return defaultPool
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return int(p.size) }

// Busy returns the number of workers currently running a producer.
func (p *WorkerPool) Busy() int { return int(p.busy.Load()) }

// Waiting returns the number of producers queued for a worker.
func (p *WorkerPool) Waiting() int { return int(p.waiting.Load()) }

// acquire blocks until a worker is free or ctx is done.
func (p *WorkerPool) acquire(ctx context.Context) error {
	p.waiting.Add(1)
	defer p.waiting.Add(-1)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.busy.Add(1)
	return nil
}

func (p *WorkerPool) release() {
	p.busy.Add(-1)
	p.sem.Release(1)
}

// throttle waits for permission to read one more record.
func (p *WorkerPool) throttle(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
