package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Bulkhead limits concurrent operations.
type Bulkhead struct {
	sem      chan struct{}
	maxWait  time.Duration
	rejected atomic.Int64
}

// NewBulkhead creates a bulkhead admitting maxConcurrent operations
// (default 10). maxWait is how long a caller may queue for a slot; zero
// rejects immediately.
func NewBulkhead(maxConcurrent int, maxWait time.Duration) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Bulkhead{
		sem:     make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Execute runs op inside a slot, or returns ErrBulkheadFull.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	release, err := b.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return op(ctx)
}

// Acquire takes a slot and returns the func that gives it back. Calling
// release more than once is a no-op.
func (b *Bulkhead) Acquire(ctx context.Context) (release func(), err error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { <-b.sem }) }, nil
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}
	if b.maxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-timer.C:
		b.rejected.Add(1)
		return ErrBulkheadFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of operations holding a slot.
func (b *Bulkhead) InFlight() int { return len(b.sem) }

// Capacity returns the maximum number of concurrent operations.
func (b *Bulkhead) Capacity() int { return cap(b.sem) }

// Rejected returns the number of operations turned away.
func (b *Bulkhead) Rejected() int64 { return b.rejected.Load() }
