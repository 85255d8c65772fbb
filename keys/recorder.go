package keys

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/keystore"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Buffer is the number of pending updates held before new ones are dropped.
	// Default: 256
	Buffer int

	// Timeout bounds one store update, including retries.
	// Default: 2s
	Timeout time.Duration

	// Retry governs retries of a failed store update.
	// Default: 3 attempts starting at 50ms
	Retry *resilience.Retry

	// Logger receives dropped and failed updates.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

type touch struct {
	id string
	at time.Time
}

// Recorder applies last-used timestamps asynchronously.
//
// Contract:
//   - Concurrency: Touch is safe for concurrent use and never blocks.
//   - Errors: failed updates are logged and dropped; they never reach the
//     authentication that produced them.
//   - Lifecycle: Close drains pending updates and stops the worker.
type Recorder struct {
	store   keystore.Store
	timeout time.Duration
	retry   *resilience.Retry
	logger  observe.Logger

	queue     chan touch
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	applied atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder starts a Recorder writing to store.
func NewRecorder(store keystore.Store, cfg RecorderConfig) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			RetryIf:      retryable,
		})
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	r := &Recorder{
		store:   store,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		logger:  cfg.Logger,
		queue:   make(chan touch, cfg.Buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func retryable(err error) bool {
	return !errors.Is(err, keystore.ErrNotFound) &&
		!errors.Is(err, keystore.ErrClosed) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Touch queues a last-used update for keyID.
func (r *Recorder) Touch(keyID string, at time.Time) {
	select {
	case <-r.quit:
		r.dropped.Add(1)
		return
	default:
	}
	select {
	case r.queue <- touch{id: keyID, at: at}:
	default:
		r.dropped.Add(1)
		r.logger.Warn(context.Background(), "last-used update dropped", observe.F("key_id", keyID))
	}
}

// Close stops accepting updates, applies the queued ones and waits for the
// worker to exit or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.quit) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Applied returns the number of updates written.
func (r *Recorder) Applied() int64 { return r.applied.Load() }

// Dropped returns the number of updates discarded because the buffer was full
// or the recorder was closed.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Failed returns the number of updates that exhausted their retries.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case t := <-r.queue:
			r.apply(t)
		case <-r.quit:
			for {
				select {
				case t := <-r.queue:
					r.apply(t)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) apply(t touch) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.retry.Execute(ctx, func(ctx context.Context) error {
		return r.store.Update(ctx, t.id, func(rec *keystore.Record) error {
			if rec.LastUsedAt == nil || t.at.After(*rec.LastUsedAt) {
				at := t.at.UTC()
				rec.LastUsedAt = &at
			}
			return nil
		})
	})
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn(ctx, "last-used update failed", observe.F("key_id", t.id), observe.F("error", err))
		return
	}
	r.applied.Add(1)
}

var _ auth.LastUsedRecorder = (*Recorder)(nil)
