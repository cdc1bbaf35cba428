package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventQueue fans change events out to a bounded pool of workers, each
// handling one record end to end. Records are independent; no ordering is
// guaranteed across them.
type EventQueue struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	workers    int
	timeout    time.Duration

	ch   chan ChangeEvent
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*EventQueue)

func WithWorkers(n int) Option {
	return func(q *EventQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *EventQueue) {
		if n > 0 {
			q.ch = make(chan ChangeEvent, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *EventQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewEventQueue(dispatcher *Dispatcher, logger *slog.Logger, opts ...Option) *EventQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &EventQueue{
		dispatcher: dispatcher,
		logger:     logger,
		workers:    4,
		timeout:    2 * time.Minute,
		ch:         make(chan ChangeEvent, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *EventQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for ev := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					q.dispatcher.HandleEvent(ctx, ev)
					cancel()
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue hands an event to the pool, blocking for backpressure when the
// buffer is full. Events arriving after Shutdown are dropped.
func (q *EventQueue) Enqueue(_ context.Context, ev ChangeEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "record_id", ev.Record.ID)
		return nil
	}
	select {
	case q.ch <- ev:
	default:
		q.logger.Warn("queue full, applying backpressure", "record_id", ev.Record.ID)
		q.ch <- ev
	}
	return nil
}

// Shutdown stops intake and waits for in-flight records, bounded by ctx.
func (q *EventQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
