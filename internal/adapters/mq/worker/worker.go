// Package worker runs the dispatch workers that drain the command queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tictac/internal/domain/dedupe"
	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/pkg/logger"
	"github.com/okian/tictac/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Handler processes one delivery. A non-nil error means the command's effect
// could not be attempted and a later redelivery should be allowed.
type Handler interface {
	Handle(ctx context.Context, d model.Delivery) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d model.Delivery) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, d model.Delivery) error { return f(ctx, d) }

// Acker removes the stored record of a command that was already handled.
type Acker interface {
	AckCommand(ctx context.Context, key string) error
}

// Queue defines how workers receive deliveries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Delivery
}

// Worker processes deliveries.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current delivery.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	dedupe  dedupe.Deduper
	acker   Acker
	name    string

	processed *atomic.Int64
	// inflight holds the keys currently being handled, shared across a pool.
	inflight *sync.Map

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		handler:   handler,
		name:      "worker",
		processed: &atomic.Int64{},
		inflight:  &sync.Map{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	deliveries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.process(ctx, d)
		}
	}
}

// Shutdown stops the worker after its current delivery.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, d model.Delivery) {
	if w.dedupe != nil && w.dedupe.SeenAndRecord(ctx, d.Key) {
		metrics.RecordCommandDuplicate()
		w.logger.Debug(ctx, "dropping duplicate delivery", logger.String("key", d.Key))
		w.ackHandled(ctx, d.Key)
		return
	}

	start := time.Now()
	w.inflight.Store(d.Key, struct{}{})
	metrics.AddWorkerActive(1)
	err := w.handler.Handle(ctx, d)
	metrics.AddWorkerActive(-1)
	if err != nil && w.dedupe != nil {
		w.dedupe.Unrecord(ctx, d.Key)
	}
	w.inflight.Delete(d.Key)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	w.processed.Add(1)

	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "dispatch_failed")
		w.logger.Error(ctx, "delivery failed",
			logger.String("key", d.Key),
			logger.String("kind", string(d.Command.Kind)),
			logger.Error(err),
		)
	}
}

// ackHandled removes the record of a duplicate whose handling has finished,
// so an acknowledgement that failed earlier does not leave it to be
// redelivered forever. Keys still in flight are left to their handler.
func (w *InMemoryWorker) ackHandled(ctx context.Context, key string) {
	if w.acker == nil {
		return
	}
	if _, busy := w.inflight.Load(key); busy {
		return
	}
	if err := w.acker.AckCommand(ctx, key); err != nil {
		w.logger.Warn(ctx, "duplicate acknowledgement failed",
			logger.String("key", key), logger.Error(err))
		return
	}
	w.logger.Debug(ctx, "acknowledged handled duplicate", logger.String("key", key))
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	handler Handler
	dedupe  dedupe.Deduper
	acker   Acker

	shutdown chan struct{}

	processed         atomic.Int64
	inflight          sync.Map
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, handler Handler, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             queue,
		handler:           handler,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, handler,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
			WithDeduper(p.dedupe),
			WithAcker(p.acker),
		)
		w.processed = &p.processed
		w.inflight = &p.inflight
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of deliveries handled since start.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater starts a background goroutine that updates worker metrics.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	last := int64(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case now := <-ticker.C:
			total := p.processed.Load()
			if secs := now.Sub(p.lastProcessedTime).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(total-last) / secs)
			}
			last = total
			p.lastProcessedTime = now
		}
	}
}

// Shutdown closes the queue (when it can be closed) and waits for every
// worker to finish its current delivery. Deliveries still queued stay in the
// store and are redelivered by the reconciler.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut++
		}
	}
	if timedOut > 0 {
		p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("workers", timedOut))
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
