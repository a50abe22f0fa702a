// Package service wires the arbiter together: the record store, the command
// queue and its workers, the dispatcher and the reconciler. It implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/tictac/internal/adapters/mq/queue"
	"github.com/okian/tictac/internal/adapters/mq/worker"
	"github.com/okian/tictac/internal/adapters/repository"
	"github.com/okian/tictac/internal/dispatch"
	"github.com/okian/tictac/internal/domain/dedupe"
	"github.com/okian/tictac/internal/domain/game"
	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/internal/reconcile"
	"github.com/okian/tictac/pkg/logger"
	"github.com/okian/tictac/pkg/metrics"
)

// Service implements the API dependencies for the arbiter.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	records    *repository.Records
	dispatcher *dispatch.Dispatcher
	queue      queue.Queue
	deduper    dedupe.Deduper
	pool       *worker.Pool
	reconciler *reconcile.Reconciler

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	checkinPeriod     time.Duration
	matchingTimeout   time.Duration
	reconcileInterval time.Duration
	now               func() time.Time

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:       runtime.NumCPU() * 4,
		queueSize:         50_000,
		dedupeSize:        100_000,
		checkinPeriod:     game.DefaultCheckinPeriod,
		matchingTimeout:   60 * time.Second,
		reconcileInterval: 15 * time.Second,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline and starts the workers and the reconciler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting arbiter service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.logger.Info(ctx, "using in-memory store")
	}
	s.records = repository.NewRecords(s.store)
	s.dispatcher = dispatch.New(s.records,
		dispatch.WithClock(s.now),
		dispatch.WithCheckinPeriod(s.checkinPeriod),
	)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.dispatcher,
		worker.WithPoolDeduper(s.deduper),
		worker.WithPoolAcker(s.records),
	)
	s.pool.Start(ctx)

	s.reconciler = reconcile.New(s.records, s.dispatcher, s.queue,
		reconcile.WithClock(s.now),
		reconcile.WithInterval(s.reconcileInterval),
		reconcile.WithMatchingTimeout(s.matchingTimeout),
	)
	if err := s.reconciler.Start(ctx); err != nil {
		_ = s.pool.Shutdown(ctx)
		return fmt.Errorf("start reconciler: %w", err)
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "arbiter service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("checkinPeriod", s.checkinPeriod),
	)
	return nil
}

// Stop shuts the reconciler and workers down and closes the store. Commands
// still queued remain stored and are picked up after the next start.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping arbiter service...")

	var errs []error
	if err := s.reconciler.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("stop reconciler: %w", err))
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop workers: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "arbiter service stopped")
	return errors.Join(errs...)
}

// SubmitCommand stores cmd for uid and queues it for dispatch. When the queue
// is full the command stays stored, is redelivered later and ErrBackpressure
// is returned with the delivery.
func (s *Service) SubmitCommand(ctx context.Context, uid string, cmd model.Command) (model.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Delivery{}, ErrNotStarted
	}

	metrics.RecordCommandReceived(cmd.Kind.Label())
	cmd.CreatedAt = 0
	d, err := s.records.AppendCommand(ctx, uid, cmd, s.now())
	if err != nil {
		return model.Delivery{}, fmt.Errorf("store command: %w", err)
	}

	err = s.queue.Enqueue(ctx, d)
	switch {
	case err == nil:
		s.logger.Debug(ctx, "command queued", logger.String("key", d.Key), logger.String("kind", string(cmd.Kind)))
		return d, nil
	case errors.Is(err, queue.ErrFull):
		s.logger.Warn(ctx, "queue full, command left for redelivery", logger.String("key", d.Key))
		return d, fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	return d, fmt.Errorf("enqueue command: %w", err)
}

// PlayerState returns the stored state of uid or repository.ErrNotFound.
func (s *Service) PlayerState(ctx context.Context, uid string) (model.PlayerState, error) {
	records, err := s.recordsView()
	if err != nil {
		return model.PlayerState{}, err
	}
	return records.PlayerState(ctx, uid)
}

// Game returns the game record id or repository.ErrNotFound.
func (s *Service) Game(ctx context.Context, id string) (model.GameRecord, error) {
	records, err := s.recordsView()
	if err != nil {
		return model.GameRecord{}, err
	}
	return records.Game(ctx, id)
}

// Sweep runs one reconciliation pass immediately.
func (s *Service) Sweep(ctx context.Context) (reconcile.Report, error) {
	s.mu.RLock()
	r := s.reconciler
	started := s.started
	s.mu.RUnlock()
	if !started {
		return reconcile.Report{}, ErrNotStarted
	}
	return r.Sweep(ctx)
}

func (s *Service) recordsView() (*repository.Records, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.records, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len(context.Background())
	stats["queueLength"] = queueLen
	stats["processed"] = s.pool.Processed()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateWorkerCount(s.workerCount)
	return stats
}
