// Package reconcile runs the periodic repair job: players stranded in
// matching by an interrupted pairing are matched again, and commands that
// were stored but never dispatched are put back on the queue.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/okian/tictac/internal/adapters/mq/queue"
	"github.com/okian/tictac/internal/adapters/repository"
	"github.com/okian/tictac/internal/domain/matchmaking"
	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/pkg/logger"
	"github.com/okian/tictac/pkg/metrics"
)

const (
	defaultInterval        = 15 * time.Second
	defaultMatchingTimeout = 60 * time.Second
)

// Matcher reruns matchmaking on behalf of a player.
type Matcher interface {
	Match(ctx context.Context, uid string) (matchmaking.Decision, error)
}

// Enqueuer accepts redelivered commands.
type Enqueuer interface {
	Enqueue(ctx context.Context, d model.Delivery) error
}

// Report summarises one sweep.
type Report struct {
	Suspects    int
	Repaired    int
	Redelivered int
}

// Reconciler owns the repair job.
type Reconciler struct {
	records *repository.Records
	matcher Matcher
	queue   Enqueuer

	interval        time.Duration
	matchingTimeout time.Duration
	now             func() time.Time
	logger          logger.Logger

	mu sync.Mutex
	// suspects maps a stranded player to the matching_since seen when first
	// flagged. A player is only repaired when a later sweep finds the same
	// value, which rules out pairings that were merely in flight.
	suspects map[string]int64

	scheduler gocron.Scheduler
}

// New creates a Reconciler.
func New(records *repository.Records, matcher Matcher, q Enqueuer, opts ...Option) *Reconciler {
	r := &Reconciler{
		records:         records,
		matcher:         matcher,
		queue:           q,
		interval:        defaultInterval,
		matchingTimeout: defaultMatchingTimeout,
		now:             time.Now,
		logger:          logger.Get().Named("reconciler"),
		suspects:        map[string]int64{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules Sweep every interval until Shutdown.
func (r *Reconciler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error(ctx, "reconcile sweep failed", logger.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reconcile"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule reconcile job: %w", err)
	}
	sched.Start()
	r.scheduler = sched
	r.logger.Info(ctx, "reconciler started",
		logger.Duration("interval", r.interval),
		logger.Duration("matching_timeout", r.matchingTimeout))
	return nil
}

// Shutdown stops the scheduler and waits for a running sweep.
func (r *Reconciler) Shutdown() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	metrics.RecordReconcileSweep()
	var rep Report

	if err := r.repairPairings(ctx, &rep); err != nil {
		metrics.RecordReconcileFailure()
		return rep, err
	}
	if err := r.redeliver(ctx, &rep); err != nil {
		metrics.RecordReconcileFailure()
		return rep, err
	}
	if rep.Repaired > 0 || rep.Redelivered > 0 {
		r.logger.Info(ctx, "reconcile sweep",
			logger.Int("suspects", rep.Suspects),
			logger.Int("repaired", rep.Repaired),
			logger.Int("redelivered", rep.Redelivered))
	}
	return rep, nil
}

func (r *Reconciler) repairPairings(ctx context.Context, rep *Report) error {
	slot, err := r.records.WaitingSlot(ctx)
	if err != nil {
		return fmt.Errorf("read waiting slot: %w", err)
	}
	states, err := r.records.PlayerStates(ctx)
	if err != nil {
		return fmt.Errorf("scan player states: %w", err)
	}

	cutoff := r.now().Add(-r.matchingTimeout).UnixMilli()
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]int64)
	for uid, ps := range states {
		if !ps.Matching || ps.GameID != "" || ps.MatchingSince > cutoff {
			continue
		}
		if slot != nil && slot.UID == uid {
			continue
		}
		rep.Suspects++
		if since, ok := r.suspects[uid]; !ok || since != ps.MatchingSince {
			next[uid] = ps.MatchingSince
			continue
		}

		decision, err := r.matcher.Match(ctx, uid)
		switch {
		case err == nil:
			rep.Repaired++
			metrics.RecordPairingRepaired()
			r.logger.Info(ctx, "stranded player returned to matchmaking",
				logger.String("player", uid), logger.String("result", decision.Result.String()))
		case errors.Is(err, model.ErrSelfMatch):
			// Parked again by someone else in the meantime.
		case repository.IsUnavailable(err):
			next[uid] = ps.MatchingSince
			r.suspects = next
			return fmt.Errorf("repair %s: %w", uid, err)
		default:
			r.logger.Warn(ctx, "pairing repair failed", logger.String("player", uid), logger.Error(err))
		}
	}
	r.suspects = next
	return nil
}

func (r *Reconciler) redeliver(ctx context.Context, rep *Report) error {
	pending, err := r.records.PendingCommands(ctx)
	if err != nil {
		return fmt.Errorf("scan commands: %w", err)
	}
	cutoff := r.now().Add(-r.interval).UnixMilli()
	for _, d := range pending {
		if d.Command.CreatedAt > cutoff {
			continue
		}
		err := r.queue.Enqueue(ctx, d)
		if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
			r.logger.Warn(ctx, "redelivery stopped", logger.Error(err), logger.Int("redelivered", rep.Redelivered))
			return nil
		}
		if err != nil {
			return fmt.Errorf("redeliver %s: %w", d.Key, err)
		}
		rep.Redelivered++
		metrics.RecordCommandRedelivered()
	}
	return nil
}
