// Package dispatch turns one stored command into its effect on the records:
// matchmaking on the waiting slot, moves and checkins on a game record, and
// the player state updates that follow.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tictac/internal/adapters/repository"
	"github.com/okian/tictac/internal/domain/board"
	"github.com/okian/tictac/internal/domain/game"
	"github.com/okian/tictac/internal/domain/matchmaking"
	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/internal/domain/notify"
	"github.com/okian/tictac/pkg/logger"
	"github.com/okian/tictac/pkg/metrics"
)

// Results reported per handled command.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultIgnored  = "ignored"
	ResultFailed   = "failed"
)

// Dispatcher handles deliveries. It keeps no state between commands.
type Dispatcher struct {
	records       *repository.Records
	now           func() time.Time
	checkinPeriod time.Duration
	logger        logger.Logger
}

// New creates a Dispatcher over records.
func New(records *repository.Records, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		records:       records,
		now:           time.Now,
		checkinPeriod: game.DefaultCheckinPeriod,
		logger:        logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one delivery and acknowledges it. The acknowledgement runs
// concurrently and does not depend on the outcome. Domain rejections are
// written to the player's state; only store failures are returned.
func (d *Dispatcher) Handle(ctx context.Context, del model.Delivery) error {
	start := time.Now()
	kind := del.Command.Kind.Label()

	acked := make(chan error, 1)
	go func() {
		acked <- d.records.AckCommand(context.WithoutCancel(ctx), del.Key)
	}()

	err := d.dispatch(ctx, del)
	result, err := d.settle(ctx, del, err)

	if ackErr := <-acked; ackErr != nil {
		d.logger.Warn(ctx, "command acknowledgement failed",
			logger.String("key", del.Key), logger.Error(ackErr))
	}

	metrics.RecordCommandProcessed(kind, result)
	metrics.RecordCommandLatency(kind, float64(time.Since(start).Microseconds())/1000)
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, del model.Delivery) error {
	switch del.Command.Kind {
	case model.KindMatch:
		_, err := d.Match(ctx, del.PlayerID)
		return err
	case model.KindMove:
		x, y, ok := del.Command.Coords()
		if !ok {
			return board.ErrOutOfBounds
		}
		return d.Move(ctx, del.PlayerID, x, y)
	case model.KindCheckin:
		return d.Checkin(ctx, del.PlayerID)
	}
	return fmt.Errorf("%w: %q", model.ErrUnknownCommand, del.Command.Kind)
}

// settle classifies a dispatch error, surfaces domain rejections to the
// player and decides what is returned to the delivery layer.
func (d *Dispatcher) settle(ctx context.Context, del model.Delivery, err error) (string, error) {
	fields := []logger.Field{
		logger.String("player", del.PlayerID),
		logger.String("command", string(del.Command.Kind)),
		logger.String("key", del.Key),
	}
	switch {
	case err == nil:
		return ResultOK, nil

	case errors.Is(err, model.ErrSelfMatch), errors.Is(err, model.ErrUnknownCommand):
		d.logger.Info(ctx, "command ignored", append(fields, logger.Error(err))...)
		return ResultIgnored, nil

	case model.IsDomain(err):
		msg, _ := model.PlayerMessage(err)
		d.logger.Debug(ctx, "command rejected", append(fields, logger.String("message", msg))...)
		if uerr := d.records.UpdatePlayerState(ctx, del.PlayerID, repository.Fields{"message": msg}); uerr != nil {
			d.logger.Warn(ctx, "failed to surface rejection", append(fields, logger.Error(uerr))...)
		}
		return ResultRejected, nil

	case repository.IsUnavailable(err):
		metrics.RecordErrorByComponent("dispatcher", "store_unavailable")
		d.logger.Error(ctx, "store unavailable", append(fields, logger.Error(err))...)
		return ResultFailed, err
	}

	metrics.RecordErrorByComponent("dispatcher", "unexpected")
	d.logger.Error(ctx, "command failed", append(fields, logger.Error(err))...)
	return ResultFailed, nil
}

// Match runs matchmaking for uid: it either parks uid in the waiting slot or
// pairs uid with the player already waiting and starts their game.
func (d *Dispatcher) Match(ctx context.Context, uid string) (matchmaking.Decision, error) {
	now := d.now().UnixMilli()

	// Written before the slot transaction: once the slot holds uid, a pairing
	// may rewrite this state at any moment and must not be overwritten.
	if err := d.records.SetPlayerState(ctx, uid, model.PlayerState{Matching: true, MatchingSince: now}); err != nil {
		return matchmaking.Decision{}, err
	}

	var decision matchmaking.Decision
	_, err := d.records.TransactWaitingSlot(ctx, func(slot *model.WaitingSlot) (*model.WaitingSlot, error) {
		next, dec, err := matchmaking.TryMatch(slot, uid, now)
		if err != nil {
			return nil, err
		}
		decision = dec
		return next, nil
	})
	if err != nil {
		if errors.Is(err, model.ErrSelfMatch) {
			metrics.RecordMatchmaking("self_rejected")
		}
		return matchmaking.Decision{}, err
	}
	metrics.RecordMatchmaking(decision.Result.String())

	switch decision.Result {
	case matchmaking.Parked:
		d.logger.Debug(ctx, "player waiting for match", logger.String("player", uid))
		return decision, nil
	case matchmaking.Paired:
		return decision, d.startGame(ctx, decision.Opponent, uid, now)
	}
	return decision, fmt.Errorf("unexpected match result %v", decision.Result)
}

// startGame creates the game record for a fresh pairing and points both
// players at it. It is not atomic with the pairing.
func (d *Dispatcher) startGame(ctx context.Context, p1, p2 string, now int64) error {
	id := d.records.NewGameID()
	g := game.New(p1, p2, now)
	if err := d.records.PutGame(ctx, id, g); err != nil {
		return fmt.Errorf("create game %s: %w", id, err)
	}
	metrics.RecordGameStarted()
	d.logger.Info(ctx, "game started",
		logger.String("game", id), logger.String("p1", p1), logger.String("p2", p2))

	msgs := notify.Derive(g)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return d.records.SetPlayerState(egCtx, p1, model.PlayerState{GameID: id, Message: msgs.P1})
	})
	eg.Go(func() error {
		return d.records.SetPlayerState(egCtx, p2, model.PlayerState{GameID: id, Message: msgs.P2})
	})
	return eg.Wait()
}

// Move applies a move by uid to the game its state points at.
func (d *Dispatcher) Move(ctx context.Context, uid string, x, y int) error {
	if !board.InBounds(x, y) {
		return board.ErrOutOfBounds
	}
	gameID, err := d.currentGame(ctx, uid)
	if err != nil {
		return err
	}
	g, err := d.records.TransactGame(ctx, gameID, func(cur model.GameRecord) (model.GameRecord, error) {
		return game.ApplyMove(cur, uid, x, y)
	})
	if err != nil {
		return d.gameErr(err)
	}
	d.notify(ctx, gameID, g)
	return nil
}

// Checkin records a liveness signal from uid and forfeits a silent opponent.
func (d *Dispatcher) Checkin(ctx context.Context, uid string) error {
	gameID, err := d.currentGame(ctx, uid)
	if err != nil {
		return err
	}
	now := d.now().UnixMilli()
	g, err := d.records.TransactGame(ctx, gameID, func(cur model.GameRecord) (model.GameRecord, error) {
		return game.ApplyCheckin(cur, uid, now, d.checkinPeriod)
	})
	if err != nil {
		return d.gameErr(err)
	}
	d.notify(ctx, gameID, g)
	return nil
}

func (d *Dispatcher) currentGame(ctx context.Context, uid string) (string, error) {
	ps, err := d.records.PlayerState(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && ps.GameID == "") {
		return "", ErrNoGame
	}
	return ps.GameID, err
}

func (d *Dispatcher) gameErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNoGame
	}
	return err
}

// notify writes the derived messages to both players. The writes are best
// effort and not atomic with the game transaction.
func (d *Dispatcher) notify(ctx context.Context, gameID string, g model.GameRecord) {
	msgs := notify.Derive(g)
	if g.Finished() {
		metrics.RecordGameFinished(string(g.Outcome))
		d.logger.Info(ctx, "game finished",
			logger.String("game", gameID), logger.String("outcome", string(g.Outcome)))
	}

	update := func(msg string) repository.Fields {
		f := repository.Fields{"message": msg}
		if msgs.ClearGame {
			f["game"] = nil
		}
		return f
	}

	var eg errgroup.Group
	eg.Go(func() error { return d.records.UpdatePlayerState(ctx, g.P1, update(msgs.P1)) })
	eg.Go(func() error { return d.records.UpdatePlayerState(ctx, g.P2, update(msgs.P2)) })
	if err := eg.Wait(); err != nil {
		d.logger.Warn(ctx, "player notification failed",
			logger.String("game", gameID), logger.Error(err))
	}
}
