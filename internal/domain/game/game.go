// Package game owns the lifecycle of a single game record. ApplyMove and
// ApplyCheckin are pure transforms of a record: they may be invoked many times
// by an optimistic store transaction and never touch anything but their input
// copy.
package game

import (
	"time"

	"github.com/okian/tictac/internal/domain/board"
	"github.com/okian/tictac/internal/domain/model"
)

// DefaultCheckinPeriod is the interval clients are expected to check in at.
// A player is forfeited after missing two full periods.
const DefaultCheckinPeriod = 20 * time.Second

// missedPeriods is how many checkin periods may pass before a forfeit.
const missedPeriods = 2

// State is the lifecycle phase of a game.
type State int

const (
	// InProgress games have a turn and no outcome.
	InProgress State = iota
	// Finished games have an outcome and accept nothing further.
	Finished
)

func (s State) String() string {
	if s == Finished {
		return "finished"
	}
	return "in_progress"
}

// StateOf returns the lifecycle phase of rec.
func StateOf(rec model.GameRecord) State {
	if rec.Finished() {
		return Finished
	}
	return InProgress
}

// New returns the initial record for a freshly paired game. The player who
// waited moves first.
func New(p1, p2 string, nowMillis int64) model.GameRecord {
	return model.GameRecord{
		P1:        p1,
		P2:        p2,
		Turn:      p1,
		P1Checkin: nowMillis,
		P2Checkin: nowMillis,
	}
}

// ApplyMove validates a move by uid at (x, y) and returns the updated record.
// On error the returned record is the zero value and rec is unchanged.
func ApplyMove(rec model.GameRecord, uid string, x, y int) (model.GameRecord, error) {
	if rec.Finished() {
		return model.GameRecord{}, ErrGameOver
	}
	n := rec.PlayerNumber(uid)
	if n == 0 {
		return model.GameRecord{}, ErrNotAPlayer
	}
	if uid != rec.Turn {
		return model.GameRecord{}, ErrNotYourTurn
	}

	moves, res, err := board.ValidateAndApply(rec.Moves, x, y, n)
	if err != nil {
		return model.GameRecord{}, err
	}

	next := rec.Clone()
	next.Moves = moves
	switch {
	case res.Winner == 1:
		next.Outcome = model.OutcomeWinP1
		next.WinMoves = res.Line
		next.Turn = ""
	case res.Winner == 2:
		next.Outcome = model.OutcomeWinP2
		next.WinMoves = res.Line
		next.Turn = ""
	case res.Tie:
		next.Outcome = model.OutcomeTie
		next.Turn = ""
	default:
		next.Turn = rec.PlayerID(3 - n)
	}
	return next, nil
}

// ApplyCheckin records a liveness signal from uid at nowMillis. If the other
// participant has missed two checkin periods they forfeit.
func ApplyCheckin(rec model.GameRecord, uid string, nowMillis int64, period time.Duration) (model.GameRecord, error) {
	if rec.Finished() {
		return model.GameRecord{}, ErrCheckinAfterEnd
	}
	if period <= 0 {
		period = DefaultCheckinPeriod
	}
	limit := missedPeriods * period.Milliseconds()

	next := rec.Clone()
	switch rec.PlayerNumber(uid) {
	case 1:
		if rec.P2Checkin+limit < nowMillis {
			next.Outcome = model.OutcomeForfeitP2
		}
		next.P1Checkin = nowMillis
	case 2:
		if rec.P1Checkin+limit < nowMillis {
			next.Outcome = model.OutcomeForfeitP1
		}
		next.P2Checkin = nowMillis
	default:
		return model.GameRecord{}, ErrCheckinNotInGame
	}
	if next.Finished() {
		next.Turn = ""
	}
	return next, nil
}
