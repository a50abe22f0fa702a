package game

import "github.com/okian/tictac/internal/domain/model"

// Rejections raised by the state machine.
var (
	ErrGameOver         = model.Reject(model.ErrGameOver, "Game is over!")
	ErrNotAPlayer       = model.Reject(model.ErrNotAPlayer, "You're not playing this game!")
	ErrNotYourTurn      = model.Reject(model.ErrNotYourTurn, "It's not your turn. Be patient!")
	ErrCheckinAfterEnd  = model.Reject(model.ErrGameOver, "Game is over, no need to check in.")
	ErrCheckinNotInGame = model.Reject(model.ErrNotInGame, "You're not in this game.")
)
