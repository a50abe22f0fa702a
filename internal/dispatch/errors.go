package dispatch

import "github.com/okian/tictac/internal/domain/model"

// ErrNoGame is surfaced when a move or checkin arrives from a player whose
// state does not point at a live game.
var ErrNoGame = model.Reject(model.ErrNotInGame, "You're not in a game")
