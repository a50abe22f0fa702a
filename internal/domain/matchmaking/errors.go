package matchmaking

import "github.com/okian/tictac/internal/domain/model"

// ErrSelfMatch aborts a match attempt by the player already waiting.
var ErrSelfMatch = model.Reject(model.ErrSelfMatch, "You're already waiting for a match.")
