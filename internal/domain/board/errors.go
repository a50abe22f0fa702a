package board

import "github.com/okian/tictac/internal/domain/model"

// Move rejections. Both wrap model.ErrInvalidMove.
var (
	ErrOutOfBounds = model.Reject(model.ErrInvalidMove, "That move is out of bounds!")
	ErrCellTaken   = model.Reject(model.ErrInvalidMove, "You can't move there - space already taken!")
)
