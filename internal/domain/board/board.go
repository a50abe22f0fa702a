// Package board validates tic-tac-toe moves against a move log and detects
// the end of a game. It performs no I/O.
package board

import (
	"github.com/okian/tictac/internal/domain/model"
)

// Size is the board edge length.
const Size = 3

// Grid is a replayed board; 0 marks an empty space, otherwise the player number.
// Indexed as Grid[x][y].
type Grid [Size][Size]int

// lines are the eight winning triples, scanned in this order. The first three
// hold x fixed, the next three hold y fixed, then the two diagonals.
var lines = [8][3]model.Cell{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{2, 0}, {1, 1}, {0, 2}},
}

// Result describes the end of a game. The zero value means play continues.
type Result struct {
	Winner int          // 1 or 2 when a line is complete
	Line   []model.Cell // the winning triple
	Tie    bool
}

// Over reports whether the game has ended.
func (r Result) Over() bool { return r.Winner != 0 || r.Tie }

// InBounds reports whether (x, y) addresses a board space.
func InBounds(x, y int) bool {
	return x >= 0 && x < Size && y >= 0 && y < Size
}

// Replay builds the grid described by a move log. Moves outside the board are
// ignored; a stored log never contains them.
func Replay(moves []model.Move) Grid {
	var g Grid
	for _, m := range moves {
		if InBounds(m.X, m.Y) {
			g[m.X][m.Y] = m.Player
		}
	}
	return g
}

// ValidateAndApply checks a candidate move for player against the log and
// returns a new log with the move appended plus the resulting end state.
// The input slice is never modified.
func ValidateAndApply(moves []model.Move, x, y, player int) ([]model.Move, Result, error) {
	if !InBounds(x, y) {
		return nil, Result{}, ErrOutOfBounds
	}
	g := Replay(moves)
	if g[x][y] != 0 {
		return nil, Result{}, ErrCellTaken
	}
	g[x][y] = player

	next := make([]model.Move, len(moves), len(moves)+1)
	copy(next, moves)
	next = append(next, model.Move{Player: player, X: x, Y: y})

	return next, CheckEndgame(g), nil
}

// CheckEndgame reports the first complete line in scan order, a tie when every
// space is filled, or the zero Result.
func CheckEndgame(g Grid) Result {
	for _, line := range lines {
		a := g[line[0][0]][line[0][1]]
		if a == 0 {
			continue
		}
		if a == g[line[1][0]][line[1][1]] && a == g[line[2][0]][line[2][1]] {
			return Result{Winner: a, Line: append([]model.Cell(nil), line[:]...)}
		}
	}
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			if g[x][y] == 0 {
				return Result{}
			}
		}
	}
	return Result{Tie: true}
}
