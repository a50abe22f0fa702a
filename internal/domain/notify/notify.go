// Package notify derives the per-player status messages from a game record.
package notify

import (
	"fmt"

	"github.com/okian/tictac/internal/domain/model"
)

// Player-facing status texts.
const (
	MsgYourTurn     = "It's your turn! Make a move!"
	MsgWaiting      = "Waiting for other player..."
	MsgYouWon       = "You won! Good job!"
	MsgTheyWon      = "They won! Better luck next time!"
	MsgTie          = "It's a tie game!"
	MsgGaveUp       = "Looks like you gave up."
	MsgOpponentQuit = "The other player has apparently quit, so you win!"
)

// Messages is the pair of updates to write after a committed game change.
// ClearGame drops both players' reference to the game.
type Messages struct {
	P1        string
	P2        string
	ClearGame bool
}

// Derive maps a game record to both players' messages. It panics on an
// outcome outside the vocabulary, which can only come from a bug.
func Derive(g model.GameRecord) Messages {
	if !g.Finished() {
		if g.Turn == g.P1 {
			return Messages{P1: MsgYourTurn, P2: MsgWaiting}
		}
		return Messages{P1: MsgWaiting, P2: MsgYourTurn}
	}

	switch g.Outcome {
	case model.OutcomeWinP1:
		return Messages{P1: MsgYouWon, P2: MsgTheyWon, ClearGame: true}
	case model.OutcomeWinP2:
		return Messages{P1: MsgTheyWon, P2: MsgYouWon, ClearGame: true}
	case model.OutcomeTie:
		return Messages{P1: MsgTie, P2: MsgTie, ClearGame: true}
	case model.OutcomeForfeitP1:
		return Messages{P1: MsgGaveUp, P2: MsgOpponentQuit, ClearGame: true}
	case model.OutcomeForfeitP2:
		return Messages{P1: MsgOpponentQuit, P2: MsgGaveUp, ClearGame: true}
	}
	panic(fmt.Sprintf("notify: unexpected outcome %q", g.Outcome))
}
