package model

// Outcome is the terminal result written once to a game record.
type Outcome string

// Outcome vocabulary.
const (
	OutcomeWinP1     Outcome = "win_p1"
	OutcomeWinP2     Outcome = "win_p2"
	OutcomeTie       Outcome = "tie"
	OutcomeForfeitP1 Outcome = "forfeit_p1"
	OutcomeForfeitP2 Outcome = "forfeit_p2"
)

// Outcomes lists every valid outcome.
var Outcomes = []Outcome{OutcomeWinP1, OutcomeWinP2, OutcomeTie, OutcomeForfeitP1, OutcomeForfeitP2}

// Move is one entry of a game's append-only move log.
type Move struct {
	Player int `json:"player"` // 1 or 2
	X      int `json:"x"`
	Y      int `json:"y"`
}

// Cell addresses a board space as [x, y].
type Cell [2]int

// GameRecord is the shared record of one game. Turn is empty once the game
// has an outcome.
type GameRecord struct {
	P1        string  `json:"p1uid"`
	P2        string  `json:"p2uid"`
	Turn      string  `json:"turn,omitempty"`
	Moves     []Move  `json:"moves,omitempty"`
	Outcome   Outcome `json:"outcome,omitempty"`
	WinMoves  []Cell  `json:"win_moves,omitempty"`
	P1Checkin int64   `json:"p1checkin"` // unix millis
	P2Checkin int64   `json:"p2checkin"` // unix millis
}

// PlayerNumber returns 1 or 2 for a participant and 0 otherwise.
func (g GameRecord) PlayerNumber(uid string) int {
	switch uid {
	case "":
		return 0
	case g.P1:
		return 1
	case g.P2:
		return 2
	}
	return 0
}

// PlayerID returns the id for player number n.
func (g GameRecord) PlayerID(n int) string {
	if n == 1 {
		return g.P1
	}
	return g.P2
}

// Finished reports whether an outcome has been written.
func (g GameRecord) Finished() bool { return g.Outcome != "" }

// Clone returns a deep copy so transforms never alias stored slices.
func (g GameRecord) Clone() GameRecord {
	c := g
	if g.Moves != nil {
		c.Moves = append([]Move(nil), g.Moves...)
	}
	if g.WinMoves != nil {
		c.WinMoves = append([]Cell(nil), g.WinMoves...)
	}
	return c
}

// PlayerState is the per-player status record clients watch.
type PlayerState struct {
	Matching      bool   `json:"matching,omitempty"`
	MatchingSince int64  `json:"matching_since,omitempty"` // unix millis
	GameID        string `json:"game,omitempty"`
	Message       string `json:"message,omitempty"`
}

// WaitingSlot is the single global matchmaking record. Its existence means
// exactly one player is parked.
type WaitingSlot struct {
	UID   string `json:"uid"`
	Since int64  `json:"since,omitempty"` // unix millis
}
