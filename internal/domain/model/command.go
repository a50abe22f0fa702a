// Package model contains domain models passed between layers.
package model

import "fmt"

// Kind names an inbound command.
type Kind string

// Command vocabulary accepted from clients.
const (
	KindMatch   Kind = "match"
	KindMove    Kind = "move"
	KindCheckin Kind = "checkin"
)

// Label is the kind as a metrics label; anything outside the vocabulary is
// "unknown".
func (k Kind) Label() string {
	switch k {
	case KindMatch, KindMove, KindCheckin:
		return string(k)
	}
	return "unknown"
}

// Command is one inbound request appended by a client under its own player id.
// X and Y are only meaningful for moves.
type Command struct {
	Kind      Kind  `json:"command"`
	X         *int  `json:"x,omitempty"`
	Y         *int  `json:"y,omitempty"`
	CreatedAt int64 `json:"created_at,omitempty"` // unix millis, set on append
}

// Coords returns the move coordinates and whether both were supplied.
func (c Command) Coords() (x, y int, ok bool) {
	if c.X == nil || c.Y == nil {
		return 0, 0, false
	}
	return *c.X, *c.Y, true
}

// Delivery is a stored command handed to the dispatcher together with its key.
type Delivery struct {
	Key      string // commands/{uid}/{cmdID}
	PlayerID string
	Command  Command
}

func (d Delivery) String() string {
	return fmt.Sprintf("%s(%s)", d.Command.Kind, d.Key)
}
