package model

import "errors"

// Sentinel kinds for domain rejections. Match with errors.Is.
var (
	ErrInvalidMove    = errors.New("invalid move")
	ErrGameOver       = errors.New("game over")
	ErrNotAPlayer     = errors.New("not a player")
	ErrNotInGame      = errors.New("not in game")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrSelfMatch      = errors.New("self match rejected")
	ErrUnknownCommand = errors.New("unknown command")
)

// Rejection is a domain failure carrying the text shown to the player.
type Rejection struct {
	kind error
	msg  string
}

// Reject builds a Rejection of the given kind.
func Reject(kind error, msg string) *Rejection {
	return &Rejection{kind: kind, msg: msg}
}

func (r *Rejection) Error() string { return r.msg }

func (r *Rejection) Unwrap() error { return r.kind }

// Kind returns the sentinel this rejection wraps.
func (r *Rejection) Kind() error { return r.kind }

// PlayerMessage extracts the player-facing text of a rejection.
func PlayerMessage(err error) (string, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.msg, true
	}
	return "", false
}

// IsDomain reports whether err is a rejection that is surfaced to the player
// rather than to the delivery layer.
func IsDomain(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidMove),
		errors.Is(err, ErrGameOver),
		errors.Is(err, ErrNotAPlayer),
		errors.Is(err, ErrNotInGame),
		errors.Is(err, ErrNotYourTurn):
		return true
	}
	return false
}
