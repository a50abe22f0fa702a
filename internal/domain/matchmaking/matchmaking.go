// Package matchmaking decides pairings on the single global waiting slot.
package matchmaking

import (
	"github.com/okian/tictac/internal/domain/model"
)

// Result is the outcome of a match attempt.
type Result int

const (
	// Parked means the requester now occupies the waiting slot.
	Parked Result = iota + 1
	// Paired means the requester was matched with the previous occupant and
	// the slot was emptied.
	Paired
)

func (r Result) String() string {
	switch r {
	case Parked:
		return "parked"
	case Paired:
		return "paired"
	}
	return "unknown"
}

// Decision is what TryMatch concluded for a requester.
type Decision struct {
	Result   Result
	Opponent string // previous occupant when Paired
}

// TryMatch is the slot transform. slot is nil when nobody waits; a nil next
// slot empties it. A requester already parked gets ErrSelfMatch and the slot
// must be left untouched.
func TryMatch(slot *model.WaitingSlot, uid string, nowMillis int64) (*model.WaitingSlot, Decision, error) {
	if slot == nil || slot.UID == "" {
		return &model.WaitingSlot{UID: uid, Since: nowMillis}, Decision{Result: Parked}, nil
	}
	if slot.UID == uid {
		return nil, Decision{}, ErrSelfMatch
	}
	return nil, Decision{Result: Paired, Opponent: slot.UID}, nil
}
