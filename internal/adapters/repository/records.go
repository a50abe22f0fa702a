package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/pkg/metrics"
)

// Key layout.
const (
	MatchingKey        = "matching"
	GamesPrefix        = "games/"
	PlayerStatesPrefix = "player_states/"
	CommandsPrefix     = "commands/"
)

// Record kinds used as metric labels.
const (
	KindMatching    = "matching"
	KindGame        = "game"
	KindPlayerState = "player_state"
	KindCommand     = "command"
	KindOther       = "other"
)

// Transaction results used as metric labels.
const (
	TxCommitted = "committed"
	TxAborted   = "aborted"
	TxFailed    = "failed"
)

func GameKey(id string) string         { return GamesPrefix + id }
func PlayerStateKey(uid string) string { return PlayerStatesPrefix + uid }
func CommandKey(uid, id string) string { return CommandsPrefix + uid + "/" + id }

// ParseCommandKey splits commands/{uid}/{id}.
func ParseCommandKey(key string) (uid, id string, ok bool) {
	rest, found := strings.CutPrefix(key, CommandsPrefix)
	if !found {
		return "", "", false
	}
	uid, id, ok = strings.Cut(rest, "/")
	if !ok || uid == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return uid, id, true
}

// RecordKind classifies key for metrics.
func RecordKind(key string) string {
	switch {
	case key == MatchingKey:
		return KindMatching
	case strings.HasPrefix(key, GamesPrefix):
		return KindGame
	case strings.HasPrefix(key, PlayerStatesPrefix):
		return KindPlayerState
	case strings.HasPrefix(key, CommandsPrefix):
		return KindCommand
	}
	return KindOther
}

// Records gives typed access to the arbiter's records on top of any Store.
type Records struct {
	store Store
}

// NewRecords wraps store.
func NewRecords(store Store) *Records {
	return &Records{store: store}
}

// Store returns the underlying store.
func (r *Records) Store() Store { return r.store }

// Waiting slot.

// WaitingSlot returns the parked player, or nil when nobody is waiting.
func (r *Records) WaitingSlot(ctx context.Context) (*model.WaitingSlot, error) {
	var slot model.WaitingSlot
	if err := r.getJSON(ctx, MatchingKey, &slot); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

// TransactWaitingSlot runs fn against the waiting slot. fn receives nil when
// the slot is empty and returns nil to clear it.
func (r *Records) TransactWaitingSlot(ctx context.Context, fn func(*model.WaitingSlot) (*model.WaitingSlot, error)) (*model.WaitingSlot, error) {
	out, err := r.store.Transact(ctx, MatchingKey, func(current []byte) ([]byte, error) {
		var slot *model.WaitingSlot
		if current != nil {
			slot = &model.WaitingSlot{}
			if err := json.Unmarshal(current, slot); err != nil {
				return nil, fmt.Errorf("decode waiting slot: %w", err)
			}
		}
		next, err := fn(slot)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		return json.Marshal(next)
	})
	recordTx(KindMatching, err)
	if err != nil || out == nil {
		return nil, err
	}
	var slot model.WaitingSlot
	if err := json.Unmarshal(out, &slot); err != nil {
		return nil, fmt.Errorf("decode waiting slot: %w", err)
	}
	return &slot, nil
}

// Games.

// NewGameID returns a fresh game id.
func (r *Records) NewGameID() string { return uuid.NewString() }

// PutGame writes a game record unconditionally.
func (r *Records) PutGame(ctx context.Context, id string, g model.GameRecord) error {
	return r.setJSON(ctx, GameKey(id), g)
}

// Game returns the game record or ErrNotFound.
func (r *Records) Game(ctx context.Context, id string) (model.GameRecord, error) {
	var g model.GameRecord
	if id == "" {
		return g, ErrNotFound
	}
	err := r.getJSON(ctx, GameKey(id), &g)
	return g, err
}

// TransactGame runs fn against an existing game record. A missing record
// aborts with ErrNotFound.
func (r *Records) TransactGame(ctx context.Context, id string, fn func(model.GameRecord) (model.GameRecord, error)) (model.GameRecord, error) {
	var out model.GameRecord
	if id == "" {
		return out, ErrNotFound
	}
	raw, err := r.store.Transact(ctx, GameKey(id), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		var g model.GameRecord
		if err := json.Unmarshal(current, &g); err != nil {
			return nil, fmt.Errorf("decode game %s: %w", id, err)
		}
		next, err := fn(g)
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})
	recordTx(KindGame, err)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode game %s: %w", id, err)
	}
	return out, nil
}

// Games returns every game record keyed by id.
func (r *Records) Games(ctx context.Context) (map[string]model.GameRecord, error) {
	entries, err := r.store.Scan(ctx, GamesPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.GameRecord, len(entries))
	for _, e := range entries {
		var g model.GameRecord
		if err := json.Unmarshal(e.Value, &g); err != nil {
			continue
		}
		out[strings.TrimPrefix(e.Key, GamesPrefix)] = g
	}
	return out, nil
}

// Player states.

// PlayerState returns the state of uid or ErrNotFound.
func (r *Records) PlayerState(ctx context.Context, uid string) (model.PlayerState, error) {
	var ps model.PlayerState
	if uid == "" {
		return ps, ErrNotFound
	}
	err := r.getJSON(ctx, PlayerStateKey(uid), &ps)
	return ps, err
}

// SetPlayerState replaces the state of uid.
func (r *Records) SetPlayerState(ctx context.Context, uid string, ps model.PlayerState) error {
	return r.setJSON(ctx, PlayerStateKey(uid), ps)
}

// UpdatePlayerState merges fields into the state of uid.
func (r *Records) UpdatePlayerState(ctx context.Context, uid string, fields Fields) error {
	return r.store.Update(ctx, PlayerStateKey(uid), fields)
}

// PlayerStates returns every player state keyed by uid.
func (r *Records) PlayerStates(ctx context.Context) (map[string]model.PlayerState, error) {
	entries, err := r.store.Scan(ctx, PlayerStatesPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.PlayerState, len(entries))
	for _, e := range entries {
		var ps model.PlayerState
		if err := json.Unmarshal(e.Value, &ps); err != nil {
			continue
		}
		out[strings.TrimPrefix(e.Key, PlayerStatesPrefix)] = ps
	}
	return out, nil
}

// Commands.

// AppendCommand stores cmd under a fresh id for uid and returns the delivery
// that refers to it.
func (r *Records) AppendCommand(ctx context.Context, uid string, cmd model.Command, now time.Time) (model.Delivery, error) {
	if uid == "" || strings.Contains(uid, "/") {
		return model.Delivery{}, fmt.Errorf("%w: player id %q", ErrInvalidKey, uid)
	}
	if cmd.CreatedAt == 0 {
		cmd.CreatedAt = now.UnixMilli()
	}
	d := model.Delivery{Key: CommandKey(uid, uuid.NewString()), PlayerID: uid, Command: cmd}
	if err := r.setJSON(ctx, d.Key, cmd); err != nil {
		return model.Delivery{}, err
	}
	return d, nil
}

// AckCommand removes a handled command.
func (r *Records) AckCommand(ctx context.Context, key string) error {
	return r.store.Delete(ctx, key)
}

// PendingCommands returns every stored command in key order. Records that do
// not decode are skipped.
func (r *Records) PendingCommands(ctx context.Context) ([]model.Delivery, error) {
	entries, err := r.store.Scan(ctx, CommandsPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]model.Delivery, 0, len(entries))
	for _, e := range entries {
		uid, _, ok := ParseCommandKey(e.Key)
		if !ok {
			continue
		}
		var cmd model.Command
		if err := json.Unmarshal(e.Value, &cmd); err != nil {
			continue
		}
		out = append(out, model.Delivery{Key: e.Key, PlayerID: uid, Command: cmd})
	}
	return out, nil
}

func (r *Records) getJSON(ctx context.Context, key string, v any) error {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r *Records) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.store.Set(ctx, key, raw)
}

func recordTx(kind string, err error) {
	switch {
	case err == nil:
		metrics.RecordTransaction(kind, TxCommitted)
	case IsUnavailable(err):
		metrics.RecordTransaction(kind, TxFailed)
	default:
		metrics.RecordTransaction(kind, TxAborted)
	}
}
