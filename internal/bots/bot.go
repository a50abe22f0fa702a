package bots

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/okian/tictac/internal/domain/board"
	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/pkg/logger"
)

// Bot is one simulated player.
type Bot struct {
	uid    string
	client *Client
	cfg    *Config
	rng    *rand.Rand
	logger logger.Logger
}

// NewBot creates a bot playing as uid.
func NewBot(uid string, client *Client, cfg *Config, seed uint64) *Bot {
	return &Bot{
		uid:    uid,
		client: client,
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: logger.Get().Named("bot").With(logger.String("player", uid)),
	}
}

// Play plays cfg.Games games and returns their outcomes in order.
func (b *Bot) Play(ctx context.Context) ([]string, error) {
	outcomes := make([]string, 0, b.cfg.Games)
	prev := ""
	for len(outcomes) < b.cfg.Games {
		gameID, err := b.match(ctx, prev)
		if err != nil {
			return outcomes, err
		}
		outcome, err := b.playGame(ctx, gameID)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
		prev = gameID
		if b.cfg.Verbose {
			b.logger.Info(ctx, "game finished", logger.String("game", gameID), logger.String("outcome", outcome))
		}
	}
	return outcomes, nil
}

// match requests a pairing and waits until the player state names a game
// other than prev, whose clearing may still be in flight.
func (b *Bot) match(ctx context.Context, prev string) (string, error) {
	if err := b.client.Send(ctx, b.uid, model.Command{Kind: model.KindMatch}); err != nil {
		return "", err
	}
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		ps, err := b.client.PlayerState(ctx, b.uid)
		switch {
		case err == nil && ps.GameID != "" && ps.GameID != prev:
			return ps.GameID, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bot) playGame(ctx context.Context, gameID string) (string, error) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	lastCheckin := time.Now()
	movedAt := -1
	for {
		if time.Since(lastCheckin) >= b.cfg.CheckinEvery {
			if err := b.client.Send(ctx, b.uid, model.Command{Kind: model.KindCheckin}); err != nil {
				return "", err
			}
			lastCheckin = time.Now()
		}

		g, err := b.client.Game(ctx, gameID)
		if err != nil {
			return "", err
		}
		if g.Finished() {
			return Perspective(g, b.uid), nil
		}
		// One move per observed board; the arbiter rejects anything else.
		if g.Turn == b.uid && len(g.Moves) != movedAt {
			x, y, ok := b.pick(g.Moves)
			if ok {
				if err := b.client.Send(ctx, b.uid, model.Command{Kind: model.KindMove, X: &x, Y: &y}); err != nil {
					return "", err
				}
				movedAt = len(g.Moves)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// pick chooses a random free cell.
func (b *Bot) pick(moves []model.Move) (x, y int, ok bool) {
	grid := board.Replay(moves)
	free := make([][2]int, 0, board.Size*board.Size)
	for i := 0; i < board.Size; i++ {
		for j := 0; j < board.Size; j++ {
			if grid[i][j] == 0 {
				free = append(free, [2]int{i, j})
			}
		}
	}
	if len(free) == 0 {
		return 0, 0, false
	}
	c := free[b.rng.IntN(len(free))]
	return c[0], c[1], true
}

// Perspective maps a finished game's outcome to uid's point of view.
func Perspective(g model.GameRecord, uid string) string {
	me := g.PlayerNumber(uid)
	switch g.Outcome {
	case model.OutcomeTie:
		return OutcomeTie
	case model.OutcomeWinP1, model.OutcomeWinP2:
		if (g.Outcome == model.OutcomeWinP1) == (me == 1) {
			return OutcomeWin
		}
		return OutcomeLoss
	case model.OutcomeForfeitP1, model.OutcomeForfeitP2:
		// forfeit_pN names the player who forfeited.
		if (g.Outcome == model.OutcomeForfeitP1) == (me == 1) {
			return OutcomeForfeitLoss
		}
		return OutcomeForfeitWin
	}
	return string(g.Outcome)
}
