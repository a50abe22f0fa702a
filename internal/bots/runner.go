package bots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tictac/pkg/logger"
)

const directoryPermission = 0o750

// Validation errors.
var (
	ErrBotCount = errors.New("bots must be an even number of at least 2")
	ErrGames    = errors.New("games must be at least 1")
)

// Validate checks cfg and fills defaults.
func (c *Config) Validate() error {
	if c.Bots < 2 || c.Bots%2 != 0 {
		return fmt.Errorf("%w: %d", ErrBotCount, c.Bots)
	}
	if c.Games < 1 {
		return fmt.Errorf("%w: %d", ErrGames, c.Games)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.CheckinEvery <= 0 {
		c.CheckinEvery = DefaultCheckinEvery
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	return nil
}

// Run plays every bot to completion and returns the aggregated results.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("bots")
	stats := &Stats{Bots: cfg.Bots, Outcomes: map[string]int{}, StartTime: time.Now()}

	log.Info(ctx, "starting bot run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("bots", cfg.Bots),
		logger.Int("games", cfg.Games),
		logger.Duration("checkinEvery", cfg.CheckinEvery))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Healthy(ctx); err != nil {
		return nil, err
	}

	// Run ids keep consecutive runs against one arbiter from sharing players.
	runID := strconv.FormatInt(time.Now().UnixNano(), 36)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Bots {
		uid := fmt.Sprintf("%s-%s-%d", cfg.Prefix, runID, i)
		bot := NewBot(uid, client, cfg, uint64(i)+1)
		g.Go(func() error {
			outcomes, err := bot.Play(gctx)
			mu.Lock()
			for _, o := range outcomes {
				stats.Outcomes[o]++
			}
			stats.GamesFinished += len(outcomes)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("bot %s: %w", uid, err)
			}
			return nil
		})
	}
	err := g.Wait()

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	stats.Commands = client.commands.Load()
	stats.Backpressured = client.backpressured.Load()
	stats.Failed = client.failed.Load()

	log.Info(ctx, "bot run finished",
		logger.Int("gamesFinished", stats.GamesFinished),
		logger.Any("outcomes", stats.Outcomes),
		logger.Int64("commands", stats.Commands),
		logger.Int64("backpressured", stats.Backpressured),
		logger.Int64("failed", stats.Failed),
		logger.Duration("duration", stats.Duration))

	if cfg.OutputFile != "" {
		if werr := saveReport(cfg.OutputFile, stats); werr != nil {
			log.Warn(ctx, "failed to save report", logger.Error(werr))
		}
	}
	return stats, err
}

func saveReport(filename string, stats *Stats) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(filename, data, 0o600)
}
