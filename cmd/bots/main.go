package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/tictac/internal/bots"
	"github.com/okian/tictac/pkg/logger"
)

// Default configuration constants.
const (
	defaultBots    = 10
	defaultGames   = 3
	defaultRunTime = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the arbiter")
		n       = flag.Int("bots", defaultBots, "Number of concurrent players (even)")
		games   = flag.Int("games", defaultGames, "Games each player plays")
		poll    = flag.Duration("poll", bots.DefaultPollInterval, "How often players read their records")
		checkin = flag.Duration("checkin", bots.DefaultCheckinEvery, "Checkin cadence while in a game")
		timeout = flag.Duration("timeout", bots.DefaultTimeout, "HTTP request timeout")
		prefix  = flag.String("prefix", bots.DefaultPrefix, "Player id prefix")
		output  = flag.String("output", "", "Write a JSON report to this file")
		verbose = flag.Bool("verbose", false, "Log every finished game")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		bots.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTime)
	defer cancel()

	cfg := &bots.Config{
		BaseURL:      *baseURL,
		Bots:         *n,
		Games:        *games,
		Timeout:      *timeout,
		PollInterval: *poll,
		CheckinEvery: *checkin,
		Prefix:       *prefix,
		OutputFile:   *output,
		Verbose:      *verbose,
	}
	if _, err := bots.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "bot run failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
