package bots

import "time"

// Config holds configuration for a bot run.
type Config struct {
	BaseURL      string        // Base URL of the arbiter
	Bots         int           // Number of concurrent players
	Games        int           // Games each bot plays before stopping
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // How often a bot reads its records
	CheckinEvery time.Duration // Checkin cadence while in a game
	Prefix       string        // Player id prefix
	OutputFile   string        // Optional JSON report path
	Verbose      bool
}

// Stats holds aggregated results of a run.
type Stats struct {
	Bots          int            `json:"bots"`
	GamesFinished int            `json:"games_finished"`
	Outcomes      map[string]int `json:"outcomes"` // win, loss, tie, forfeit_win, forfeit_loss
	Commands      int64          `json:"commands"`
	Backpressured int64          `json:"backpressured"`
	Failed        int64          `json:"failed"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Duration      time.Duration  `json:"duration"`
}
