package bots

import "time"

// Defaults applied to zero Config fields.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultCheckinEvery = 10 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultPrefix       = "bot"
)

// Outcomes from a bot's point of view.
const (
	OutcomeWin         = "win"
	OutcomeLoss        = "loss"
	OutcomeTie         = "tie"
	OutcomeForfeitWin  = "forfeit_win"
	OutcomeForfeitLoss = "forfeit_loss"
)
