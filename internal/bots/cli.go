package bots

import "os"

// ShowHelp prints usage information for the bots tool.
func ShowHelp() {
	os.Stdout.WriteString(`tictac bots
===========

Plays concurrent simulated players against a running arbiter.

Usage:
  go run ./cmd/bots [options]

Options:
  -url string        Base URL of the arbiter (default "http://localhost:9080")
  -bots int          Number of concurrent players, even (default 10)
  -games int         Games each player plays (default 3)
  -poll duration     How often players read their records (default 250ms)
  -checkin duration  Checkin cadence while in a game (default 10s)
  -timeout duration  HTTP request timeout (default 10s)
  -prefix string     Player id prefix (default "bot")
  -output string     Write a JSON report to this file
  -verbose           Log every finished game
  -help              Show this help message

Examples:
  go run ./cmd/bots -bots 100 -games 5
  go run ./cmd/bots -url http://localhost:8080 -output report.json
`)
}
