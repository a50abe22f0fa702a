// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/tictac/internal/adapters/repository"
	"github.com/okian/tictac/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CommandDependencies
	ReadDependencies
}

// Server wires HTTP routes for the arbiter API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	commandsHandler *CommandsHandler
	readHandler     *ReadHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		commandsHandler: NewCommandsHandler(deps),
		readHandler:     NewReadHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /commands/{uid}", MetricsMiddleware(s.commandsHandler.HandlePostCommand, "commands"))
	mux.HandleFunc("GET /players/{uid}", MetricsMiddleware(s.readHandler.HandleGetPlayer, "players"))
	mux.HandleFunc("GET /games/{id}", MetricsMiddleware(s.readHandler.HandleGetGame, "games"))
}

// commandRequest is the client command vocabulary. Only its shape is checked
// here; the dispatcher decides what an unknown command or a move without
// coordinates means and tells the player.
type commandRequest struct {
	Command model.Kind `json:"command"`
	X       *int       `json:"x,omitempty"`
	Y       *int       `json:"y,omitempty"`
}

func (c commandRequest) validate() error {
	if c.Command == "" {
		return errors.New("missing command")
	}
	return nil
}

type ackResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeStoreError translates record store errors into responses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case repository.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
