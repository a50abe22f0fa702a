package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/tictac/internal/adapters/mq/queue"
	"github.com/okian/tictac/internal/domain/model"
)

// CommandDependencies accepts commands on behalf of players.
type CommandDependencies interface {
	// SubmitCommand stores and queues cmd. An error wrapping queue.ErrFull
	// means the command was stored but could not be queued.
	SubmitCommand(ctx context.Context, uid string, cmd model.Command) (model.Delivery, error)
}

// CommandsHandler handles command submissions.
type CommandsHandler struct {
	deps CommandDependencies
}

// NewCommandsHandler creates a new commands handler.
func NewCommandsHandler(deps CommandDependencies) *CommandsHandler {
	return &CommandsHandler{deps: deps}
}

// HandlePostCommand handles POST /commands/{uid} requests.
func (h *CommandsHandler) HandlePostCommand(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_command"
	uid := r.PathValue("uid")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	d, err := h.deps.SubmitCommand(r.Context(), uid, model.Command{Kind: req.Command, X: req.X, Y: req.Y})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Key: d.Key})
	case errors.Is(err, queue.ErrFull):
		// Stored; the reconciler will deliver it later.
		writeJSON(w, http.StatusTooManyRequests, ackResponse{Status: "backpressure", Key: d.Key})
	default:
		writeStoreError(w, err)
	}
}
