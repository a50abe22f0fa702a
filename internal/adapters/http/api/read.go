package api

import (
	"context"
	"net/http"

	"github.com/okian/tictac/internal/domain/model"
)

// ReadDependencies expose the records clients watch.
type ReadDependencies interface {
	PlayerState(ctx context.Context, uid string) (model.PlayerState, error)
	Game(ctx context.Context, id string) (model.GameRecord, error)
}

// ReadHandler serves player states and game records.
type ReadHandler struct {
	deps ReadDependencies
}

// NewReadHandler creates a new read handler.
func NewReadHandler(deps ReadDependencies) *ReadHandler {
	return &ReadHandler{deps: deps}
}

// HandleGetPlayer handles GET /players/{uid} requests.
func (h *ReadHandler) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	ps, err := h.deps.PlayerState(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// HandleGetGame handles GET /games/{id} requests.
func (h *ReadHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.deps.Game(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
