package handler

import (
	"context"
	"net/http"

	"github.com/carepos/api/internal/simclock"
	"github.com/go-chi/chi/v5"
)

// SimulationReader is satisfied by *simclock.Cache.
type SimulationReader interface {
	Get(ctx context.Context) simclock.State
}

// SimulationHandler reports the system simulation switch.
type SimulationHandler struct {
	src SimulationReader
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(src SimulationReader) *SimulationHandler {
	return &SimulationHandler{src: src}
}

// RegisterRoutes registers simulation endpoints on the given Chi router.
func (h *SimulationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/simulation", h.Get)
}

// Get handles GET /simulation.
func (h *SimulationHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Get(r.Context()))
}
