package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/carepos/api/internal/simclock"
)

const simulationKey contextKey = "simulation"

// SimulationHeader reports whether the response was served in simulation mode.
const SimulationHeader = "X-Simulation-Mode"

// SimulationSource is satisfied by *simclock.Cache.
type SimulationSource interface {
	Get(ctx context.Context) simclock.State
}

// Simulation tags every request with the current simulation flag and
// mirrors it in the X-Simulation-Mode response header.
func Simulation(src SimulationSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := src.Get(r.Context())
			if state.IsActive {
				w.Header().Set(SimulationHeader, "true")
				log.Printf("request %s %s served in simulation mode", r.Method, r.URL.Path)
			} else {
				w.Header().Set(SimulationHeader, "false")
			}
			ctx := context.WithValue(r.Context(), simulationKey, state.IsActive)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IsSimulation(ctx context.Context) bool {
	active, _ := ctx.Value(simulationKey).(bool)
	return active
}
