package router

import (
	"log"
	"net/http"

	"github.com/carepos/api/internal/config"
	"github.com/carepos/api/internal/database"
	"github.com/carepos/api/internal/handler"
	"github.com/carepos/api/internal/metrics"
	mw "github.com/carepos/api/internal/middleware"
	"github.com/carepos/api/internal/service"
	"github.com/carepos/api/internal/simclock"
	"github.com/carepos/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the long-lived components the routes are served by.
type Deps struct {
	Queries    *database.Queries
	Hub        *ws.Hub
	Checkouts  *service.CheckoutService
	Simulation *simclock.Cache
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, simulation headers and role-based middleware as needed.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{mw.SimulationHeader},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(mw.Simulation(d.Simulation))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})
	r.Method("GET", "/metrics", metrics.Handler(d.Gatherer))

	authHandler := handler.NewAuthHandler(d.Queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/checkouts/{id}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(d.Hub, d.Checkouts, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		checkoutHandler := handler.NewCheckoutHandler(d.Checkouts)
		r.Route("/checkouts", checkoutHandler.RegisterRoutes)

		simulationHandler := handler.NewSimulationHandler(d.Simulation)
		simulationHandler.RegisterRoutes(r)
	})

	log.Println("Router initialized with all handlers")
	return r
}
