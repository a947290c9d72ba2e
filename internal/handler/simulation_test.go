package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carepos/api/internal/handler"
	"github.com/carepos/api/internal/simclock"
	"github.com/go-chi/chi/v5"
)

type stubSimulation struct {
	state simclock.State
}

func (s stubSimulation) Get(ctx context.Context) simclock.State { return s.state }

func TestSimulationGet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := handler.NewSimulationHandler(stubSimulation{state: simclock.State{
		IsActive: true,
		Params:   &simclock.Params{StartDateUTC: &start},
		Source:   simclock.SourceCache,
	}})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/simulation", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeResponse(t, rr)
	if resp["is_active"] != true {
		t.Errorf("is_active: got %v, want true", resp["is_active"])
	}
	if resp["source"] != "cache" {
		t.Errorf("source: got %v, want cache", resp["source"])
	}
	params, ok := resp["params"].(map[string]interface{})
	if !ok {
		t.Fatal("expected params object")
	}
	if params["start_date_utc"] != "2026-01-01T00:00:00Z" {
		t.Errorf("start_date_utc: got %v", params["start_date_utc"])
	}
}

func TestSimulationGet_Inactive(t *testing.T) {
	h := handler.NewSimulationHandler(stubSimulation{state: simclock.State{Source: simclock.SourceDB}})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/simulation", nil))

	resp := decodeResponse(t, rr)
	if resp["is_active"] != false {
		t.Errorf("is_active: got %v, want false", resp["is_active"])
	}
	if resp["params"] != nil {
		t.Errorf("params: got %v, want null", resp["params"])
	}
}
