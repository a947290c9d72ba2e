// Package simclock caches the system simulation switch stored in the
// system_parameters table.
package simclock

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/carepos/api/internal/database"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"
)

// Store is satisfied by *database.Queries.
type Store interface {
	GetSystemParameters(ctx context.Context, id int32) (database.SystemParameter, error)
}

// Source tells where a State came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDB       Source = "db"
	SourceFallback Source = "fallback"
)

// Params is the simulation window. Nil when the parameters row is missing.
type Params struct {
	StartDateUTC *time.Time `json:"start_date_utc"`
	EndDateUTC   *time.Time `json:"end_date_utc"`
}

type State struct {
	IsActive    bool      `json:"is_active"`
	Params      *Params   `json:"params"`
	Source      Source    `json:"source"`
	LastFetched time.Time `json:"last_fetched"`
}

// Cache memoizes the parameters row for ttl. Concurrent refreshes share a
// single query; when the query fails the last known state is served.
type Cache struct {
	store Store
	id    int32
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	loaded      bool
	isActive    bool
	params      *Params
	lastFetched time.Time
}

func New(store Store, id int32, ttl time.Duration) *Cache {
	return &Cache{store: store, id: id, ttl: ttl, now: time.Now}
}

// Get returns the cached state, refreshing it from the database when stale.
func (c *Cache) Get(ctx context.Context) State {
	c.mu.RLock()
	if c.loaded && c.now().Sub(c.lastFetched) < c.ttl {
		s := c.stateLocked(SourceCache)
		c.mu.RUnlock()
		return s
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		log.Printf("WARNING: simulation parameters unavailable, using last known state: %v", err)
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.stateLocked(SourceFallback)
	}
	return v.(State)
}

// Current returns the last known state without touching the database.
func (c *Cache) Current() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked(SourceCache)
}

// Invalidate forces the next Get to query the database.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context) (State, error) {
	row, err := c.store.GetSystemParameters(ctx, c.id)
	var params *Params
	active := false
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		log.Printf("WARNING: no system parameters found for id %d", c.id)
	case err != nil:
		return State{}, err
	default:
		active = row.IsSimulation
		params = &Params{}
		if row.StartDateUtc.Valid {
			t := row.StartDateUtc.Time.UTC()
			params.StartDateUTC = &t
		}
		if row.EndDateUtc.Valid {
			t := row.EndDateUtc.Time.UTC()
			params.EndDateUTC = &t
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.isActive = active
	c.params = params
	c.lastFetched = c.now()
	return c.stateLocked(SourceDB), nil
}

func (c *Cache) stateLocked(src Source) State {
	return State{
		IsActive:    c.isActive,
		Params:      c.params,
		Source:      src,
		LastFetched: c.lastFetched,
	}
}
