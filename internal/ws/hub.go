package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event types sent to checkout watchers.
const (
	EventCheckoutState    = "checkout.state"
	EventCheckoutProgress = "checkout.progress"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// checkoutEvent routes an event to one checkout's room. A nil Event closes
// the room after everything queued before it has been delivered.
type checkoutEvent struct {
	CheckoutID uuid.UUID
	Event      *Event
}

// Hub fans checkout progress out to the clients watching each checkout.
type Hub struct {
	// Registered clients by checkout ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *checkoutEvent

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *checkoutEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.checkoutID] == nil {
				h.rooms[client.checkoutID] = make(map[*Client]bool)
			}
			h.rooms[client.checkoutID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.checkoutID]; ok {
				if _, exists := clients[client]; exists {
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			if event.Event == nil {
				for client := range h.rooms[event.CheckoutID] {
					h.dropLocked(client)
				}
				h.mu.Unlock()
				continue
			}

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				log.Printf("ERROR: marshal websocket event %s: %v", event.Event.Type, err)
				continue
			}

			for client := range h.rooms[event.CheckoutID] {
				select {
				case client.send <- message:
				default:
					// Slow consumer
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToCheckout queues an event for everyone watching checkoutID. It
// never blocks; events are dropped when the hub is saturated.
func (h *Hub) BroadcastToCheckout(checkoutID uuid.UUID, event Event) {
	h.enqueue(&checkoutEvent{CheckoutID: checkoutID, Event: &event})
}

// CloseCheckout disconnects every watcher of checkoutID once pending events
// have been sent.
func (h *Hub) CloseCheckout(checkoutID uuid.UUID) {
	h.enqueue(&checkoutEvent{CheckoutID: checkoutID})
}

// Watchers returns how many clients are watching checkoutID.
func (h *Hub) Watchers(checkoutID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[checkoutID])
}

// join registers client. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client; it returns immediately once the hub has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) enqueue(e *checkoutEvent) {
	select {
	case h.broadcast <- e:
	default:
		log.Printf("WARNING: websocket hub saturated, dropping event for checkout %s", e.CheckoutID)
	}
}

// dropLocked removes client from its room and closes its send channel.
func (h *Hub) dropLocked(client *Client) {
	clients := h.rooms[client.checkoutID]
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.checkoutID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.dropLocked(client)
		}
	}
}
