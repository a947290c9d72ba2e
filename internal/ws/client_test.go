package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carepos/api/internal/auth"
	"github.com/carepos/api/internal/enum"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const testSecret = "ws-test-secret"

// --- Mock Watchables ---

type mockWatchables struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (bool, error)
}

func (m *mockWatchables) Watchable(ctx context.Context, checkoutID uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.fn(call)
}

func newWSServer(t *testing.T, hub *Hub, checkouts Watchables) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ws/checkouts/{id}", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, checkouts, testSecret, w, r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func testToken(t *testing.T) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, uuid.New(), enum.EmployeeRoleCashier)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func TestServeWS_FinishedCheckoutRejected(t *testing.T) {
	hub := startHub(t)
	checkouts := &mockWatchables{fn: func(int) (bool, error) { return false, nil }}
	srv := newWSServer(t, hub, checkouts)

	resp, err := http.Get(srv.URL + "/ws/checkouts/" + uuid.NewString() + "?token=" + testToken(t))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusGone {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusGone)
	}
}

func TestServeWS_LookupError(t *testing.T) {
	hub := startHub(t)
	checkouts := &mockWatchables{fn: func(int) (bool, error) { return false, errors.New("db down") }}
	srv := newWSServer(t, hub, checkouts)

	resp, err := http.Get(srv.URL + "/ws/checkouts/" + uuid.NewString() + "?token=" + testToken(t))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestServeWS_MissingToken(t *testing.T) {
	hub := startHub(t)
	checkouts := &mockWatchables{fn: func(int) (bool, error) { return true, nil }}
	srv := newWSServer(t, hub, checkouts)

	resp, err := http.Get(srv.URL + "/ws/checkouts/" + uuid.NewString())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if checkouts.calls != 0 {
		t.Errorf("watchable lookups: got %d, want 0", checkouts.calls)
	}
}

func TestServeWS_FinishedWhileJoiningIsClosed(t *testing.T) {
	hub := startHub(t)
	// Live at the first check, finished by the time the client has joined.
	checkouts := &mockWatchables{fn: func(call int) (bool, error) { return call == 1, nil }}
	srv := newWSServer(t, hub, checkouts)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/checkouts/" + uuid.NewString() + "?token=" + testToken(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close frame, got %v", err)
	}
}

func TestServeWS_LiveCheckoutStreams(t *testing.T) {
	hub := startHub(t)
	checkouts := &mockWatchables{fn: func(int) (bool, error) { return true, nil }}
	srv := newWSServer(t, hub, checkouts)

	checkoutID := uuid.New()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/checkouts/" + checkoutID.String() + "?token=" + testToken(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Watchers(checkoutID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("watcher was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	event, err := NewEvent(EventCheckoutState, map[string]string{"state": "creating"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	hub.BroadcastToCheckout(checkoutID, event)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"state":"creating"`) {
		t.Errorf("message: got %s", msg)
	}
}
