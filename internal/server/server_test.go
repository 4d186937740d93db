package server

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stagebrawl/stagebrawl/internal/auth"
)

// ---------------------------------------------------------------------------
// Hub upgrade gating
// ---------------------------------------------------------------------------

func TestHubRejectsMissingTicket(t *testing.T) {
	h := NewHub("secret", nil, slog.Default())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHubRejectsBadTicket(t *testing.T) {
	h := NewHub("secret", nil, slog.Default())

	forged := auth.IssueTicket("wrong-secret", "alice", time.Hour, time.Now())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws?ticket="+forged, nil))
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHubRejectsDuplicateUsername(t *testing.T) {
	h := NewHub("secret", nil, slog.Default())
	h.register(&Client{Username: "alice", send: make(chan WSMessage, 1)})

	ticket := auth.IssueTicket("secret", "alice", time.Hour, time.Now())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws?ticket="+ticket, nil))
	if rec.Code != 409 {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRegisterClaimsUsernameAtomically(t *testing.T) {
	h := NewHub("secret", nil, slog.Default())
	winner := &Client{Username: "alice", send: make(chan WSMessage, 1)}
	loser := &Client{Username: "alice", send: make(chan WSMessage, 1)}

	if !h.register(winner) {
		t.Fatal("first registration rejected")
	}
	if h.register(loser) {
		t.Fatal("second registration for the same username accepted")
	}

	// The losing connection's teardown must not evict the winner.
	h.unregister(loser)
	h.mu.RLock()
	cur := h.clients["alice"]
	h.mu.RUnlock()
	if cur != winner {
		t.Fatal("losing connection evicted the registered client")
	}

	h.unregister(winner)
	h.mu.RLock()
	_, ok := h.clients["alice"]
	h.mu.RUnlock()
	if ok {
		t.Fatal("client still registered after its own unregister")
	}
}

// ---------------------------------------------------------------------------
// Room broadcast bookkeeping
// ---------------------------------------------------------------------------

func TestBroadcastRoomReachesOnlyMembers(t *testing.T) {
	h := NewHub("secret", nil, slog.Default())

	alice := &Client{Username: "alice", send: make(chan WSMessage, 4)}
	bob := &Client{Username: "bob", send: make(chan WSMessage, 4)}
	carol := &Client{Username: "carol", send: make(chan WSMessage, 4)}
	for _, c := range []*Client{alice, bob, carol} {
		h.register(c)
	}
	h.JoinRoom("alice", "r1")
	h.JoinRoom("bob", "r1")
	h.JoinRoom("carol", "r2")

	h.BroadcastRoom("r1", WSMessage{Type: "ping"})

	for _, c := range []*Client{alice, bob} {
		select {
		case msg := <-c.send:
			if msg.Type != "ping" {
				t.Fatalf("%s got %q", c.Username, msg.Type)
			}
		default:
			t.Fatalf("%s got no message", c.Username)
		}
	}
	select {
	case <-carol.send:
		t.Fatal("carol received a broadcast for another room")
	default:
	}
}

func TestLeaveRoomStopsBroadcasts(t *testing.T) {
	h := NewHub("secret", nil, slog.Default())
	alice := &Client{Username: "alice", send: make(chan WSMessage, 4)}
	h.register(alice)
	h.JoinRoom("alice", "r1")
	h.LeaveRoom("alice")

	if alice.RoomID != "" {
		t.Fatalf("room id = %q after leave", alice.RoomID)
	}
	h.BroadcastRoom("r1", WSMessage{Type: "ping"})
	select {
	case <-alice.send:
		t.Fatal("received broadcast after leaving")
	default:
	}
}

func TestSendToUnknownUserIsNoOp(t *testing.T) {
	h := NewHub("secret", nil, slog.Default())
	h.SendTo("ghost", WSMessage{Type: "ping"})
	h.SendError("ghost", "nope")
}

// ---------------------------------------------------------------------------
// Rate limiter and metrics
// ---------------------------------------------------------------------------

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(10, 3, slog.Default())

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d inside burst denied", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("request beyond burst allowed")
	}

	// A different key has its own bucket.
	if !rl.Allow("5.6.7.8") {
		t.Fatal("independent key denied")
	}

	time.Sleep(150 * time.Millisecond) // 10 rps refills one token well within this
	if !rl.Allow("1.2.3.4") {
		t.Fatal("token did not refill")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetrics()
	m.IncrWSConn()
	m.IncrRooms()
	m.IncrAttacks()
	m.IncrAttacks()
	m.IncrRounds()
	m.DecrWSConn()

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["ws_connections"] != float64(0) {
		t.Fatalf("ws_connections = %v, want 0", got["ws_connections"])
	}
	if got["attacks_resolved"] != float64(2) {
		t.Fatalf("attacks_resolved = %v, want 2", got["attacks_resolved"])
	}
	if got["rounds_completed"] != float64(1) {
		t.Fatalf("rounds_completed = %v, want 1", got["rounds_completed"])
	}
}
