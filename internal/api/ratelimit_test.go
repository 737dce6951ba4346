package api

import (
	"net/http"
	"testing"
	"time"
)

// TestAssignLimiterAllow ensures a player is cut off after maxDraws and
// that players are tracked independently.
func TestAssignLimiterAllow(t *testing.T) {
	l := NewAssignLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow("p1") {
			t.Fatalf("draw %d rejected inside the limit", i)
		}
	}
	if l.Allow("p1") {
		t.Error("draw over the limit allowed")
	}
	if !l.Allow("p2") {
		t.Error("limit leaked across players")
	}
	if l.RetryAfter("p1") <= 0 {
		t.Error("limited player reported zero retry delay")
	}
	if l.RetryAfter("p2") != 0 {
		t.Error("unlimited player reported a retry delay")
	}
}

// TestAssignLimiterWindowSlides ensures draws age out of the window rather
// than the bucket resetting all at once.
func TestAssignLimiterWindowSlides(t *testing.T) {
	l := NewAssignLimiter(1, 10*time.Millisecond)

	if !l.Allow("p1") {
		t.Fatal("first draw rejected")
	}
	if l.Allow("p1") {
		t.Fatal("second draw inside the window allowed")
	}

	time.Sleep(15 * time.Millisecond)
	if !l.Allow("p1") {
		t.Error("draw after the window slid rejected")
	}
}

// TestAssignLimiterRejectionNotCounted ensures rejected attempts do not
// extend how long a player stays limited.
func TestAssignLimiterRejectionNotCounted(t *testing.T) {
	l := NewAssignLimiter(1, 20*time.Millisecond)

	if !l.Allow("p1") {
		t.Fatal("first draw rejected")
	}
	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		l.Allow("p1")
	}
	// 25ms have passed since the only counted draw.
	if !l.Allow("p1") {
		t.Error("rejected attempts kept the player limited")
	}
}

// TestAssignEndpointRateLimited ensures an over-limit player gets 429 with
// a Retry-After header while other players still draw.
func TestAssignEndpointRateLimited(t *testing.T) {
	srv := newTestServer(t)
	srv.Limiter = NewAssignLimiter(1, time.Hour)
	handler := srv.adminOnly(srv.handleAssign)

	if w := postJSON(t, handler, "/api/v1/assign", testAdminKey, `{"player_id": "p1"}`); w.Code != http.StatusOK {
		t.Fatalf("first draw = %d, body %s", w.Code, w.Body.String())
	}

	w := postJSON(t, handler, "/api/v1/assign", testAdminKey, `{"player_id": "p1"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second draw = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}

	if w := postJSON(t, handler, "/api/v1/assign", testAdminKey, `{"player_id": "p2"}`); w.Code != http.StatusOK {
		t.Errorf("other player = %d, want 200", w.Code)
	}

	// The limited draw must not have reached the engine.
	if got := srv.Ledger.Snapshot().TotalAssigned(); got != 2 {
		t.Errorf("total assigned = %d, want 2", got)
	}
}
