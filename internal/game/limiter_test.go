package game

import (
	"testing"
	"time"
)

func TestMoveRateLimiter(t *testing.T) {
	ml := NewMoveRateLimiter(50 * time.Millisecond)

	if !ml.Allow("alice") {
		t.Fatal("first move denied")
	}
	if ml.Allow("alice") {
		t.Fatal("immediate second move allowed")
	}
	if !ml.Allow("bob") {
		t.Fatal("independent player throttled")
	}

	time.Sleep(60 * time.Millisecond)
	if !ml.Allow("alice") {
		t.Fatal("move after interval denied")
	}

	// Reset forgets the player entirely.
	ml.Reset("bob")
	if !ml.Allow("bob") {
		t.Fatal("move after reset denied")
	}
}
