package game

import (
	"sync"
	"time"
)

// MoveRateLimiter bounds how often a single player's move intents are
// accepted, keyed by username. A client flooding position updates is
// throttled before anything reaches the room loop. Server-authoritative
// timing.
type MoveRateLimiter struct {
	mu          sync.Mutex
	lastMove    map[string]time.Time
	minInterval time.Duration
}

func NewMoveRateLimiter(minInterval time.Duration) *MoveRateLimiter {
	return &MoveRateLimiter{
		lastMove:    make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Allow returns true if enough time has passed since the player's last
// accepted move.
func (ml *MoveRateLimiter) Allow(username string) bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	last, ok := ml.lastMove[username]
	if ok && now.Sub(last) < ml.minInterval {
		return false
	}
	ml.lastMove[username] = now
	return true
}

// Reset clears tracking for a player (called when they leave a room).
func (ml *MoveRateLimiter) Reset(username string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	delete(ml.lastMove, username)
}
