package room

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the process-wide map of active rooms. Its lock covers only
// lookup, insert and remove, never gameplay, so rooms on different
// engine loops never contend with each other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	grace  time.Duration
	logger *slog.Logger

	// onRemove lets the engine stop a room's loop when the registry
	// drops the room.
	onRemove func(*Room)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRegistry(grace time.Duration, logger *slog.Logger) *Registry {
	reg := &Registry{
		rooms:  make(map[string]*Room),
		grace:  grace,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	reg.wg.Add(1)
	go reg.cleanupLoop()
	return reg
}

// SetOnRemove registers a hook invoked after a room leaves the registry.
func (reg *Registry) SetOnRemove(fn func(*Room)) {
	reg.mu.Lock()
	reg.onRemove = fn
	reg.mu.Unlock()
}

// Create makes a new room with a fresh id.
func (reg *Registry) Create(cfg Config) (*Room, error) {
	if cfg.MaxPlayers < MinPlayers || cfg.MaxPlayers > 4 {
		return nil, fmt.Errorf("max players must be %d-4, got %d", MinPlayers, cfg.MaxPlayers)
	}
	if cfg.Name == "" {
		cfg.Name = "Game Room"
	}
	r := NewRoom(uuid.New().String(), cfg, time.Now())

	reg.mu.Lock()
	reg.rooms[r.ID] = r
	reg.mu.Unlock()

	reg.logger.Info("room created", "room", r.ID, "name", r.Name, "max_players", r.MaxPlayers)
	return r, nil
}

// GetOrCreate returns the room with the given id, creating it when absent.
func (reg *Registry) GetOrCreate(id string, cfg Config) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok {
		return r
	}
	if cfg.MaxPlayers < MinPlayers || cfg.MaxPlayers > 4 {
		cfg.MaxPlayers = 4
	}
	if cfg.Name == "" {
		cfg.Name = "Game Room"
	}
	r := NewRoom(id, cfg, time.Now())
	reg.rooms[id] = r
	reg.logger.Info("room created", "room", r.ID, "name", r.Name, "max_players", r.MaxPlayers)
	return r
}

func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Remove drops a room regardless of occupancy and fires the onRemove hook.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	if ok {
		delete(reg.rooms, id)
	}
	fn := reg.onRemove
	reg.mu.Unlock()

	if ok && fn != nil {
		fn(r)
	}
}

// RemoveIfEmpty drops a room only when it has no players. Returns whether
// the room was removed.
func (reg *Registry) RemoveIfEmpty(id string) bool {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	if !ok {
		reg.mu.Unlock()
		return false
	}
	if r.PlayerCount() > 0 {
		reg.mu.Unlock()
		return false
	}
	delete(reg.rooms, id)
	fn := reg.onRemove
	reg.mu.Unlock()

	if fn != nil {
		fn(r)
	}
	reg.logger.Info("room removed", "room", id)
	return true
}

// List returns lobby summaries for every active room.
func (reg *Registry) List() []Info {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]Info, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r.Info())
	}
	return out
}

func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

func (reg *Registry) cleanupLoop() {
	defer reg.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reg.Cleanup(time.Now())
		case <-reg.stopCh:
			return
		}
	}
}

// Cleanup removes rooms that have been empty past the grace period.
// Exported so tests can drive it with a chosen clock.
func (reg *Registry) Cleanup(now time.Time) {
	reg.mu.RLock()
	var expired []string
	for id, r := range reg.rooms {
		if r.ExpiredEmpty(reg.grace, now) {
			expired = append(expired, id)
		}
	}
	reg.mu.RUnlock()

	for _, id := range expired {
		if reg.RemoveIfEmpty(id) {
			reg.logger.Info("empty room expired", "room", id)
		}
	}
}

// Stop terminates the cleanup loop.
func (reg *Registry) Stop() {
	close(reg.stopCh)
	reg.wg.Wait()
}
