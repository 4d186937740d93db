package room

import (
	"math/rand"
	"sync"
	"time"
)

// Room holds the full mutable state for a single game instance.
//
// Membership and snapshot methods lock internally. Gameplay code (the
// per-room engine loop) holds Mu across a whole resolution step and uses
// the *Locked helpers, so move application, attack resolution and timer
// firings can never interleave within one room.
type Room struct {
	Mu sync.RWMutex

	ID         string
	Name       string
	MaxPlayers int

	// Players is keyed by username; joinOrder preserves insertion order
	// for deterministic broadcasts only, never for game logic.
	Players   map[string]*PlayerSession
	joinOrder []string

	State     RoundState
	Winner    string
	WinCounts map[string]int

	CreatedAt  time.Time
	emptySince time.Time
}

func NewRoom(id string, cfg Config, now time.Time) *Room {
	return &Room{
		ID:         id,
		Name:       cfg.Name,
		MaxPlayers: cfg.MaxPlayers,
		Players:    make(map[string]*PlayerSession),
		State:      StateWaiting,
		WinCounts:  make(map[string]int),
		CreatedAt:  now,
		emptySince: now,
	}
}

// JoinResult reports the side effects of a successful join.
type JoinResult struct {
	Player   PlayerSnapshot
	Rejoined bool // an existing session was re-attached instead of created
	Started  bool // the join moved the round from waiting to in progress
}

// Join adds a player or re-attaches to an existing session with the same
// username. Returns ErrRoomFull when the room is at capacity and the
// username is not already present.
func (r *Room) Join(username string, now time.Time) (JoinResult, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if p, ok := r.Players[username]; ok {
		return JoinResult{Player: p.snapshot(), Rejoined: true}, nil
	}
	if len(r.Players) >= r.MaxPlayers {
		return JoinResult{}, ErrRoomFull
	}

	p := &PlayerSession{
		Username: username,
		X:        spawnX(),
		Y:        0, // falls onto the stage
		Health:   FullHealth,
		Lives:    DefaultLives,
		JoinedAt: now,
	}
	r.Players[username] = p
	r.joinOrder = append(r.joinOrder, username)
	if _, ok := r.WinCounts[username]; !ok {
		r.WinCounts[username] = 0
	}
	r.emptySince = time.Time{}

	res := JoinResult{Player: p.snapshot()}
	if r.State == StateWaiting && len(r.Players) >= MinPlayers {
		r.State = StateInProgress
		res.Started = true
	}
	return res, nil
}

// LeaveResult reports the side effects of a leave.
type LeaveResult struct {
	Remaining []string // usernames still present, in join order
	Empty     bool
	// Survivor is set when the leave dropped the live count to exactly one
	// during an in-progress round: that player wins by default.
	Survivor string
	// Voided is set when the leave dropped the live count to zero during an
	// in-progress round: no winner, the round resets.
	Voided bool
}

// Leave removes a player's session. Pending timers referencing the username
// become no-ops at fire time; nothing is cancelled here.
func (r *Room) Leave(username string, now time.Time) (LeaveResult, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if _, ok := r.Players[username]; !ok {
		return LeaveResult{}, ErrNotInRoom
	}
	delete(r.Players, username)
	for i, name := range r.joinOrder {
		if name == username {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}

	res := LeaveResult{Remaining: append([]string(nil), r.joinOrder...)}
	if len(r.Players) == 0 {
		r.emptySince = now
		res.Empty = true
	}

	if r.State == StateInProgress {
		switch live := r.livePlayersLocked(); len(live) {
		case 1:
			res.Survivor = live[0].Username
		case 0:
			res.Voided = true
		}
	}
	return res, nil
}

// Get returns the session for a username, or false if absent.
func (r *Room) Get(username string) (*PlayerSession, bool) {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	p, ok := r.Players[username]
	return p, ok
}

func (r *Room) PlayerCount() int {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Players)
}

// ExpiredEmpty reports whether the room has been empty for at least grace.
// Empty rooms are retained briefly so a reconnecting player finds their
// win counts intact.
func (r *Room) ExpiredEmpty(grace time.Duration, now time.Time) bool {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Players) == 0 && !r.emptySince.IsZero() && now.Sub(r.emptySince) >= grace
}

// LiveCountLocked counts non-eliminated players. Caller holds Mu.
func (r *Room) LiveCountLocked() int {
	return len(r.livePlayersLocked())
}

// LivePlayersLocked returns non-eliminated players. Caller holds Mu.
func (r *Room) LivePlayersLocked() []*PlayerSession {
	return r.livePlayersLocked()
}

func (r *Room) livePlayersLocked() []*PlayerSession {
	var out []*PlayerSession
	for _, name := range r.joinOrder {
		if p := r.Players[name]; p != nil && p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// DeclareWinnerLocked records the round result and freezes controls.
// Caller holds Mu.
func (r *Room) DeclareWinnerLocked(username string) {
	r.State = StateGameOver
	r.Winner = username
	r.WinCounts[username]++
}

// VoidRoundLocked freezes controls with no winner recorded. Used when every
// remaining player was eliminated in the same resolution step, or the last
// live player left mid-round. Caller holds Mu.
func (r *Room) VoidRoundLocked() {
	r.State = StateGameOver
	r.Winner = ""
}

// RespawnLocked restores a dead session for its next life: full health,
// fresh spawn point, invulnerability window started. A no-op when the
// session is gone, was never dead, or has since been eliminated: a stale
// respawn timer must not resurrect anyone. Caller holds Mu.
func (r *Room) RespawnLocked(username string, now time.Time, invuln time.Duration) (*PlayerSession, bool) {
	p, ok := r.Players[username]
	if !ok || !p.Dead || p.Eliminated {
		return nil, false
	}
	p.Health = FullHealth
	p.Dead = false
	p.InvulnerableUntil = now.Add(invuln)
	p.X = spawnX()
	p.Y = 0
	p.VelocityX = 0
	p.VelocityY = 0
	return p, true
}

// ResetRoundLocked restores every present session to a fresh-round state
// and returns the new round state: in progress when enough players remain,
// otherwise waiting. Caller holds Mu.
func (r *Room) ResetRoundLocked(now time.Time) RoundState {
	for _, p := range r.Players {
		p.Health = FullHealth
		p.Lives = DefaultLives
		p.Score = 0
		p.Dead = false
		p.Eliminated = false
		p.InvulnerableUntil = time.Time{}
		p.LastAttack = time.Time{}
		p.X = spawnX()
		p.Y = 0
		p.VelocityX = 0
		p.VelocityY = 0
	}
	r.Winner = ""
	if len(r.Players) >= MinPlayers {
		r.State = StateInProgress
	} else {
		r.State = StateWaiting
	}
	return r.State
}

// Snapshot returns the full authoritative state for a game_state broadcast.
func (r *Room) Snapshot() Snapshot {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.snapshotLocked()
}

// SnapshotLocked is Snapshot for callers already holding Mu.
func (r *Room) SnapshotLocked() Snapshot {
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	players := make(map[string]PlayerSnapshot, len(r.Players))
	for name, p := range r.Players {
		players[name] = p.snapshot()
	}
	wins := make(map[string]int, len(r.WinCounts))
	for name, n := range r.WinCounts {
		wins[name] = n
	}
	return Snapshot{
		RoomID:     r.ID,
		RoomName:   r.Name,
		MaxPlayers: r.MaxPlayers,
		State:      r.State.String(),
		Winner:     r.Winner,
		Players:    players,
		WinCounts:  wins,
	}
}

// Info returns the lobby summary.
func (r *Room) Info() Info {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return Info{
		ID:          r.ID,
		Name:        r.Name,
		PlayerCount: len(r.Players),
		MaxPlayers:  r.MaxPlayers,
		State:       r.State.String(),
	}
}

func (p *PlayerSession) snapshot() PlayerSnapshot {
	s := PlayerSnapshot{
		Username:   p.Username,
		X:          p.X,
		Y:          p.Y,
		VelocityY:  p.VelocityY,
		FacingLeft: p.FacingLeft,
		Health:     p.Health,
		Lives:      p.Lives,
		Score:      p.Score,
		Dead:       p.Dead,
		Eliminated: p.Eliminated,
	}
	if !p.InvulnerableUntil.IsZero() {
		s.InvulnerableUntil = p.InvulnerableUntil.UnixMilli()
	}
	return s
}

func spawnX() float64 {
	return spawnMinX + rand.Float64()*(spawnMaxX-spawnMinX)
}
