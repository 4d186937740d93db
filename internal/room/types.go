package room

import (
	"errors"
	"time"
)

type RoundState int

const (
	StateWaiting RoundState = iota // fewer than MinPlayers present, no combat
	StateInProgress
	StateGameOver // winner declared, controls frozen until reset
	StateResetting
)

func (s RoundState) String() string {
	switch s {
	case StateWaiting:
		return "waiting_for_players"
	case StateInProgress:
		return "in_progress"
	case StateGameOver:
		return "game_over"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

var (
	ErrRoomFull     = errors.New("room is full")
	ErrNotInRoom    = errors.New("player not in room")
	ErrRoomNotFound = errors.New("room not found")
)

const (
	FullHealth   = 100
	DefaultLives = 3

	// MinPlayers is the live-player threshold for a round to run.
	MinPlayers = 2

	spawnMinX = 50
	spawnMaxX = 750
)

// Config holds the per-room settings chosen at creation.
type Config struct {
	Name       string
	MaxPlayers int
}

// PlayerSession is one connected identity's transient game state,
// owned by a Room and mutated only under the room lock.
type PlayerSession struct {
	Username   string
	X, Y       float64
	VelocityX  float64
	VelocityY  float64
	FacingLeft bool

	Health int
	Lives  int
	Score  int

	// Dead marks a death animation in progress: the player is awaiting
	// respawn and excluded from movement and attack resolution.
	// Eliminated is permanent for the round. At most one of the two is set.
	Dead       bool
	Eliminated bool

	InvulnerableUntil time.Time
	LastAttack        time.Time
	JoinedAt          time.Time
}

// Attackable reports whether the player can currently be targeted.
func (p *PlayerSession) Attackable(now time.Time) bool {
	return !p.Dead && !p.Eliminated && !p.Invulnerable(now)
}

// Alive reports whether the player participates in the live count.
// A dead-but-not-eliminated player still counts: they will respawn.
func (p *PlayerSession) Alive() bool {
	return !p.Eliminated
}

func (p *PlayerSession) Invulnerable(now time.Time) bool {
	return now.Before(p.InvulnerableUntil)
}

func (p *PlayerSession) OnCooldown(now time.Time, cooldown time.Duration) bool {
	return now.Sub(p.LastAttack) < cooldown
}

// PlayerSnapshot is the wire form of a session, used in game_state
// and player_move_batch payloads.
type PlayerSnapshot struct {
	Username          string  `json:"username"`
	X                 float64 `json:"x"`
	Y                 float64 `json:"y"`
	VelocityY         float64 `json:"velocity_y"`
	FacingLeft        bool    `json:"facing_left"`
	Health            int     `json:"health"`
	Lives             int     `json:"lives"`
	Score             int     `json:"score"`
	Dead              bool    `json:"dead"`
	Eliminated        bool    `json:"eliminated"`
	InvulnerableUntil int64   `json:"invulnerable_until,omitempty"` // unix ms
}

// Snapshot is the full authoritative room state broadcast on join,
// leave and round transitions.
type Snapshot struct {
	RoomID     string                    `json:"room_id"`
	RoomName   string                    `json:"room_name"`
	MaxPlayers int                       `json:"max_players"`
	State      string                    `json:"state"`
	Winner     string                    `json:"winner,omitempty"`
	Players    map[string]PlayerSnapshot `json:"players"`
	WinCounts  map[string]int            `json:"win_counts"`
}

// Info is the lobby-listing summary for a room.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	State       string `json:"state"`
}
