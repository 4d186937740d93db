package game

import "time"

// Stage geometry. Coordinates are canvas units: x grows right, y grows
// down, (0,0) is the top-left corner. Positions refer to a player's center.
const (
	StageWidth  = 800.0
	StageHeight = 600.0

	PlayerRadius = 25.0

	// GroundY is the resting center height on the floor. Mirrors the
	// client's prediction so the server never fights the renderer.
	GroundY = StageHeight - 100
)

// Movement tuning.
const (
	// MaxMoveStep bounds the horizontal displacement accepted from a single
	// move intent. Clients move 5 units/frame; the slack covers input
	// batching without allowing teleports.
	MaxMoveStep = 15.0

	Gravity      = 5.0  // added to fall speed each simulation tick
	MaxFallSpeed = 15.0 // terminal velocity, units per tick

	// JumpVelocity yields a 140-unit arc: enough to reach the low
	// platforms from the floor and the high platform from a low one.
	JumpVelocity = -40.0
)

// Combat tuning.
const (
	AttackRange    = 60.0
	AttackDamage   = 25
	AttackCooldown = 1000 * time.Millisecond
)

// Round sequencing.
const (
	RespawnDelay  = 2000 * time.Millisecond
	InvulnWindow  = 3000 * time.Millisecond
	GameOverDelay = 5000 * time.Millisecond
)

// Simulation and broadcast cadence. Movement deltas go out once per tick;
// full snapshots only on membership and round transitions.
const (
	TickRate = 50 * time.Millisecond // 20Hz
)

// Platform is a one-way surface: players land on its top edge and pass
// through from below. Y is the top surface; players rest with their
// center PlayerRadius above it.
type Platform struct {
	X, Y, Width float64
}

// DefaultPlatforms is the fixed stage layout shared by every room. The
// middle platform sits high enough to matter but low enough that a
// grounded player's jump arc still brings anyone on it into attack range.
var DefaultPlatforms = []Platform{
	{X: 100, Y: 420, Width: 160},
	{X: 540, Y: 420, Width: 160},
	{X: 320, Y: 340, Width: 160},
}
