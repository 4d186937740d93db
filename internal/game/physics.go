package game

import (
	"github.com/stagebrawl/stagebrawl/internal/room"
)

// MoveIntent is a validated-shape movement update from a client. The wire
// position is client-predicted; ApplyMove bounds it rather than trusting it.
type MoveIntent struct {
	X, Y        float64
	VelocityY   float64
	HasVelocity bool
	FacingLeft  bool
	HasFacing   bool
}

// ApplyMove applies a move intent to a session, clamping the claimed
// displacement to what the tuning allows. Dead and eliminated players are
// skipped. Reports whether the session changed. Caller holds the room lock.
func ApplyMove(p *room.PlayerSession, mv MoveIntent) bool {
	if p.Dead || p.Eliminated {
		return false
	}

	changed := false

	dx := mv.X - p.X
	if dx > MaxMoveStep {
		dx = MaxMoveStep
	} else if dx < -MaxMoveStep {
		dx = -MaxMoveStep
	}
	if x := ClampX(p.X + dx); x != p.X {
		p.X = x
		changed = true
	}

	// Vertical motion is server-integrated; the only client-initiated
	// vertical change honored here is a jump, and only from the ground.
	if mv.HasVelocity && mv.VelocityY < 0 && Grounded(p.X, p.Y) {
		vy := mv.VelocityY
		if vy < JumpVelocity {
			vy = JumpVelocity
		}
		p.VelocityY = vy
		changed = true
	}

	if mv.HasFacing && p.FacingLeft != mv.FacingLeft {
		p.FacingLeft = mv.FacingLeft
		changed = true
	}
	return changed
}

// StepPlayer advances one simulation tick of vertical physics for a
// session: gravity up to terminal velocity, landing snap onto the first
// surface crossed. Reports whether the session moved. Caller holds the
// room lock.
func StepPlayer(p *room.PlayerSession) bool {
	if p.Dead || p.Eliminated {
		return false
	}

	if p.VelocityY >= 0 && Grounded(p.X, p.Y) {
		if p.VelocityY != 0 {
			p.VelocityY = 0
		}
		if p.Y > GroundY {
			p.Y = GroundY
			return true
		}
		return false
	}

	vy := p.VelocityY + Gravity
	if vy > MaxFallSpeed {
		vy = MaxFallSpeed
	}
	oldY := p.Y
	newY := oldY + vy

	if vy > 0 {
		if surface, landed := landingSurface(p.X, oldY, newY); landed {
			p.Y = surface
			p.VelocityY = 0
			return true
		}
	}

	p.Y = newY
	p.VelocityY = vy
	return true
}
