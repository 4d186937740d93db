package game

import (
	"math"
	"time"

	"github.com/stagebrawl/stagebrawl/internal/room"
)

// Suppression reasons for attacks that resolve to a no-op. These mirror
// rate limiting: they are outcomes, not errors, and are never surfaced to
// the attacker.
const (
	SuppressAttackerDown = "attacker_down"
	SuppressCooldown     = "cooldown"
	SuppressTargetDown   = "target_down"
	SuppressInvulnerable = "target_invulnerable"
	SuppressOutOfRange   = "out_of_range"
)

// AttackOutcome describes the effects of one attack resolution. The
// resolver never talks to the transport; the engine forwards these as
// events.
type AttackOutcome struct {
	Hit    bool
	Reason string // suppression reason when Hit is false

	TargetHealth   int
	Died           bool
	Eliminated     bool
	LivesRemaining int
	RespawnAt      time.Time // set when Died and not Eliminated
}

// ResolveAttack validates and applies an attack between two sessions.
// Checks run in order and the first failure short-circuits with no state
// change. On a hit it records the attacker cooldown, applies damage and
// runs the death sequence. Caller holds the room lock.
func ResolveAttack(attacker, target *room.PlayerSession, now time.Time) AttackOutcome {
	if attacker == nil || attacker.Dead || attacker.Eliminated {
		return AttackOutcome{Reason: SuppressAttackerDown}
	}
	if attacker.OnCooldown(now, AttackCooldown) {
		return AttackOutcome{Reason: SuppressCooldown}
	}
	if target == nil || target.Dead || target.Eliminated {
		return AttackOutcome{Reason: SuppressTargetDown}
	}
	if target.Invulnerable(now) {
		return AttackOutcome{Reason: SuppressInvulnerable}
	}
	if math.Hypot(target.X-attacker.X, target.Y-attacker.Y) > AttackRange {
		return AttackOutcome{Reason: SuppressOutOfRange}
	}

	attacker.LastAttack = now
	target.Health -= AttackDamage
	if target.Health < 0 {
		target.Health = 0
	}

	out := AttackOutcome{Hit: true, TargetHealth: target.Health}
	if target.Health > 0 {
		return out
	}

	// Death sequence: one life lost, then either elimination or a
	// scheduled respawn, never both.
	target.Lives--
	out.Died = true
	out.LivesRemaining = target.Lives
	attacker.Score += 100

	if target.Lives <= 0 {
		target.Lives = 0
		target.Eliminated = true
		out.Eliminated = true
		out.LivesRemaining = 0
	} else {
		target.Dead = true
		out.RespawnAt = now.Add(RespawnDelay)
	}
	return out
}
