package game

import (
	"testing"
	"time"

	"github.com/stagebrawl/stagebrawl/internal/room"
)

var baseTime = time.Unix(1700000000, 0)

func fighter(name string, x, y float64) *room.PlayerSession {
	return &room.PlayerSession{
		Username: name,
		X:        x,
		Y:        y,
		Health:   room.FullHealth,
		Lives:    room.DefaultLives,
	}
}

// ---------------------------------------------------------------------------
// 1. Ordered suppression checks
// ---------------------------------------------------------------------------

func TestAttackSuppressedWhenAttackerDown(t *testing.T) {
	a := fighter("a", 100, GroundY)
	b := fighter("b", 120, GroundY)
	a.Dead = true

	out := ResolveAttack(a, b, baseTime)
	if out.Hit {
		t.Fatal("dead attacker should not land a hit")
	}
	if out.Reason != SuppressAttackerDown {
		t.Fatalf("reason = %q, want %q", out.Reason, SuppressAttackerDown)
	}
	if b.Health != room.FullHealth {
		t.Fatalf("target health changed to %d on a suppressed attack", b.Health)
	}
}

func TestAttackCooldown(t *testing.T) {
	a := fighter("a", 100, GroundY)
	b := fighter("b", 120, GroundY)

	first := ResolveAttack(a, b, baseTime)
	if !first.Hit {
		t.Fatalf("first attack suppressed: %q", first.Reason)
	}

	// Second swing inside the cooldown window is a silent no-op.
	second := ResolveAttack(a, b, baseTime.Add(AttackCooldown/2))
	if second.Hit {
		t.Fatal("attack inside cooldown should be suppressed")
	}
	if second.Reason != SuppressCooldown {
		t.Fatalf("reason = %q, want %q", second.Reason, SuppressCooldown)
	}
	if b.Health != room.FullHealth-AttackDamage {
		t.Fatalf("suppressed attack changed health: %d", b.Health)
	}

	// At exactly the cooldown boundary the attack goes through.
	third := ResolveAttack(a, b, baseTime.Add(AttackCooldown))
	if !third.Hit {
		t.Fatalf("attack at cooldown boundary suppressed: %q", third.Reason)
	}
}

func TestAttackSuppressedWhenTargetDown(t *testing.T) {
	a := fighter("a", 100, GroundY)
	b := fighter("b", 120, GroundY)
	b.Eliminated = true

	out := ResolveAttack(a, b, baseTime)
	if out.Hit || out.Reason != SuppressTargetDown {
		t.Fatalf("got hit=%v reason=%q, want suppressed %q", out.Hit, out.Reason, SuppressTargetDown)
	}
	if !a.LastAttack.IsZero() {
		t.Fatal("suppressed attack must not consume the cooldown")
	}
}

func TestAttackSuppressedWhenTargetInvulnerable(t *testing.T) {
	a := fighter("a", 100, GroundY)
	b := fighter("b", 120, GroundY)
	b.InvulnerableUntil = baseTime.Add(InvulnWindow)

	out := ResolveAttack(a, b, baseTime)
	if out.Hit || out.Reason != SuppressInvulnerable {
		t.Fatalf("got hit=%v reason=%q, want suppressed %q", out.Hit, out.Reason, SuppressInvulnerable)
	}

	// The instant the window lapses the target is attackable again.
	out = ResolveAttack(a, b, baseTime.Add(InvulnWindow))
	if !out.Hit {
		t.Fatalf("attack after invulnerability lapsed suppressed: %q", out.Reason)
	}
}

func TestAttackRange(t *testing.T) {
	a := fighter("a", 100, GroundY)
	far := fighter("far", 100+AttackRange+1, GroundY)
	edge := fighter("edge", 100+AttackRange, GroundY)

	out := ResolveAttack(a, far, baseTime)
	if out.Hit || out.Reason != SuppressOutOfRange {
		t.Fatalf("got hit=%v reason=%q, want suppressed %q", out.Hit, out.Reason, SuppressOutOfRange)
	}

	// Range is inclusive and measured in 2D, so vertical separation counts.
	out = ResolveAttack(a, edge, baseTime)
	if !out.Hit {
		t.Fatalf("attack at exact range suppressed: %q", out.Reason)
	}

	b := fighter("b", 100, GroundY-AttackRange-1)
	out = ResolveAttack(a, b, baseTime.Add(2 * AttackCooldown))
	if out.Hit {
		t.Fatal("vertical separation beyond range should suppress")
	}
}

// ---------------------------------------------------------------------------
// 2. Damage, death and elimination
// ---------------------------------------------------------------------------

func TestDamageAndDeathSequence(t *testing.T) {
	a := fighter("a", 100, GroundY)
	b := fighter("b", 120, GroundY)

	// Three hits leave the target at 25 health, alive.
	now := baseTime
	for i := 0; i < 3; i++ {
		out := ResolveAttack(a, b, now)
		if !out.Hit {
			t.Fatalf("hit %d suppressed: %q", i+1, out.Reason)
		}
		if out.Died {
			t.Fatalf("hit %d should not kill", i+1)
		}
		now = now.Add(AttackCooldown)
	}
	if b.Health != 25 {
		t.Fatalf("health = %d, want 25", b.Health)
	}

	// The fourth hit kills: a life is lost and a respawn is scheduled.
	out := ResolveAttack(a, b, now)
	if !out.Died || out.Eliminated {
		t.Fatalf("got died=%v eliminated=%v, want death without elimination", out.Died, out.Eliminated)
	}
	if !b.Dead || b.Eliminated {
		t.Fatalf("session flags dead=%v eliminated=%v after first death", b.Dead, b.Eliminated)
	}
	if out.LivesRemaining != room.DefaultLives-1 {
		t.Fatalf("lives = %d, want %d", out.LivesRemaining, room.DefaultLives-1)
	}
	if want := now.Add(RespawnDelay); !out.RespawnAt.Equal(want) {
		t.Fatalf("respawn at %v, want %v", out.RespawnAt, want)
	}
	if a.Score != 100 {
		t.Fatalf("attacker score = %d, want 100", a.Score)
	}
}

func TestEliminationOnLastLife(t *testing.T) {
	a := fighter("a", 100, GroundY)
	b := fighter("b", 120, GroundY)
	b.Lives = 1
	b.Health = AttackDamage

	out := ResolveAttack(a, b, baseTime)
	if !out.Hit || !out.Died || !out.Eliminated {
		t.Fatalf("got hit=%v died=%v eliminated=%v, want elimination", out.Hit, out.Died, out.Eliminated)
	}
	if b.Dead {
		t.Fatal("eliminated player must not also be flagged dead")
	}
	if !b.Eliminated || b.Lives != 0 {
		t.Fatalf("session eliminated=%v lives=%d after final death", b.Eliminated, b.Lives)
	}
	if !out.RespawnAt.IsZero() {
		t.Fatal("eliminated player must not get a respawn time")
	}
}

func TestHealthFlooredAtZero(t *testing.T) {
	a := fighter("a", 100, GroundY)
	b := fighter("b", 120, GroundY)
	b.Health = 10

	out := ResolveAttack(a, b, baseTime)
	if out.TargetHealth != 0 || b.Health != 0 {
		t.Fatalf("health = %d (outcome %d), want 0", b.Health, out.TargetHealth)
	}
}
