package game

import (
	"math/rand"
	"time"

	"github.com/stagebrawl/stagebrawl/internal/room"
)

// BotAction is one tick of scripted input for a simulated player.
type BotAction struct {
	Move         MoveIntent
	HasMove      bool
	AttackTarget string
}

// Bot decides a player's input for a tick. Foes are the other live
// players in join order.
type Bot interface {
	Act(rng *rand.Rand, self *room.PlayerSession, foes []*room.PlayerSession, tick int) BotAction
}

type SimConfig struct {
	Usernames []string
	Bots      map[string]Bot
	MaxTicks  int
	Seed      int64
}

type SimStat struct {
	Kills          int
	Deaths         int
	AttacksThrown  int
	AttacksLanded  int
	DamageDealt    int
	SurvivedTicks  int
	Won            bool
	LivesRemaining int
}

type SimResult struct {
	Winner string
	Voided bool
	Ticks  int
	Stats  map[string]*SimStat
}

// RunSimulation plays one full round headless: no hub, no goroutines,
// virtual clock advanced by TickRate per tick. It exercises the same
// movement, combat, and round sequencing the live loop runs.
func RunSimulation(cfg SimConfig) SimResult {
	rng := rand.New(rand.NewSource(cfg.Seed))
	now := time.Unix(1700000000, 0)

	r := room.NewRoom("sim", room.Config{Name: "sim", MaxPlayers: len(cfg.Usernames)}, now)
	for _, name := range cfg.Usernames {
		if _, err := r.Join(name, now); err != nil {
			panic("sim join: " + err.Error())
		}
	}

	stats := make(map[string]*SimStat, len(cfg.Usernames))
	for _, name := range cfg.Usernames {
		stats[name] = &SimStat{}
	}

	respawnAt := make(map[string]time.Time)
	result := SimResult{Stats: stats}

	for tick := 1; tick <= cfg.MaxTicks; tick++ {
		now = now.Add(TickRate)

		r.Mu.Lock()
		if r.State != room.StateInProgress {
			r.Mu.Unlock()
			break
		}

		// Fire due respawns first so a revived player can act this tick.
		for name, due := range respawnAt {
			if !due.After(now) {
				delete(respawnAt, name)
				r.RespawnLocked(name, now, InvulnWindow)
			}
		}

		live := r.LivePlayersLocked()
		for _, p := range live {
			if p.Dead {
				continue
			}
			bot := cfg.Bots[p.Username]
			if bot == nil {
				continue
			}
			foes := make([]*room.PlayerSession, 0, len(live)-1)
			for _, f := range live {
				if f.Username != p.Username && !f.Dead {
					foes = append(foes, f)
				}
			}
			act := bot.Act(rng, p, foes, tick)
			if act.HasMove {
				ApplyMove(p, act.Move)
			}
			if act.AttackTarget != "" {
				target, ok := r.Players[act.AttackTarget]
				if ok && target.Username != p.Username {
					stats[p.Username].AttacksThrown++
					out := ResolveAttack(p, target, now)
					if out.Hit {
						stats[p.Username].AttacksLanded++
						stats[p.Username].DamageDealt += AttackDamage
						if out.Died || out.Eliminated {
							stats[p.Username].Kills++
							stats[target.Username].Deaths++
							stats[target.Username].SurvivedTicks = tick
						}
						if out.Died {
							respawnAt[target.Username] = out.RespawnAt
						}
					}
				}
			}
		}

		for _, p := range r.Players {
			if !p.Eliminated && !p.Dead {
				StepPlayer(p)
			}
		}

		switch r.LiveCountLocked() {
		case 1:
			winner := r.LivePlayersLocked()[0].Username
			r.DeclareWinnerLocked(winner)
			result.Winner = winner
			stats[winner].Won = true
			stats[winner].SurvivedTicks = tick
		case 0:
			r.VoidRoundLocked()
			result.Voided = true
		}

		done := r.State != room.StateInProgress
		r.Mu.Unlock()

		result.Ticks = tick
		if done {
			break
		}
	}

	r.Mu.RLock()
	for name, p := range r.Players {
		stats[name].LivesRemaining = p.Lives
		if stats[name].SurvivedTicks == 0 {
			stats[name].SurvivedTicks = result.Ticks
		}
	}
	r.Mu.RUnlock()

	return result
}
