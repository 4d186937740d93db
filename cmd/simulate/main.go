// Command simulate plays scripted bot rounds through the combat core and
// reports balance statistics: win rates per archetype, round lengths,
// damage throughput. Useful when retuning cooldowns or stage geometry.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stagebrawl/stagebrawl/internal/game"
	"github.com/stagebrawl/stagebrawl/internal/room"
)

type archetype int

const (
	brawler archetype = iota
	turtle
	hopper
	wanderer
	archetypeCount
)

func (a archetype) String() string {
	return [...]string{"Brawler", "Turtle", "Hopper", "Wanderer"}[a]
}

// brawlerBot closes on the nearest foe and swings whenever in range.
type brawlerBot struct{}

func (brawlerBot) Act(rng *rand.Rand, self *room.PlayerSession, foes []*room.PlayerSession, tick int) game.BotAction {
	foe := nearest(self, foes)
	if foe == nil {
		return game.BotAction{}
	}
	act := game.BotAction{HasMove: true}
	act.Move = stepToward(self, foe.X, 5)
	if foe.Y < self.Y-50 && math.Abs(foe.X-self.X) < 30 && game.Grounded(self.X, self.Y) {
		act.Move.VelocityY = game.JumpVelocity
		act.Move.HasVelocity = true
	}
	if dist(self, foe) <= game.AttackRange {
		act.AttackTarget = foe.Username
	}
	return act
}

// turtleBot backs away until cornered, then trades.
type turtleBot struct{}

func (turtleBot) Act(rng *rand.Rand, self *room.PlayerSession, foes []*room.PlayerSession, tick int) game.BotAction {
	foe := nearest(self, foes)
	if foe == nil {
		return game.BotAction{}
	}
	act := game.BotAction{HasMove: true}
	d := dist(self, foe)
	if d > game.AttackRange*1.5 {
		act.Move = game.MoveIntent{X: self.X, Y: self.Y}
	} else {
		away := self.X + math.Copysign(5, self.X-foe.X)
		act.Move = stepToward(self, away, 5)
		cornered := self.X <= game.PlayerRadius+1 || self.X >= game.StageWidth-game.PlayerRadius-1
		if d <= game.AttackRange && cornered {
			act.AttackTarget = foe.Username
		}
	}
	return act
}

// hopperBot chases like a brawler but jumps constantly.
type hopperBot struct{}

func (hopperBot) Act(rng *rand.Rand, self *room.PlayerSession, foes []*room.PlayerSession, tick int) game.BotAction {
	foe := nearest(self, foes)
	if foe == nil {
		return game.BotAction{}
	}
	act := game.BotAction{HasMove: true}
	act.Move = stepToward(self, foe.X, 4)
	if tick%8 == 0 && game.Grounded(self.X, self.Y) {
		act.Move.VelocityY = game.JumpVelocity
		act.Move.HasVelocity = true
	}
	if dist(self, foe) <= game.AttackRange {
		act.AttackTarget = foe.Username
	}
	return act
}

// wandererBot drifts randomly and only attacks foes that wander close.
type wandererBot struct{}

func (wandererBot) Act(rng *rand.Rand, self *room.PlayerSession, foes []*room.PlayerSession, tick int) game.BotAction {
	act := game.BotAction{HasMove: true}
	target := self.X + (rng.Float64()*10 - 5)
	act.Move = stepToward(self, target, 5)
	if foe := nearest(self, foes); foe != nil && dist(self, foe) <= game.AttackRange {
		act.AttackTarget = foe.Username
	}
	return act
}

func botFor(a archetype) game.Bot {
	switch a {
	case brawler:
		return brawlerBot{}
	case turtle:
		return turtleBot{}
	case hopper:
		return hopperBot{}
	default:
		return wandererBot{}
	}
}

func nearest(self *room.PlayerSession, foes []*room.PlayerSession) *room.PlayerSession {
	var best *room.PlayerSession
	bestD := math.MaxFloat64
	for _, f := range foes {
		if d := dist(self, f); d < bestD {
			best, bestD = f, d
		}
	}
	return best
}

func dist(a, b *room.PlayerSession) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func stepToward(self *room.PlayerSession, targetX, speed float64) game.MoveIntent {
	dx := targetX - self.X
	if math.Abs(dx) > speed {
		dx = math.Copysign(speed, dx)
	}
	return game.MoveIntent{
		X:          self.X + dx,
		Y:          self.Y,
		FacingLeft: dx < 0,
		HasFacing:  true,
	}
}

type roundTally struct {
	ticks      int
	players    int
	voided     bool
	winnerArch archetype
}

func main() {
	rounds := flag.Int("rounds", 10_000, "rounds to simulate")
	maxTicks := flag.Int("max-ticks", 12_000, "tick cap per round (10 min at 20Hz)")
	seed := flag.Int64("seed", 42, "base RNG seed")
	flag.Parse()

	start := time.Now()
	workers := runtime.GOMAXPROCS(0)
	results := make([]roundTally, *rounds)

	var progress atomic.Int64
	var wg sync.WaitGroup

	chunk := *rounds / workers
	if chunk == 0 {
		chunk = 1
	}
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= *rounds {
			break
		}
		hi := lo + chunk
		if w == workers-1 || hi > *rounds {
			hi = *rounds
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(*seed + int64(lo)*7919))
			for i := lo; i < hi; i++ {
				results[i] = runRound(rng, *maxTicks, *seed+int64(i))
				if n := progress.Add(1); *rounds >= 10 && n%int64(*rounds/10) == 0 {
					fmt.Printf("  ... %d/%d rounds (%.0f%%)\n", n, *rounds, float64(n)/float64(*rounds)*100)
				}
			}
		}(lo, hi)
	}
	wg.Wait()

	printReport(results, time.Since(start))
}

func runRound(rng *rand.Rand, maxTicks int, seed int64) roundTally {
	n := 2 + rng.Intn(3) // 2-4 players
	usernames := make([]string, n)
	bots := make(map[string]game.Bot, n)
	archs := make(map[string]archetype, n)
	for i := 0; i < n; i++ {
		a := archetype(rng.Intn(int(archetypeCount)))
		name := fmt.Sprintf("%s-%d", a, i)
		usernames[i] = name
		bots[name] = botFor(a)
		archs[name] = a
	}

	res := game.RunSimulation(game.SimConfig{
		Usernames: usernames,
		Bots:      bots,
		MaxTicks:  maxTicks,
		Seed:      seed,
	})

	t := roundTally{ticks: res.Ticks, players: n, voided: res.Voided}
	if res.Winner != "" {
		t.winnerArch = archs[res.Winner]
	} else {
		t.winnerArch = -1
	}
	return t
}

func printReport(results []roundTally, elapsed time.Duration) {
	winsByArch := make(map[archetype]int)
	var ticks []float64
	var voided, timedOut int

	for _, r := range results {
		ticks = append(ticks, float64(r.ticks))
		switch {
		case r.voided:
			voided++
		case r.winnerArch < 0:
			timedOut++
		default:
			winsByArch[r.winnerArch]++
		}
	}
	sort.Float64s(ticks)

	fmt.Printf("\n=== %d rounds in %s ===\n", len(results), elapsed.Round(time.Millisecond))
	fmt.Printf("round length (ticks): p50=%.0f p90=%.0f p99=%.0f\n",
		percentile(ticks, 0.50), percentile(ticks, 0.90), percentile(ticks, 0.99))
	fmt.Printf("voided: %d (%.1f%%), hit tick cap: %d (%.1f%%)\n",
		voided, pct(voided, len(results)), timedOut, pct(timedOut, len(results)))

	fmt.Println("\nwins by archetype:")
	for a := archetype(0); a < archetypeCount; a++ {
		fmt.Printf("  %-9s %6d (%.1f%%)\n", a, winsByArch[a], pct(winsByArch[a], len(results)))
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
