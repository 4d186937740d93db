package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/stagebrawl/stagebrawl/internal/room"
	"github.com/stagebrawl/stagebrawl/internal/server"
)

// Intents delivered to a room loop. Timer firings re-enter the same loop
// as scheduled entries, so nothing about a room ever runs concurrently
// with anything else about that room.
type moveIntent struct {
	username string
	mv       MoveIntent
}

type attackIntent struct {
	attacker string
	target   string
	at       time.Time
}

// winCheckIntent is injected after a leave so survivor detection runs on
// the room loop with a fresh view of the membership.
type winCheckIntent struct{}

type timerKind int

const (
	respawnTimer timerKind = iota
	roundResetTimer
)

// scheduled is a due-time entry carrying identifiers, not captured
// sessions: it is re-validated when it fires, so a timer outliving its
// player is a no-op.
type scheduled struct {
	due      time.Time
	kind     timerKind
	username string
}

type roomRunner struct {
	cancel  context.CancelFunc
	intents chan any
}

// RoundEndCallback is invoked off the room loop after a winner is
// declared, for persistence and leaderboards.
type RoundEndCallback func(roomID, winner string, winCounts map[string]int)

// PlayerJoinCallback is invoked when a player takes a fresh seat in a
// room, so the roster can be persisted.
type PlayerJoinCallback func(username string)

// Engine runs one loop per active room: it consumes intents, advances
// physics at the simulation tick, fires due respawn and reset timers and
// broadcasts the results. It is the round lifecycle controller.
type Engine struct {
	rooms      *room.Registry
	hub        *server.Hub
	logger     *slog.Logger
	metrics    *server.Metrics
	onRoundEnd RoundEndCallback

	onPlayerJoin PlayerJoinCallback

	moveLimiter *MoveRateLimiter

	baseCtx context.Context
	mu      sync.Mutex
	running map[string]*roomRunner
}

func NewEngine(rooms *room.Registry, hub *server.Hub, logger *slog.Logger, onRoundEnd RoundEndCallback) *Engine {
	return &Engine{
		rooms:       rooms,
		hub:         hub,
		logger:      logger,
		onRoundEnd:  onRoundEnd,
		moveLimiter: NewMoveRateLimiter(10 * time.Millisecond),
		baseCtx:     context.Background(),
		running:     make(map[string]*roomRunner),
	}
}

// SetHub sets the WebSocket hub reference (used to break circular init).
func (e *Engine) SetHub(hub *server.Hub) {
	e.hub = hub
}

func (e *Engine) SetMetrics(m *server.Metrics) {
	e.metrics = m
}

// SetOnPlayerJoin registers a hook invoked for every fresh join.
func (e *Engine) SetOnPlayerJoin(fn PlayerJoinCallback) {
	e.onPlayerJoin = fn
}

// Start pins the lifetime of all room loops to ctx. Room loops must not
// inherit a connection context: the room outlives the player who created it.
func (e *Engine) Start(ctx context.Context) {
	e.baseCtx = ctx
}

// EnsureRunning starts the room's loop if it is not already running.
func (e *Engine) EnsureRunning(r *room.Room) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[r.ID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	rr := &roomRunner{
		cancel:  cancel,
		intents: make(chan any, 256),
	}
	e.running[r.ID] = rr
	if e.metrics != nil {
		e.metrics.IncrRooms()
	}
	go e.runLoop(ctx, r, rr)
}

// StopRoom cancels a room's loop. Wired as the registry's removal hook.
func (e *Engine) StopRoom(r *room.Room) {
	e.mu.Lock()
	rr, ok := e.running[r.ID]
	e.mu.Unlock()
	if ok {
		rr.cancel()
	}
}

func (e *Engine) submit(roomID string, in any) {
	e.mu.Lock()
	rr, ok := e.running[roomID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case rr.intents <- in:
	default:
		e.logger.Warn("intent dropped, room inbox full", "room", roomID)
	}
}

func (e *Engine) runLoop(ctx context.Context, r *room.Room, rr *roomRunner) {
	defer func() {
		e.mu.Lock()
		delete(e.running, r.ID)
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.DecrRooms()
		}
	}()

	ticker := time.NewTicker(TickRate)
	defer ticker.Stop()

	var pending []scheduled
	dirty := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case in := <-rr.intents:
			switch c := in.(type) {
			case moveIntent:
				e.handleMove(r, c, dirty)
			case attackIntent:
				e.handleAttack(r, c, &pending)
			case winCheckIntent:
				e.checkSurvivor(r, time.Now(), &pending)
			}
		case now := <-ticker.C:
			e.step(r, now, &pending, dirty)
		}
	}
}

func (e *Engine) handleMove(r *room.Room, c moveIntent, dirty map[string]struct{}) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.State != room.StateInProgress {
		return
	}
	p, ok := r.Players[c.username]
	if !ok {
		return
	}
	if ApplyMove(p, c.mv) {
		dirty[c.username] = struct{}{}
	}
}

func (e *Engine) handleAttack(r *room.Room, c attackIntent, pending *[]scheduled) {
	var events []server.WSMessage
	var winner string
	var winCounts map[string]int

	r.Mu.Lock()
	if r.State != room.StateInProgress {
		r.Mu.Unlock()
		return
	}
	out := ResolveAttack(r.Players[c.attacker], r.Players[c.target], c.at)
	if !out.Hit {
		r.Mu.Unlock()
		e.logger.Debug("attack suppressed",
			"room", r.ID, "attacker", c.attacker, "target", c.target, "reason", out.Reason)
		return
	}

	events = append(events, marshal("player_health_update", map[string]any{
		"username": c.target,
		"health":   out.TargetHealth,
	}))

	switch {
	case out.Eliminated:
		events = append(events, marshal("player_eliminated", map[string]any{
			"username": c.target,
		}))
		if live := r.LivePlayersLocked(); len(live) == 1 {
			winner = live[0].Username
			r.DeclareWinnerLocked(winner)
			winCounts = copyCounts(r.WinCounts)
			events = append(events, marshal("game_over", map[string]any{
				"winner":     winner,
				"win_counts": winCounts,
			}))
			*pending = append(*pending, scheduled{due: c.at.Add(GameOverDelay), kind: roundResetTimer})
		}
	case out.Died:
		events = append(events, marshal("player_died", map[string]any{
			"username":        c.target,
			"respawn_time":    out.RespawnAt.UnixMilli(),
			"lives_remaining": out.LivesRemaining,
		}))
		*pending = append(*pending, scheduled{due: out.RespawnAt, kind: respawnTimer, username: c.target})
	}
	r.Mu.Unlock()

	if e.metrics != nil {
		e.metrics.IncrAttacks()
	}
	for _, msg := range events {
		e.hub.BroadcastRoom(r.ID, msg)
	}
	if winner != "" {
		e.finishRound(r.ID, winner, winCounts)
	}
}

// checkSurvivor re-validates the single-survivor condition on the room
// loop. A leave may have raced with a join, so the result computed at
// leave time is not trusted.
func (e *Engine) checkSurvivor(r *room.Room, now time.Time, pending *[]scheduled) {
	var events []server.WSMessage
	var winner string
	var winCounts map[string]int

	r.Mu.Lock()
	if r.State != room.StateInProgress {
		r.Mu.Unlock()
		return
	}
	switch live := r.LivePlayersLocked(); len(live) {
	case 1:
		winner = live[0].Username
		r.DeclareWinnerLocked(winner)
		winCounts = copyCounts(r.WinCounts)
		events = append(events, marshal("game_over", map[string]any{
			"winner":     winner,
			"win_counts": winCounts,
		}))
		*pending = append(*pending, scheduled{due: now.Add(GameOverDelay), kind: roundResetTimer})
	case 0:
		// Everyone left or was eliminated at once: no winner, round is
		// voided and resets immediately.
		r.VoidRoundLocked()
		events = append(events, marshal("game_over", map[string]any{
			"winner":     "",
			"win_counts": copyCounts(r.WinCounts),
		}))
		*pending = append(*pending, scheduled{due: now, kind: roundResetTimer})
	}
	r.Mu.Unlock()

	for _, msg := range events {
		e.hub.BroadcastRoom(r.ID, msg)
	}
	if winner != "" {
		e.finishRound(r.ID, winner, winCounts)
	}
}

// step advances one simulation tick: vertical physics for live players,
// due timers, then the movement delta broadcast.
func (e *Engine) step(r *room.Room, now time.Time, pending *[]scheduled, dirty map[string]struct{}) {
	var events []server.WSMessage

	r.Mu.Lock()
	if r.State == room.StateInProgress {
		for name, p := range r.Players {
			if StepPlayer(p) {
				dirty[name] = struct{}{}
			}
		}
	}

	keep := (*pending)[:0]
	for _, s := range *pending {
		if s.due.After(now) {
			keep = append(keep, s)
			continue
		}
		switch s.kind {
		case respawnTimer:
			p, ok := r.RespawnLocked(s.username, now, InvulnWindow)
			if !ok {
				// Stale timer: the player left or was eliminated since.
				continue
			}
			events = append(events,
				marshal("player_respawned", map[string]any{
					"username":           s.username,
					"invulnerable_until": p.InvulnerableUntil.UnixMilli(),
					"lives_remaining":    p.Lives,
					"x":                  p.X,
					"y":                  p.Y,
				}),
				marshal("player_invulnerable", map[string]any{
					"username":           s.username,
					"invulnerable_until": p.InvulnerableUntil.UnixMilli(),
				}))
		case roundResetTimer:
			if r.State != room.StateGameOver {
				continue
			}
			r.ResetRoundLocked(now)
			events = append(events,
				marshal("game_reset", map[string]any{}),
				marshal("game_state", r.SnapshotLocked()))
		}
	}
	*pending = keep

	if len(dirty) > 0 {
		batch := make(map[string]map[string]any, len(dirty))
		for name := range dirty {
			if p, ok := r.Players[name]; ok {
				batch[name] = map[string]any{
					"x":           p.X,
					"y":           p.Y,
					"velocity_y":  p.VelocityY,
					"facing_left": p.FacingLeft,
				}
			}
			delete(dirty, name)
		}
		if len(batch) > 0 {
			events = append(events, marshal("player_move_batch", map[string]any{
				"players": batch,
			}))
		}
	}
	r.Mu.Unlock()

	for _, msg := range events {
		e.hub.BroadcastRoom(r.ID, msg)
	}
}

func (e *Engine) finishRound(roomID, winner string, winCounts map[string]int) {
	if e.metrics != nil {
		e.metrics.IncrRounds()
	}
	e.logger.Info("round over", "room", roomID, "winner", winner)
	if e.onRoundEnd != nil {
		e.onRoundEnd(roomID, winner, winCounts)
	}
}

// HandleMessage implements server.MessageHandler. Malformed payloads are
// answered with an error event to the sender only and never reach a room
// loop.
func (e *Engine) HandleMessage(ctx context.Context, client *server.Client, msg server.WSMessage) {
	switch msg.Type {
	case "join_room":
		var payload struct {
			RoomID string `json:"room_id"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.RoomID == "" {
			e.hub.SendError(client.Username, "invalid join_room payload")
			return
		}
		e.join(client, payload.RoomID)

	case "leave_room":
		if client.RoomID == "" {
			e.hub.SendError(client.Username, "not in a room")
			return
		}
		e.leave(client, true)

	case "player_move":
		var payload struct {
			Position *struct {
				X         float64  `json:"x"`
				Y         float64  `json:"y"`
				VelocityY *float64 `json:"velocity_y"`
			} `json:"position"`
			FacingLeft *bool `json:"facing_left"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Position == nil {
			e.hub.SendError(client.Username, "invalid player_move payload")
			return
		}
		if math.IsNaN(payload.Position.X) || math.IsInf(payload.Position.X, 0) ||
			math.IsNaN(payload.Position.Y) || math.IsInf(payload.Position.Y, 0) {
			e.hub.SendError(client.Username, "invalid player_move payload")
			return
		}
		if client.RoomID == "" || !e.moveLimiter.Allow(client.Username) {
			return
		}
		mv := MoveIntent{X: payload.Position.X, Y: payload.Position.Y}
		if payload.Position.VelocityY != nil {
			mv.VelocityY = *payload.Position.VelocityY
			mv.HasVelocity = true
		}
		if payload.FacingLeft != nil {
			mv.FacingLeft = *payload.FacingLeft
			mv.HasFacing = true
		}
		e.submit(client.RoomID, moveIntent{username: client.Username, mv: mv})

	case "player_attack":
		var payload struct {
			Target string `json:"target"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Target == "" {
			e.hub.SendError(client.Username, "invalid player_attack payload")
			return
		}
		if client.RoomID == "" || payload.Target == client.Username {
			return
		}
		e.submit(client.RoomID, attackIntent{
			attacker: client.Username,
			target:   payload.Target,
			at:       time.Now(),
		})

	case "list_rooms":
		payload, _ := json.Marshal(e.rooms.List())
		e.hub.SendTo(client.Username, server.WSMessage{Type: "room_list", Payload: payload})

	default:
		e.hub.SendError(client.Username, "unknown message type: "+msg.Type)
	}
}

// HandleDisconnect removes a dropped connection's player from its room.
// Wired as the hub's disconnect hook.
func (e *Engine) HandleDisconnect(client *server.Client) {
	if client.RoomID != "" {
		e.leave(client, false)
	}
}

func (e *Engine) join(client *server.Client, roomID string) {
	// A connection holds at most one session. Switching rooms leaves the
	// old one first so no stale session holds a slot or a live count there.
	if client.RoomID != "" && client.RoomID != roomID {
		e.leave(client, false)
	}

	// First join to an unseen id creates the room; REST creation is the
	// explicit path but not the only one.
	r := e.rooms.GetOrCreate(roomID, room.Config{MaxPlayers: 4})
	res, err := r.Join(client.Username, time.Now())
	if err != nil {
		e.hub.SendError(client.Username, "room is full")
		return
	}

	e.hub.JoinRoom(client.Username, r.ID)
	e.EnsureRunning(r)
	if e.onPlayerJoin != nil && !res.Rejoined {
		e.onPlayerJoin(client.Username)
	}

	e.logger.Info("player joined", "room", r.ID, "player", client.Username, "rejoined", res.Rejoined)
	e.hub.BroadcastRoom(r.ID, marshal("player_joined", map[string]any{
		"username": client.Username,
		"position": map[string]any{"x": res.Player.X, "y": res.Player.Y},
	}))
	e.hub.BroadcastRoom(r.ID, marshal("game_state", r.Snapshot()))
}

func (e *Engine) leave(client *server.Client, sendAck bool) {
	roomID := client.RoomID
	r, ok := e.rooms.Get(roomID)
	if !ok {
		e.hub.LeaveRoom(client.Username)
		client.RoomID = ""
		return
	}
	res, err := r.Leave(client.Username, time.Now())
	if err != nil {
		e.hub.LeaveRoom(client.Username)
		client.RoomID = ""
		return
	}

	e.moveLimiter.Reset(client.Username)
	e.hub.LeaveRoom(client.Username)
	client.RoomID = ""

	e.logger.Info("player left", "room", roomID, "player", client.Username)
	e.hub.BroadcastRoom(roomID, marshal("player_left", map[string]any{
		"username": client.Username,
		"players":  res.Remaining,
	}))
	if sendAck {
		e.hub.SendTo(client.Username, server.WSMessage{Type: "left_room"})
	}

	if res.Survivor != "" || res.Voided {
		e.submit(roomID, winCheckIntent{})
	}
	if !res.Empty {
		e.hub.BroadcastRoom(roomID, marshal("game_state", r.Snapshot()))
	}
	// Empty rooms are left for the registry's grace-period cleanup.
}

func marshal(msgType string, v any) server.WSMessage {
	payload, _ := json.Marshal(v)
	return server.WSMessage{Type: msgType, Payload: payload}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
