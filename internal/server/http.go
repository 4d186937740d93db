package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stagebrawl/stagebrawl/internal/auth"
	"github.com/stagebrawl/stagebrawl/internal/config"
	"github.com/stagebrawl/stagebrawl/internal/leaderboard"
	"github.com/stagebrawl/stagebrawl/internal/room"
	"github.com/stagebrawl/stagebrawl/internal/store"
)

// Server owns the REST surface. Postgres and Redis are optional: a nil
// pool or client degrades the corresponding endpoints to 503 rather
// than failing startup.
type Server struct {
	cfg         *config.Config
	db          *pgxpool.Pool
	rdb         *redis.Client
	hub         *Hub
	rooms       *room.Registry
	logger      *slog.Logger
	mux         *http.ServeMux
	players     *store.PlayerStore
	matches     *store.MatchStore
	leaderboard *leaderboard.Service
	metrics     *Metrics
}

func New(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, hub *Hub, rooms *room.Registry, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		db:      db,
		rdb:     rdb,
		hub:     hub,
		rooms:   rooms,
		logger:  logger,
		mux:     http.NewServeMux(),
		metrics: NewMetrics(),
	}
	if rdb != nil {
		s.leaderboard = leaderboard.NewService(rdb)
	}
	if db != nil {
		s.players = store.NewPlayerStore(db)
		s.matches = store.NewMatchStore(db)
	}
	s.routes()
	return s
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.ServeHTTP)
	s.mux.Handle("GET /ws", s.hub)

	// Room endpoints
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("GET /api/rooms/{id}", s.handleGetRoom)
	s.mux.HandleFunc("DELETE /api/rooms/{id}", s.handleDeleteRoom)

	// Player and leaderboard endpoints
	s.mux.HandleFunc("GET /api/player/{username}", s.handleGetPlayer)
	s.mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	s.mux.HandleFunc("GET /api/leaderboard/rank/{username}", s.handlePlayerRank)
	s.mux.HandleFunc("GET /api/matches", s.handleRecentMatches)

	// Development helper for minting connection tickets
	if s.cfg.Env == "development" {
		s.mux.HandleFunc("POST /api/ticket", s.handleIssueTicket)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status["db"] = "down"
			status["status"] = "degraded"
		} else {
			status["db"] = "ok"
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
			status["status"] = "degraded"
		} else {
			status["redis"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("write json", "err", err)
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"max_players"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "room name required", http.StatusBadRequest)
		return
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = s.cfg.DefaultRoomSize
	}

	rm, err := s.rooms.Create(room.Config{Name: req.Name, MaxPlayers: req.MaxPlayers})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(rm.Info()); err != nil {
		s.logger.Error("write json", "err", err)
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	infos := s.rooms.List()
	if infos == nil {
		infos = []room.Info{}
	}
	writeJSON(w, infos)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.rooms.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, rm.Snapshot())
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.rooms.Get(id); !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if !s.rooms.RemoveIfEmpty(id) {
		http.Error(w, "room is occupied", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	if s.players == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	username := r.PathValue("username")
	player, err := s.players.Get(r.Context(), username)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if player == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"username":      player.Username,
		"lifetime_wins": player.LifetimeWins,
		"created_at":    player.CreatedAt,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	count := int64(50)
	if c := r.URL.Query().Get("count"); c != "" {
		if n, err := strconv.ParseInt(c, 10, 64); err == nil && n > 0 && n <= 100 {
			count = n
		}
	}

	// Without Redis the Postgres win counters still rank players.
	if s.leaderboard == nil {
		if s.players == nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		players, err := s.players.TopWins(r.Context(), int(count))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		entries := make([]leaderboard.Entry, 0, len(players))
		for i, p := range players {
			entries = append(entries, leaderboard.Entry{
				Username: p.Username,
				Wins:     float64(p.LifetimeWins),
				Rank:     int64(i + 1),
			})
		}
		writeJSON(w, entries)
		return
	}

	entries, err := s.leaderboard.TopWins(r.Context(), count)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, entries)
}

func (s *Server) handlePlayerRank(w http.ResponseWriter, r *http.Request) {
	if s.leaderboard == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	entry, err := s.leaderboard.PlayerRank(r.Context(), r.PathValue("username"))
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "not ranked", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleRecentMatches(w http.ResponseWriter, r *http.Request) {
	if s.matches == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	matches, err := s.matches.Recent(r.Context(), 20)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]any{
			"room_id":   m.RoomID,
			"room_name": m.RoomName,
			"winner":    m.Winner,
			"players":   m.Players,
			"ended_at":  m.EndedAt,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	ticket := auth.IssueTicket(s.cfg.TicketSecret, req.Username, time.Hour, time.Now())
	writeJSON(w, map[string]string{"ticket": ticket})
}

func (s *Server) Handler() http.Handler {
	limiter := NewRateLimiter(30, 60, s.logger)
	return ChainMiddleware(s.mux,
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		limiter.Middleware,
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
