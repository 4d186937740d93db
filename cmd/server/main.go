package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stagebrawl/stagebrawl/internal/cache"
	"github.com/stagebrawl/stagebrawl/internal/config"
	"github.com/stagebrawl/stagebrawl/internal/game"
	"github.com/stagebrawl/stagebrawl/internal/leaderboard"
	"github.com/stagebrawl/stagebrawl/internal/room"
	"github.com/stagebrawl/stagebrawl/internal/server"
	"github.com/stagebrawl/stagebrawl/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres and Redis are optional. The server runs fully in memory
	// without them; they only add win persistence and the leaderboard.
	var playerStore *store.PlayerStore
	var matchStore *store.MatchStore
	db, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect db", "err", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		playerStore = store.NewPlayerStore(db)
		matchStore = store.NewMatchStore(db)
	}

	var winBoard *leaderboard.Service
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("connect redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		winBoard = leaderboard.NewService(rdb)
	}

	rooms := room.NewRegistry(cfg.RoomGracePeriod, logger)
	defer rooms.Stop()

	onRoundEnd := func(roomID, winner string, winCounts map[string]int) {
		endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer endCancel()

		roomName := ""
		players := 0
		if r, ok := rooms.Get(roomID); ok {
			info := r.Info()
			roomName = info.Name
			players = info.PlayerCount
		}

		if winner != "" {
			if playerStore != nil {
				if err := playerStore.IncrementWins(endCtx, winner); err != nil {
					logger.Error("persist win", "winner", winner, "err", err)
				}
			}
			if winBoard != nil {
				if err := winBoard.RecordWin(endCtx, winner); err != nil {
					logger.Error("record win", "winner", winner, "err", err)
				}
			}
		}
		if matchStore != nil {
			if err := matchStore.Record(endCtx, roomID, roomName, winner, players); err != nil {
				logger.Error("record match", "room", roomID, "err", err)
			}
		}

		logger.Info("round finished",
			"room", roomID,
			"winner", winner,
			"win_counts", winCounts,
		)
	}

	// Engine and hub reference each other; resolved via SetHub.
	engine := game.NewEngine(rooms, nil, logger, onRoundEnd)
	if playerStore != nil {
		engine.SetOnPlayerJoin(func(username string) {
			joinCtx, joinCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer joinCancel()
			if _, err := playerStore.Upsert(joinCtx, username); err != nil {
				logger.Error("register player", "player", username, "err", err)
			}
		})
	}
	hub := server.NewHub(cfg.TicketSecret, engine, logger)
	hub.SetLimits(cfg.WSReadLimit, cfg.WSPingInterval)
	hub.SetOnDisconnect(engine.HandleDisconnect)
	engine.SetHub(hub)
	engine.Start(ctx)
	rooms.SetOnRemove(engine.StopRoom)

	srv := server.New(cfg, db, rdb, hub, rooms, logger)
	hub.SetMetrics(srv.Metrics())
	engine.SetMetrics(srv.Metrics())

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
