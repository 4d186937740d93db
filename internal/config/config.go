package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env             string
	HTTPAddr        string
	TicketSecret    string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	WSReadLimit     int64
	WSPingInterval  time.Duration
	RoomGracePeriod time.Duration // how long an empty room is kept for reconnection
	DefaultRoomSize int
}

func Load() (*Config, error) {
	env := getenv("ENV", "development")

	// Load .env.{ENV} first, then .env as fallback
	loadEnvFile(".env." + env)
	loadEnvFile(".env")

	cfg := &Config{
		Env:             env,
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		TicketSecret:    getenv("TICKET_SECRET", ""),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		RedisPassword:   getenv("REDIS_PASSWORD", ""),
		RedisDB:         getenvInt("REDIS_DB", 0),
		WSReadLimit:     int64(getenvInt("WS_READ_LIMIT", 4096)),
		WSPingInterval:  time.Duration(getenvInt("WS_PING_INTERVAL_SEC", 30)) * time.Second,
		RoomGracePeriod: time.Duration(getenvInt("ROOM_GRACE_PERIOD_SEC", 30)) * time.Second,
		DefaultRoomSize: getenvInt("DEFAULT_ROOM_SIZE", 4),
	}

	if cfg.TicketSecret == "" {
		return nil, fmt.Errorf("TICKET_SECRET is required")
	}
	if cfg.DefaultRoomSize < 2 || cfg.DefaultRoomSize > 4 {
		return nil, fmt.Errorf("DEFAULT_ROOM_SIZE must be 2-4, got %d", cfg.DefaultRoomSize)
	}

	return cfg, nil
}

// loadEnvFile parses a KEY=VALUE file and sets any keys not already present in os env.
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"'`)
		// Don't override existing env vars
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
