package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Player struct {
	Username     string
	LifetimeWins int
	CreatedAt    time.Time
}

type PlayerStore struct {
	db *pgxpool.Pool
}

func NewPlayerStore(db *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{db: db}
}

// Upsert ensures a row exists for the username.
func (s *PlayerStore) Upsert(ctx context.Context, username string) (*Player, error) {
	p := &Player{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO players (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING username, lifetime_wins, created_at
	`, username).Scan(&p.Username, &p.LifetimeWins, &p.CreatedAt)
	return p, err
}

func (s *PlayerStore) Get(ctx context.Context, username string) (*Player, error) {
	p := &Player{}
	err := s.db.QueryRow(ctx, `
		SELECT username, lifetime_wins, created_at FROM players WHERE username = $1
	`, username).Scan(&p.Username, &p.LifetimeWins, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// IncrementWins adds one lifetime win, creating the row if needed.
func (s *PlayerStore) IncrementWins(ctx context.Context, username string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO players (username, lifetime_wins) VALUES ($1, 1)
		ON CONFLICT (username) DO UPDATE SET lifetime_wins = players.lifetime_wins + 1
	`, username)
	return err
}

// TopWins returns the players with the most lifetime wins.
func (s *PlayerStore) TopWins(ctx context.Context, limit int) ([]Player, error) {
	rows, err := s.db.Query(ctx, `
		SELECT username, lifetime_wins, created_at
		FROM players ORDER BY lifetime_wins DESC, username LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.Username, &p.LifetimeWins, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
