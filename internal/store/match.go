package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Match struct {
	ID       int64
	RoomID   string
	RoomName string
	Winner   string
	Players  int
	EndedAt  time.Time
}

type MatchStore struct {
	db *pgxpool.Pool
}

func NewMatchStore(db *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: db}
}

// Record writes one finished round. Winner may be empty for voided rounds.
func (s *MatchStore) Record(ctx context.Context, roomID, roomName, winner string, players int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO matches (room_id, room_name, winner, players, ended_at)
		VALUES ($1, $2, $3, $4, now())
	`, roomID, roomName, winner, players)
	return err
}

// Recent returns the latest finished rounds, newest first.
func (s *MatchStore) Recent(ctx context.Context, limit int) ([]Match, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, room_id, room_name, winner, players, ended_at
		FROM matches ORDER BY ended_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.RoomID, &m.RoomName, &m.Winner, &m.Players, &m.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
