package leaderboard

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/stagebrawl/stagebrawl/internal/cache"
)

type Entry struct {
	Username string  `json:"username"`
	Wins     float64 `json:"wins"`
	Rank     int64   `json:"rank"`
}

type Service struct {
	rdb *redis.Client
}

func NewService(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

// RecordWin adds one win to a player's lifetime total.
func (s *Service) RecordWin(ctx context.Context, username string) error {
	return s.rdb.ZIncrBy(ctx, cache.KeyWinBoard, 1, username).Err()
}

// TopWins returns the top N players by lifetime wins.
func (s *Service) TopWins(ctx context.Context, count int64) ([]Entry, error) {
	results, err := s.rdb.ZRevRangeWithScores(ctx, cache.KeyWinBoard, 0, count-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		entries = append(entries, Entry{
			Username: member,
			Wins:     z.Score,
			Rank:     int64(i + 1),
		})
	}
	return entries, nil
}

// PlayerRank returns a player's rank and win count, or nil if unranked.
func (s *Service) PlayerRank(ctx context.Context, username string) (*Entry, error) {
	rank, err := s.rdb.ZRevRank(ctx, cache.KeyWinBoard, username).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	score, err := s.rdb.ZScore(ctx, cache.KeyWinBoard, username).Result()
	if err != nil {
		return nil, err
	}

	return &Entry{Username: username, Wins: score, Rank: rank + 1}, nil
}
