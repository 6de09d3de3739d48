package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps computed top boards keyed by exam.
type Cache interface {
	Get(ctx context.Context, examID int64) (*Board, bool, error)
	Set(ctx context.Context, board *Board) error
	Invalidate(ctx context.Context, examID int64) error
}

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "examportal:leaderboard:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, examID int64) (*Board, bool, error) {
	raw, err := c.client.Get(ctx, c.key(examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var b Board
	if err := json.Unmarshal(raw, &b); err != nil {
		// A corrupt entry behaves like a miss and is overwritten on fill.
		return nil, false, nil
	}
	return &b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, board *Board) error {
	raw, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	if err := c.client.Set(ctx, c.key(board.ExamID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, examID int64) error {
	if err := c.client.Del(ctx, c.key(examID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *RedisCache) key(examID int64) string {
	return c.prefix + strconv.FormatInt(examID, 10)
}
