package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultResultKey = "consensusnet:results"

// RedisSink pushes records onto a capped Redis list, newest first.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisSink connects to addr. maxLen caps the list (default 10000).
func NewRedisSink(addr, key string, maxLen int64) *RedisSink {
	if key == "" {
		key = defaultResultKey
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisSink{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
		maxLen: maxLen,
	}
}

func (s *RedisSink) Store(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, raw)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error { return s.client.Close() }

// Recent returns up to n most recent records.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Record, error) {
	raws, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
