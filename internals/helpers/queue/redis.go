package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps payloads in a sorted set scored by due time (unix ms). ZREM
// decides which worker owns a popped payload, so several processes can
// drain the same key.
type Redis struct {
	rdb *redis.Client
	key string
}

func NewRedis(rdb *redis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (q *Redis) Push(ctx context.Context, payload []byte, due time.Time) error {
	return q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: string(payload),
	}).Err()
}

func (q *Redis) PopDue(ctx context.Context, now time.Time, max int) ([][]byte, error) {
	opt := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
	if max > 0 {
		opt.Count = int64(max)
	}
	members, err := q.rdb.ZRangeByScore(ctx, q.key, opt).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(members))
	for _, m := range members {
		n, err := q.rdb.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return out, err
		}
		if n == 1 {
			out = append(out, []byte(m))
		}
	}
	return out, nil
}

func (q *Redis) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key).Result()
}
