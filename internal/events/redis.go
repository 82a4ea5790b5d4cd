package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "market:events"

type RedisSink struct {
	rdb     *redis.Client
	channel string
}

func NewRedisSink(rdb *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{rdb: rdb, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, b).Err()
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
