package guidance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
)

// RedisClient is the part of *redis.Client the sink uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSink publishes guidance on a channel and stores the latest value
// under a key with a TTL, so readers that join late see current guidance.
type RedisSink struct {
	client  RedisClient
	channel string
	key     string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisSink creates a sink. An empty channel or key disables that half.
func NewRedisSink(client RedisClient, channel, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: channel,
		key:     key,
		ttl:     ttl,
		timeout: 2 * time.Second,
		logger:  log.Component("guidance.redis"),
	}
}

// OnGuidance implements pipeline.GuidanceSink.
func (s *RedisSink) OnGuidance(g pipeline.Guidance) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.Publish(ctx, g); err != nil {
		s.logger.Warn("publish guidance", "seq", g.Seq, "error", err)
	}
}

// Publish writes g to the channel and the key.
func (s *RedisSink) Publish(ctx context.Context, g pipeline.Guidance) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("guidance: marshal: %w", err)
	}

	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
			return fmt.Errorf("guidance: redis publish %s: %w", s.channel, err)
		}
	}
	if s.key != "" {
		if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
			return fmt.Errorf("guidance: redis set %s: %w", s.key, err)
		}
	}
	return nil
}

// DialRedis creates a client and pings it.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("guidance: redis %s: %w", addr, err)
	}
	log.Component("guidance.redis").Info("connected to redis", "addr", addr, "db", db)
	return client, nil
}
