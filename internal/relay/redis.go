package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Vinayak0723/cryptoexchange/internal/config"
)

// RedisPublisher publishes each envelope to the Redis channel
// <prefix><connection key>.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisPublisherWithClient(client, cfg.ChannelPrefix), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client redis.UniversalClient, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Name implements Publisher.
func (p *RedisPublisher) Name() string { return "redis" }

// Channel returns the Redis channel for a connection key.
func (p *RedisPublisher) Channel(key string) string {
	return p.prefix + key
}

// Publish implements Publisher. The batch goes out in one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, batch []Envelope) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, env := range batch {
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode envelope: %w", err)
		}
		pipe.Publish(ctx, p.Channel(env.Key), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close implements Publisher.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
