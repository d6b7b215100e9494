package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *WSFeedConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	u, err := url.Parse(c.Stream.BaseURL)
	if err != nil {
		return fmt.Errorf("stream.base_url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream.base_url must use ws or wss, got %q", u.Scheme)
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return errors.New("stream.max_reconnect_attempts must be >= 0")
	}
	if c.Stream.ReconnectDelay < 0 {
		return errors.New("stream.reconnect_delay must be >= 0")
	}

	for i, sub := range c.Subscriptions {
		if sub.Channel == "" {
			return fmt.Errorf("subscriptions[%d].channel is required", i)
		}
		for j, ev := range sub.Events {
			if ev == "" {
				return fmt.Errorf("subscriptions[%d].events[%d] is empty", i, j)
			}
		}
	}

	if c.Relay.BatchSize < 1 {
		return errors.New("relay.batch_size must be >= 1")
	}
	if c.Relay.BufferSize < 1 {
		return errors.New("relay.buffer_size must be >= 1")
	}
	if c.Relay.AMQP.Enabled && c.Relay.AMQP.URL == "" {
		return errors.New("relay.amqp.url is required when relay.amqp.enabled")
	}
	if c.Relay.Redis.DB < 0 {
		return errors.New("relay.redis.db must be >= 0")
	}

	if c.Status.Interval <= 0 {
		return errors.New("status.interval must be > 0")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}
