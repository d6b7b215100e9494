package config

import (
	"os"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID           = "wsfeed"
	DefaultLogLevel             = "info"
	DefaultBaseURL              = "ws://localhost:8000/ws"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 3 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultReadLimit            = 1 << 20
	DefaultBatchSize            = 100
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultRedisAddr            = "localhost:6379"
	DefaultChannelPrefix        = "wsfeed:"
	DefaultAMQPExchange         = "wsfeed.events"
	DefaultStatusInterval       = 1 * time.Second
	DefaultHealthPort           = 8081
)

// DefaultEvents is relayed when a subscription lists no events.
var DefaultEvents = []string{"message"}

func (c *WSFeedConfig) applyDefaults() {
	if c.Instance.ID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.Instance.ID = host
		} else {
			c.Instance.ID = DefaultInstanceID
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Stream defaults
	if c.Stream.BaseURL == "" {
		c.Stream.BaseURL = DefaultBaseURL
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadLimit == 0 {
		c.Stream.ReadLimit = DefaultReadLimit
	}

	for i := range c.Subscriptions {
		if len(c.Subscriptions[i].Events) == 0 {
			c.Subscriptions[i].Events = append([]string(nil), DefaultEvents...)
		}
	}

	// Relay defaults
	if c.Relay.BatchSize == 0 {
		c.Relay.BatchSize = DefaultBatchSize
	}
	if c.Relay.FlushInterval == 0 {
		c.Relay.FlushInterval = DefaultFlushInterval
	}
	if c.Relay.BufferSize == 0 {
		c.Relay.BufferSize = DefaultBufferSize
	}
	if c.Relay.Redis.Addr == "" {
		c.Relay.Redis.Addr = DefaultRedisAddr
	}
	if c.Relay.Redis.ChannelPrefix == "" {
		c.Relay.Redis.ChannelPrefix = DefaultChannelPrefix
	}
	if c.Relay.AMQP.Exchange == "" {
		c.Relay.AMQP.Exchange = DefaultAMQPExchange
	}

	if c.Status.Interval == 0 {
		c.Status.Interval = DefaultStatusInterval
	}
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
