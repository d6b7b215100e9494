package config

import (
	"log/slog"
	"strings"
	"time"
)

// WSFeedConfig is the root configuration for a wsfeed instance.
type WSFeedConfig struct {
	Instance      InstanceConfig       `yaml:"instance"`
	Log           LogConfig            `yaml:"log"`
	Stream        StreamConfig         `yaml:"stream"`
	Auth          AuthConfig           `yaml:"auth"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Relay         RelayConfig          `yaml:"relay"`
	Status        StatusConfig         `yaml:"status"`
	Health        HealthConfig         `yaml:"health"`
}

// InstanceConfig identifies this process in logs and relayed envelopes.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// StreamConfig holds Connection Manager and socket settings.
type StreamConfig struct {
	BaseURL              string        `yaml:"base_url"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReadLimit            int64         `yaml:"read_limit"`
}

// AuthConfig locates the bearer token for the "user" channel.
// Precedence: token_file, token_env, token.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
}

// SubscriptionConfig is one (channel, params) key and the events to relay.
type SubscriptionConfig struct {
	Channel string            `yaml:"channel"`
	Params  map[string]string `yaml:"params"`
	Events  []string          `yaml:"events"`
}

// RelayConfig holds the event relay settings.
type RelayConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Redis         RedisConfig   `yaml:"redis"`
	AMQP          AMQPConfig    `yaml:"amqp"`
}

// RedisConfig holds the Redis pub/sub sink.
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// AMQPConfig holds the RabbitMQ sink.
type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// StatusConfig holds the connection status poller settings.
type StatusConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
