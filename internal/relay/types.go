package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
)

// Errors
var (
	ErrNoPublishers = errors.New("at least one publisher is required")
	ErrNotStarted   = errors.New("relay not started")
)

// Envelope is the relayed form of one manager event.
type Envelope struct {
	Instance   string          `json:"instance"`
	Key        string          `json:"key"`
	Channel    string          `json:"channel"`
	Event      string          `json:"event"`
	ConnID     string          `json:"conn_id"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`

	// Lifecycle events
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewEnvelope converts a manager event.
func NewEnvelope(instance string, ev connection.Event) Envelope {
	env := Envelope{
		Instance:   instance,
		Key:        ev.Key,
		Channel:    ev.Channel,
		Event:      ev.Name,
		ConnID:     ev.ConnID.String(),
		ReceivedAt: ev.ReceivedAt,
		Code:       ev.Code,
		Reason:     ev.Reason,
	}
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now().UTC()
	}
	if len(ev.Raw) > 0 {
		env.Payload = append(json.RawMessage(nil), ev.Raw...)
	}
	if ev.Err != nil {
		env.Error = ev.Err.Error()
	}
	return env
}

// Publisher delivers batches to one backend.
type Publisher interface {
	// Name identifies the backend in logs and stats.
	Name() string

	// Publish sends the batch in order.
	Publish(ctx context.Context, batch []Envelope) error

	// Close releases the backend connection.
	Close() error
}

// Subscription selects the events relayed for one key.
type Subscription struct {
	Channel string
	Params  connection.Params
	Events  []string
}

// Config holds configuration for a Relay.
type Config struct {
	Instance       string
	BatchSize      int           // Flush when this many envelopes are pending
	FlushInterval  time.Duration // Flush at least this often
	BufferSize     int           // Initial queue capacity
	BufferMax      int           // Queue capacity cap (0 = unbounded)
	PublishTimeout time.Duration // Per-publisher deadline for one batch
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Instance:       "wsfeed",
		BatchSize:      100,
		FlushInterval:  time.Second,
		BufferSize:     10000,
		BufferMax:      1000000,
		PublishTimeout: 5 * time.Second,
	}
}

// Stats contains relay metrics.
type Stats struct {
	Received      int64
	Published     int64 // Envelopes accepted by all publishers
	Batches       int64
	PublishErrors map[string]int64 // Failed batches per publisher
	LastFlush     time.Time
	LastError     string
	Pending       int
}
