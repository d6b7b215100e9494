package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrEmptyChannel = errors.New("channel is required")
	ErrEmptyEvent   = errors.New("event type is required")
	ErrNilHandler   = errors.New("handler is required")
	ErrNotConnected = errors.New("not connected")
	ErrSocketClosed = errors.New("socket closed")
)

// Built-in event names. Any frame "type" value is also a valid event name.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventMessage      = "message"
)

// ChannelUser is the privileged channel that carries a bearer token.
const ChannelUser = "user"

// DefaultBaseURL is used when no endpoint is configured.
const DefaultBaseURL = "ws://localhost:8000/ws"

// Close codes reported in "disconnected" events (RFC 6455).
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Params is the parameter set of a channel subscription (e.g. symbol=BTC_USDT).
type Params map[string]string

// State is the lifecycle state of a connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectPending:
		return "reconnect_pending"
	}
	return "unknown"
}

// Event is delivered to subscribers.
type Event struct {
	Name    string // "connected", "disconnected", "error", "message" or the frame type
	Key     string
	Channel string
	Params  Params
	ConnID  uuid.UUID // Socket that produced the event

	// Frame events ("message" and typed)
	Payload    map[string]any
	Raw        json.RawMessage
	ReceivedAt time.Time

	// "disconnected" only
	Code   int
	Reason string

	// "error" only
	Err error
}

// Handler receives events for one key and event name.
type Handler func(Event)

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	MaxReconnectAttempts int           // Retries after unplanned closures before settling DISCONNECTED
	ReconnectDelay       time.Duration // Fixed wait before each retry
}

// DefaultManagerConfig returns the defaults of the web client this replaces.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxReconnectAttempts: 5,
		ReconnectDelay:       3 * time.Second,
	}
}

// SocketConfig configures WebSocket transports.
type SocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping period (0 = disabled)
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
}

// DefaultSocketConfig returns sensible defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Connections    int   // Tracked keys
	Open           int   // Keys in StateOpen
	Listeners      int   // Registered callbacks across all keys
	Reconnects     int64 // Reconnects scheduled
	Exhausted      int64 // Keys that ran out of reconnect attempts
	ParseErrors    int64 // Dropped malformed frames
	ListenerPanics int64 // Recovered callback panics
	DroppedSends   int64 // Sends discarded because the key was not open
}

// ConnStat describes one tracked key.
type ConnStat struct {
	Key      string `json:"key"`
	Channel  string `json:"channel"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	ConnID   string `json:"conn_id"`
	Since    string `json:"since"`
}
