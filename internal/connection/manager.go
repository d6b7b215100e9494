package connection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Manager multiplexes one live socket per (channel, params) key.
type Manager interface {
	// Connect opens the key's socket unless it is already open or connecting.
	Connect(channel string, params Params) error

	// Disconnect closes the key's socket and drops its listeners. No reconnect
	// follows. Safe to call for unknown keys.
	Disconnect(channel string, params Params)

	// DisconnectAll applies Disconnect to every tracked key.
	DisconnectAll()

	// Subscribe registers h for event on the key. The returned func removes
	// exactly this registration and may be called any number of times.
	Subscribe(channel string, params Params, event string, h Handler) (func(), error)

	// Send JSON-encodes payload and writes it if the key is open. Sends to a
	// key that is not open are dropped and logged.
	Send(channel string, params Params, payload any) error

	// IsConnected reports whether the key's socket is open.
	IsConnected(channel string, params Params) bool

	// Stats returns aggregate counters.
	Stats() ManagerStats

	// ConnStats describes every tracked key, sorted by key.
	ConnStats() []ConnStat
}

// handle is the registry entry for one key. A fresh handle replaces the old
// one on every open attempt, so callbacks from a superseded socket are
// recognized by identity and ignored.
type handle struct {
	key     string
	channel string
	params  Params // Read-only once registered
	id      uuid.UUID

	state    State
	attempts int
	socket   Socket
	timer    Timer
	since    time.Time
}

// manager implements the Manager interface.
type manager struct {
	cfg      ManagerConfig
	factory  SocketFactory
	sched    Scheduler
	endpoint *Endpoint
	logger   *slog.Logger

	// Registry state
	mu        sync.Mutex
	handles   map[string]*handle
	listeners *listenerTable

	// Counters
	reconnects     atomic.Int64
	exhausted      atomic.Int64
	parseErrors    atomic.Int64
	listenerPanics atomic.Int64
	droppedSends   atomic.Int64
}

// NewManager creates a Connection Manager. A nil scheduler uses real timers;
// a nil endpoint uses DefaultBaseURL without a token source.
func NewManager(cfg ManagerConfig, factory SocketFactory, sched Scheduler, endpoint *Endpoint, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if sched == nil {
		sched = NewScheduler()
	}
	if endpoint == nil {
		endpoint = &Endpoint{base: DefaultBaseURL}
	}
	if factory == nil {
		factory = NewWebsocketFactory(DefaultSocketConfig(), logger)
	}

	return &manager{
		cfg:       cfg,
		factory:   factory,
		sched:     sched,
		endpoint:  endpoint,
		logger:    logger,
		handles:   make(map[string]*handle),
		listeners: newListenerTable(),
	}
}

// Connect implements Manager.
func (m *manager) Connect(channel string, params Params) error {
	if channel == "" {
		return ErrEmptyChannel
	}

	return m.open(channel, params.clone(), Key(channel, params), nil)
}

// open registers a new CONNECTING handle for key and starts its socket.
// prev is nil for caller-initiated connects and the pending handle for
// scheduled reconnects.
func (m *manager) open(channel string, params Params, key string, prev *handle) error {
	m.mu.Lock()
	cur := m.handles[key]

	attempts := 0
	if prev == nil {
		if cur != nil && (cur.state == StateOpen || cur.state == StateConnecting) {
			m.mu.Unlock()
			return nil
		}
	} else {
		// Disconnected or replaced while the timer was pending
		if cur != prev || prev.state != StateReconnectPending {
			m.mu.Unlock()
			return nil
		}
		attempts = prev.attempts
	}

	if cur != nil && cur.timer != nil {
		cur.timer.Stop()
		cur.timer = nil
	}

	h := &handle{
		key:      key,
		channel:  channel,
		params:   params,
		id:       uuid.New(),
		state:    StateConnecting,
		attempts: attempts,
		since:    time.Now(),
	}
	m.handles[key] = h
	m.mu.Unlock()

	logger := m.logger.With("key", key, "conn_id", h.id)

	url, err := m.endpoint.Build(channel, params)
	if err != nil {
		err = fmt.Errorf("build endpoint for %s: %w", key, err)
		if prev == nil {
			m.mu.Lock()
			if m.handles[key] == h {
				h.state = StateDisconnected
			}
			m.mu.Unlock()
			return err
		}

		// A failed reconnect counts as another closure
		logger.Warn("reconnect failed", "error", err)
		m.handleError(h, err)
		m.handleClose(h, CloseAbnormal, err.Error())
		return err
	}

	logger.Debug("opening connection", "attempts", attempts)
	events := &socketEvents{m: m, h: h, ready: make(chan struct{})}
	sock := m.factory.Open(url, events)

	m.mu.Lock()
	if m.handles[key] != h {
		// Disconnected while the socket was being created
		m.mu.Unlock()
		close(events.ready)
		sock.Close()
		return nil
	}
	if h.state == StateConnecting {
		h.socket = sock
	}
	m.mu.Unlock()
	close(events.ready)

	return nil
}

// reconnect runs when a scheduled retry fires.
func (m *manager) reconnect(h *handle) {
	if err := m.open(h.channel, h.params, h.key, h); err != nil {
		m.logger.Debug("reconnect attempt failed", "key", h.key, "error", err)
	}
}

// socketEvents binds socket callbacks to one handle. Callbacks wait on ready
// so that h.socket is set before the key can be seen as open.
type socketEvents struct {
	m     *manager
	h     *handle
	ready chan struct{}
}

func (s *socketEvents) OnOpen() {
	<-s.ready
	s.m.handleOpen(s.h)
}

func (s *socketEvents) OnMessage(data []byte) {
	<-s.ready
	s.m.handleMessage(s.h, data)
}

func (s *socketEvents) OnError(err error) {
	<-s.ready
	s.m.handleError(s.h, err)
}

func (s *socketEvents) OnClose(code int, reason string) {
	<-s.ready
	s.m.handleClose(s.h, code, reason)
}

func (m *manager) handleOpen(h *handle) {
	m.mu.Lock()
	if m.handles[h.key] != h || h.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	h.state = StateOpen
	h.attempts = 0
	h.since = time.Now()
	m.mu.Unlock()

	m.logger.Info("connection open", "key", h.key, "conn_id", h.id)
	m.emit(h, Event{Name: EventConnected})
}

func (m *manager) handleMessage(h *handle, data []byte) {
	if !m.isCurrent(h) {
		return
	}

	receivedAt := time.Now()

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		m.parseErrors.Add(1)
		if err == nil {
			err = fmt.Errorf("frame is not a JSON object")
		}
		m.logger.Warn("dropping malformed frame",
			"key", h.key,
			"conn_id", h.id,
			"error", err,
			"size", len(data),
		)
		return
	}

	raw := json.RawMessage(data)
	m.emit(h, Event{Name: EventMessage, Payload: payload, Raw: raw, ReceivedAt: receivedAt})

	if typ, ok := payload["type"].(string); ok && typ != "" {
		m.emit(h, Event{Name: typ, Payload: payload, Raw: raw, ReceivedAt: receivedAt})
	}
}

func (m *manager) handleError(h *handle, err error) {
	if !m.isCurrent(h) {
		return
	}

	m.logger.Debug("transport error", "key", h.key, "conn_id", h.id, "error", err)
	m.emit(h, Event{Name: EventError, Err: err})
}

func (m *manager) handleClose(h *handle, code int, reason string) {
	m.mu.Lock()
	if m.handles[h.key] != h || (h.state != StateOpen && h.state != StateConnecting) {
		m.mu.Unlock()
		return
	}

	h.socket = nil
	h.since = time.Now()

	scheduled := false
	if h.attempts < m.cfg.MaxReconnectAttempts {
		h.attempts++
		h.state = StateReconnectPending
		h.timer = m.sched.AfterFunc(m.cfg.ReconnectDelay, func() { m.reconnect(h) })
		scheduled = true
	} else {
		h.state = StateDisconnected
	}
	attempts := h.attempts
	m.mu.Unlock()

	logger := m.logger.With("key", h.key, "conn_id", h.id, "code", code, "reason", reason)
	if scheduled {
		m.reconnects.Add(1)
		logger.Info("connection closed, reconnect scheduled",
			"attempt", attempts,
			"max_attempts", m.cfg.MaxReconnectAttempts,
			"delay", m.cfg.ReconnectDelay,
		)
	} else {
		m.exhausted.Add(1)
		logger.Warn("connection closed, reconnect attempts exhausted",
			"max_attempts", m.cfg.MaxReconnectAttempts,
		)
	}

	m.emit(h, Event{Name: EventDisconnected, Code: code, Reason: reason})
}

func (m *manager) isCurrent(h *handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[h.key] == h
}

// emit delivers ev to a snapshot of the listeners registered for its name.
func (m *manager) emit(h *handle, ev Event) {
	ev.Key = h.key
	ev.Channel = h.channel
	ev.Params = h.params
	ev.ConnID = h.id

	m.mu.Lock()
	handlers := m.listeners.snapshot(h.key, ev.Name)
	m.mu.Unlock()

	for _, fn := range handlers {
		m.invoke(fn, ev)
	}
}

// invoke runs one callback, containing any panic.
func (m *manager) invoke(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.listenerPanics.Add(1)
			m.logger.Error("listener panicked",
				"key", ev.Key,
				"event", ev.Name,
				"panic", r,
			)
		}
	}()

	fn(ev)
}

// Disconnect implements Manager.
func (m *manager) Disconnect(channel string, params Params) {
	key := Key(channel, params)

	m.mu.Lock()
	h := m.handles[key]
	if h == nil {
		// Listeners registered ahead of Connect stay in place
		m.mu.Unlock()
		return
	}
	delete(m.handles, key)
	m.listeners.removeKey(key)
	sock := m.detach(h)
	m.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	m.logger.Info("connection closed by caller", "key", key, "conn_id", h.id)
}

// DisconnectAll implements Manager.
func (m *manager) DisconnectAll() {
	m.mu.Lock()
	sockets := make([]Socket, 0, len(m.handles))
	for _, h := range m.handles {
		if sock := m.detach(h); sock != nil {
			sockets = append(sockets, sock)
		}
	}
	count := len(m.handles)
	m.handles = make(map[string]*handle)
	m.listeners.clear()
	m.mu.Unlock()

	for _, sock := range sockets {
		sock.Close()
	}

	m.logger.Info("all connections closed", "count", count)
}

// detach stops all automatic activity on h and hands back its socket.
// Caller must hold m.mu.
func (m *manager) detach(h *handle) Socket {
	h.attempts = m.cfg.MaxReconnectAttempts
	h.state = StateDisconnected

	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}

	sock := h.socket
	h.socket = nil
	return sock
}

// Subscribe implements Manager.
func (m *manager) Subscribe(channel string, params Params, event string, fn Handler) (func(), error) {
	switch {
	case channel == "":
		return nil, ErrEmptyChannel
	case event == "":
		return nil, ErrEmptyEvent
	case fn == nil:
		return nil, ErrNilHandler
	}

	key := Key(channel, params)

	m.mu.Lock()
	id := m.listeners.add(key, event, fn)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.listeners.remove(key, event, id)
			m.mu.Unlock()
		})
	}, nil
}

// Send implements Manager.
func (m *manager) Send(channel string, params Params, payload any) error {
	key := Key(channel, params)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", key, err)
	}

	m.mu.Lock()
	h := m.handles[key]
	var sock Socket
	if h != nil && h.state == StateOpen {
		sock = h.socket
	}
	m.mu.Unlock()

	if sock == nil {
		m.droppedSends.Add(1)
		m.logger.Warn("dropping send, connection not open", "key", key, "size", len(data))
		return nil
	}

	if err := sock.Send(data); err != nil {
		err = fmt.Errorf("send to %s: %w", key, err)
		m.handleError(h, err)
		return err
	}

	return nil
}

// IsConnected implements Manager.
func (m *manager) IsConnected(channel string, params Params) bool {
	key := Key(channel, params)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[key]
	return ok && h.state == StateOpen
}

// Stats implements Manager.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		Connections: len(m.handles),
		Listeners:   m.listeners.count(),
	}
	for _, h := range m.handles {
		if h.state == StateOpen {
			stats.Open++
		}
	}
	m.mu.Unlock()

	stats.Reconnects = m.reconnects.Load()
	stats.Exhausted = m.exhausted.Load()
	stats.ParseErrors = m.parseErrors.Load()
	stats.ListenerPanics = m.listenerPanics.Load()
	stats.DroppedSends = m.droppedSends.Load()

	return stats
}

// ConnStats implements Manager.
func (m *manager) ConnStats() []ConnStat {
	m.mu.Lock()
	out := make([]ConnStat, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, ConnStat{
			Key:      h.key,
			Channel:  h.channel,
			State:    h.state.String(),
			Attempts: h.attempts,
			ConnID:   h.id.String(),
			Since:    h.since.UTC().Format(time.RFC3339),
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
