package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one transport connection owned by the manager.
type Socket interface {
	// Send writes one text frame.
	Send(data []byte) error

	// Close starts a graceful close. It must not wait for callbacks to finish.
	Close() error
}

// SocketHandler receives transport callbacks. A socket calls its handler from a
// single goroutine: OnOpen at most once, then OnMessage/OnError, then OnClose
// exactly once.
type SocketHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// SocketFactory creates sockets. Open must return without touching the network
// synchronously. h may be called from the socket's own goroutine at any time,
// even before Open returns, but never from the goroutine calling Open.
type SocketFactory interface {
	Open(url string, h SocketHandler) Socket
}

// websocketFactory opens gorilla/websocket connections.
type websocketFactory struct {
	cfg    SocketConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewWebsocketFactory returns the production SocketFactory.
func NewWebsocketFactory(cfg SocketConfig, logger *slog.Logger) SocketFactory {
	if logger == nil {
		logger = slog.Default()
	}

	return &websocketFactory{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Open dials in the background and reports progress through h.
func (f *websocketFactory) Open(rawURL string, h SocketHandler) Socket {
	ctx, cancel := context.WithCancel(context.Background())

	s := &wsSocket{
		url:    rawURL,
		cfg:    f.cfg,
		dialer: f.dialer,
		logger: f.logger.With("url", redactURL(rawURL)),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.run(ctx, h)

	return s
}

// wsSocket implements Socket over a gorilla/websocket connection.
type wsSocket struct {
	url    string
	cfg    SocketConfig
	dialer *websocket.Dialer
	logger *slog.Logger
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	done     chan struct{}
	doneOnce sync.Once
}

// run dials, then reads until the connection ends.
func (s *wsSocket) run(ctx context.Context, h SocketHandler) {
	defer s.stop()

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if s.isClosed() {
			h.OnClose(CloseNormal, "closed before open")
			return
		}
		s.logger.Debug("websocket dial failed", "error", err)
		h.OnError(fmt.Errorf("dial: %w", err))
		h.OnClose(CloseAbnormal, err.Error())
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		h.OnClose(CloseNormal, "closed before open")
		return
	}
	s.conn = conn
	s.mu.Unlock()

	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		err := conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	s.logger.Debug("websocket connected")
	h.OnOpen()

	if s.cfg.PingInterval > 0 {
		go s.heartbeatLoop(conn)
	}

	s.readLoop(conn, h)
}

// readLoop forwards frames until the connection fails or is closed.
func (s *wsSocket) readLoop(conn *websocket.Conn, h SocketHandler) {
	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			h.OnMessage(data)
			continue
		}

		s.mu.Lock()
		closedByUs := s.closed
		s.closed = true
		s.mu.Unlock()
		conn.Close()

		var closeErr *websocket.CloseError
		switch {
		case errors.As(err, &closeErr):
			h.OnClose(closeErr.Code, closeErr.Text)
		case closedByUs:
			h.OnClose(CloseNormal, "client closed")
		default:
			h.OnError(err)
			h.OnClose(CloseAbnormal, err.Error())
		}
		return
	}
}

// heartbeatLoop sends keepalive pings until the socket stops.
func (s *wsSocket) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.writeTimeout())
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// Send writes one text frame.
func (s *wsSocket) Send(data []byte) error {
	s.mu.Lock()
	conn, closed := s.conn, s.closed
	s.mu.Unlock()

	if closed {
		return ErrSocketClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the connection down. The read loop
// reports OnClose once it notices.
func (s *wsSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	// Abort an in-flight dial
	s.cancel()
	s.stop()

	if conn == nil {
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (s *wsSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsSocket) stop() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}

func (s *wsSocket) writeTimeout() time.Duration {
	if s.cfg.WriteTimeout > 0 {
		return s.cfg.WriteTimeout
	}
	return 5 * time.Second
}

// redactURL drops the query string so bearer tokens stay out of logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	u.RawQuery = ""
	return u.String()
}
