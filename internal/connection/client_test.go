package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

type closeInfo struct {
	code   int
	reason string
}

// recordingHandler forwards socket callbacks to channels.
type recordingHandler struct {
	opened   chan struct{}
	messages chan []byte
	errs     chan error
	closed   chan closeInfo
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		opened:   make(chan struct{}, 1),
		messages: make(chan []byte, 16),
		errs:     make(chan error, 16),
		closed:   make(chan closeInfo, 1),
	}
}

func (r *recordingHandler) OnOpen()                         { r.opened <- struct{}{} }
func (r *recordingHandler) OnMessage(data []byte)           { r.messages <- data }
func (r *recordingHandler) OnError(err error)               { r.errs <- err }
func (r *recordingHandler) OnClose(code int, reason string) { r.closed <- closeInfo{code, reason} }

func (r *recordingHandler) waitOpen(t *testing.T) {
	t.Helper()
	select {
	case <-r.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for open")
	}
}

func (r *recordingHandler) waitClose(t *testing.T) closeInfo {
	t.Helper()
	select {
	case info := <-r.closed:
		return info
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close")
	}
	return closeInfo{}
}

func testSocketConfig() SocketConfig {
	cfg := DefaultSocketConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

func TestSocket_OpenAndClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	h := newRecordingHandler()
	sock := NewWebsocketFactory(testSocketConfig(), nil).Open(wsURL(server), h)
	h.waitOpen(t)

	if err := sock.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	info := h.waitClose(t)
	if info.code != CloseNormal {
		t.Errorf("close code = %d, want %d", info.code, CloseNormal)
	}

	if err := sock.Send([]byte(`{}`)); err != ErrSocketClosed {
		t.Errorf("Send after Close = %v, want %v", err, ErrSocketClosed)
	}
}

func TestSocket_Send(t *testing.T) {
	received := make(chan string, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		conn.ReadMessage()
	})
	defer server.Close()

	h := newRecordingHandler()
	sock := NewWebsocketFactory(testSocketConfig(), nil).Open(wsURL(server), h)
	defer sock.Close()
	h.waitOpen(t)

	if err := sock.Send([]byte(`{"action":"ping"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-received:
		if got != `{"action":"ping"}` {
			t.Errorf("server received %q, want %q", got, `{"action":"ping"}`)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server to receive message")
	}
}

func TestSocket_Messages(t *testing.T) {
	frames := []string{
		`{"type":"snapshot","orderbook":{"bids":[],"asks":[]}}`,
		`{"type":"orderbook_update"}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		conn.ReadMessage()
	})
	defer server.Close()

	h := newRecordingHandler()
	sock := NewWebsocketFactory(testSocketConfig(), nil).Open(wsURL(server), h)
	defer sock.Close()
	h.waitOpen(t)

	for i, want := range frames {
		select {
		case got := <-h.messages:
			if string(got) != want {
				t.Errorf("message %d = %s, want %s", i, got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestSocket_ServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.ReadMessage()
	})
	defer server.Close()

	h := newRecordingHandler()
	sock := NewWebsocketFactory(testSocketConfig(), nil).Open(wsURL(server), h)
	defer sock.Close()
	h.waitOpen(t)

	info := h.waitClose(t)
	if info.code != websocket.CloseGoingAway {
		t.Errorf("close code = %d, want %d", info.code, websocket.CloseGoingAway)
	}
	if info.reason != "restarting" {
		t.Errorf("close reason = %q, want %q", info.reason, "restarting")
	}
}

func TestSocket_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	h := newRecordingHandler()
	NewWebsocketFactory(testSocketConfig(), nil).Open(wsURL(server), h)

	select {
	case err := <-h.errs:
		if err == nil {
			t.Error("expected dial error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dial error")
	}

	info := h.waitClose(t)
	if info.code != CloseAbnormal {
		t.Errorf("close code = %d, want %d", info.code, CloseAbnormal)
	}

	select {
	case <-h.opened:
		t.Error("OnOpen called for failed dial")
	default:
	}
}

func TestSocket_CloseDuringDial(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	h := newRecordingHandler()
	sock := NewWebsocketFactory(testSocketConfig(), nil).Open(wsURL(server), h)
	sock.Close()

	info := h.waitClose(t)
	if info.code != CloseNormal {
		t.Errorf("close code = %d, want %d", info.code, CloseNormal)
	}
}

func TestSocket_PingHandler(t *testing.T) {
	pongReceived := make(chan struct{}, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.SetPongHandler(func(string) error {
			pongReceived <- struct{}{}
			return nil
		})
		conn.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	h := newRecordingHandler()
	sock := NewWebsocketFactory(testSocketConfig(), nil).Open(wsURL(server), h)
	defer sock.Close()
	h.waitOpen(t)

	select {
	case <-pongReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pong")
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("ws://localhost:8000/ws/user/?token=secret")
	if strings.Contains(got, "secret") {
		t.Errorf("redactURL() = %q, still contains token", got)
	}
	if got != "ws://localhost:8000/ws/user/" {
		t.Errorf("redactURL() = %q, want %q", got, "ws://localhost:8000/ws/user/")
	}
}

func TestDefaultConfigs(t *testing.T) {
	mcfg := DefaultManagerConfig()
	if mcfg.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", mcfg.MaxReconnectAttempts)
	}
	if mcfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", mcfg.ReconnectDelay)
	}

	scfg := DefaultSocketConfig()
	if scfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", scfg.WriteTimeout)
	}
	if scfg.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v, want 30s", scfg.PingInterval)
	}
}
