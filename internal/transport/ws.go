package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the websocket transport factory.
type WSConfig struct {
	// URLTemplate is the backend websocket URL with a "{session}"
	// placeholder, e.g. "wss://chat.example.com/v1/stream/{session}".
	URLTemplate string

	// AuthToken, when set, is sent as a bearer Authorization header.
	AuthToken string

	HandshakeTimeout time.Duration // default 10s
	WriteTimeout     time.Duration // default 5s
	PingInterval     time.Duration // default 30s
	PingTimeout      time.Duration // max silence before the connection is stale; default 90s
}

func (c *WSConfig) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 90 * time.Second
	}
}

// NewWSFactory returns a Factory producing websocket transports.
func NewWSFactory(cfg WSConfig, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return func(sessionID string, h Handlers) Transport {
		return &wsTransport{
			cfg:      cfg,
			url:      strings.ReplaceAll(cfg.URLTemplate, "{session}", url.PathEscape(sessionID)),
			handlers: h,
			logger:   logger.With("session_id", sessionID),
			done:     make(chan struct{}),
		}
	}
}

// wsTransport is one websocket connection.
type wsTransport struct {
	cfg      WSConfig
	url      string
	handlers Handlers
	logger   *slog.Logger

	conn *websocket.Conn
	done chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastPingAt time.Time

	closeOnce sync.Once
}

// Connect dials the backend and starts the read and heartbeat loops.
func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrAlreadyClosed
	}
	t.mu.Unlock()

	header := http.Header{}
	if t.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+t.cfg.AuthToken)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.lastPingAt = time.Now()
	t.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()
		return nil
	})

	go t.readLoop()
	go t.heartbeatLoop()

	t.logger.Debug("websocket connected", "url", t.url)

	if t.handlers.OnOpen != nil {
		t.handlers.OnOpen()
	}
	return nil
}

// Close tears down the connection with a normal close frame. The close
// handler does not fire for a local close.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	close(t.done)

	if t.conn != nil {
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return t.conn.Close()
	}
	return nil
}

// SendBinary writes one binary message.
func (t *wsTransport) SendBinary(data []byte) error {
	return t.write(websocket.BinaryMessage, data)
}

// SendText writes one text message.
func (t *wsTransport) SendText(text string) error {
	return t.write(websocket.TextMessage, []byte(text))
}

func (t *wsTransport) write(messageType int, data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteMessage(messageType, data)
}

// readLoop pumps inbound messages into the handlers until the
// connection dies or Close is called.
func (t *wsTransport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			// Errors after a local Close are expected noise.
			select {
			case <-t.done:
				return
			default:
			}
			t.reportClose(err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if t.handlers.OnBinary != nil {
				t.handlers.OnBinary(data)
			}
		case websocket.TextMessage:
			if t.handlers.OnText != nil {
				t.handlers.OnText(string(data))
			}
		}
	}
}

// reportClose classifies a read error into a close event, exactly once.
func (t *wsTransport) reportClose(err error) {
	t.closeOnce.Do(func() {
		code := CodeAbnormal
		reason := err.Error()
		if ce, ok := err.(*websocket.CloseError); ok {
			code = ce.Code
			reason = ce.Text
		} else if t.handlers.OnError != nil {
			t.handlers.OnError(err)
		}

		t.logger.Debug("websocket closed", "code", code, "reason", reason)
		if t.handlers.OnClose != nil {
			t.handlers.OnClose(code, reason)
		}
	})
}

// heartbeatLoop pings the backend and flags stale connections.
func (t *wsTransport) heartbeatLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.RLock()
			conn := t.conn
			lastPing := t.lastPingAt
			t.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(t.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					t.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				if conn != nil {
					conn.Close()
				}
				return
			}
		}
	}
}
