package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LegalWise/internal/event"
)

// ErrAuthRejected is returned when the handshake is refused for an invalid
// or expired token. Unlike transport failures it is fatal: the connection
// manager does not retry it.
var ErrAuthRejected = errors.New("handshake rejected: invalid or expired token")

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// DefaultRetryDelay is the fixed pause before a dropped connection retries.
// A flat delay, not a backoff ladder; tunable via ConnConfig.
const DefaultRetryDelay = 3 * time.Second

// FrameHandler receives inbound push frames. Exactly one handler is active
// per connection.
type FrameHandler func(f event.Frame)

// ConnConfig configures a push-channel connection.
type ConnConfig struct {
	// SocketURL is the ws:// or wss:// endpoint, without the token.
	SocketURL string
	// Token rides as a query parameter on the handshake; it is verified
	// server-side before any frame is routed.
	Token string
	// RetryDelay is the fixed reconnect pause. Zero means DefaultRetryDelay.
	RetryDelay time.Duration
	// AutoReconnect re-enters Connecting after unexpected closure.
	AutoReconnect bool
	Logger        *zap.Logger
}

// Conn owns one push connection: handshake, liveness, reconnection, and
// frame routing. It replaces any shared mutable connection handle; callers
// hold only this object and use Send/OnFrame/Close.
type Conn struct {
	cfg ConnConfig

	mu               sync.Mutex
	state            State
	conn             *websocket.Conn
	intentionalClose bool
	cancelFn         context.CancelFunc

	handlerMu sync.RWMutex
	handler   FrameHandler

	reconnectedMu sync.RWMutex
	onReconnected func()
}

// NewConn creates a connection manager in the Disconnected state.
func NewConn(cfg ConnConfig) *Conn {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Conn{
		cfg:   cfg,
		state: StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnFrame registers the inbound-frame handler, replacing any previous one.
func (c *Conn) OnFrame(handler FrameHandler) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// OnReconnected registers a callback invoked after a successful automatic
// reconnect. The session uses it to refetch history, since the push stream
// does not resume where it left off.
func (c *Conn) OnReconnected(fn func()) {
	c.reconnectedMu.Lock()
	c.onReconnected = fn
	c.reconnectedMu.Unlock()
}

// Open establishes the connection, authenticating via the handshake token.
// An authentication rejection is returned as ErrAuthRejected and is not
// retried.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	// StateReconnecting counts as in-progress too, otherwise a caller's
	// Open would dial alongside the retry loop's own dial.
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.intentionalClose = false
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Conn) dial(ctx context.Context) error {
	wsURL := c.cfg.SocketURL + "?token=" + url.QueryEscape(c.cfg.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()

		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrAuthRejected
		}
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.cancelFn = cancel
	c.mu.Unlock()

	go c.readLoop(connCtx, conn)
	return nil
}

// Send pushes a frame over the live connection. Best-effort: when the
// connection is not open the frame is dropped and logged, never surfaced as
// an error. The durable-write path is the reliability backstop.
func (c *Conn) Send(f event.Frame) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		c.cfg.Logger.Debug("push skipped, not connected",
			zap.String("type", f.Type),
			zap.String("conversation_id", f.ConversationID),
		)
		return
	}

	if err := conn.WriteJSON(f); err != nil {
		c.cfg.Logger.Warn("push write failed", zap.Error(err))
	}
}

// Close tears the connection down. No frames are delivered to the handler
// after it returns.
func (c *Conn) Close() {
	c.mu.Lock()
	c.intentionalClose = true
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	// detaching the handler guarantees no further deliveries even if the
	// read goroutine is mid-frame
	c.handlerMu.Lock()
	c.handler = nil
	c.handlerMu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client close"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (c *Conn) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f event.Frame
		if err := conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			intentional := c.intentionalClose
			if c.conn == conn {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()

			if intentional || ctx.Err() != nil {
				return
			}

			c.cfg.Logger.Warn("push connection lost", zap.Error(err))
			if c.cfg.AutoReconnect {
				c.reconnectLoop(ctx)
			}
			return
		}

		c.handlerMu.RLock()
		handler := c.handler
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(f)
		}
	}
}

// reconnectLoop re-enters Connecting after the fixed retry delay, until the
// dial succeeds, the close is intentional, or authentication is rejected.
func (c *Conn) reconnectLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.intentionalClose {
			c.mu.Unlock()
			return
		}
		c.state = StateReconnecting
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RetryDelay):
		}

		c.mu.Lock()
		if c.intentionalClose {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dial(dialCtx)
		cancel()
		if err == nil {
			c.cfg.Logger.Info("push connection reestablished")
			c.reconnectedMu.RLock()
			fn := c.onReconnected
			c.reconnectedMu.RUnlock()
			if fn != nil {
				fn()
			}
			return
		}

		if errors.Is(err, ErrAuthRejected) {
			// fatal: a bad token will not heal by retrying
			c.cfg.Logger.Error("reconnect rejected: authentication failed")
			return
		}

		c.cfg.Logger.Warn("reconnect attempt failed", zap.Error(err))
	}
}
