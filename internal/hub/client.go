package hub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LegalWise/internal/auth"
	"LegalWise/internal/event"
)

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a frame to the peer
	pongWait           = 20 * time.Second       // time allowed to read the next pong from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxFrameSize       = 64 * 1024              // max inbound frame size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // workers processing inbound frames
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound frames
	kickOnFull         = true                   // disconnect client when egress is full
	registerTimeout    = 5 * time.Second        // timeout for client registration
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for handing frames to the worker pool
)

// Client is one live push connection for a verified participant.
type Client struct {
	ID      string
	userID  string
	role    string
	conn    *websocket.Conn
	manager *Hub
	egress  chan event.Frame

	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

// RegisterClient creates a client for an authenticated connection and starts
// its read/write pumps.
func RegisterClient(ident *auth.Identity, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		ID:         uuid.New().String(),
		userID:     ident.ID,
		role:       ident.Role,
		conn:       conn,
		manager:    h,
		egress:     make(chan event.Frame, sendBufSize),
		cancel:     cancel,
		ctx:        ctx,
		connClosed: make(chan struct{}),
	}

	select {
	case h.register <- client:
		go client.readFrames()
		go client.writeFrames()
		return client
	case <-time.After(registerTimeout):
		h.logger.Warn("failed to register client: timeout",
			zap.String("client_id", client.ID),
			zap.String("user_id", ident.ID),
		)
		cancel()
		conn.Close()
		return nil
	}
}

func (c *Client) readFrames() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.manager.logger.Warn("failed to unregister client: timeout", zap.String("client_id", c.ID))
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxFrameSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var f event.Frame
			if err := c.conn.ReadJSON(&f); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.manager.logger.Info("client disconnected", zap.String("client_id", c.ID))
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					c.manager.logger.Warn("unexpected close",
						zap.String("client_id", c.ID),
						zap.Error(err),
					)
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.manager.logger.Info("client timed out, closing connection", zap.String("client_id", c.ID))
					return
				}

				c.manager.logger.Warn("read error",
					zap.String("client_id", c.ID),
					zap.Error(err),
				)
				return
			}

			// Non-blocking hand-off to the worker pool so the reader never
			// stalls behind frame processing.
			select {
			case c.manager.inbound <- inboundFrame{client: c, frame: f}:
			case <-time.After(inboundSendTimeout):
				c.manager.logger.Warn("inbound queue full, dropping client", zap.String("client_id", c.ID))
				c.cancel()
				c.conn.Close()
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) writeFrames() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				c.manager.logger.Debug("close write failed", zap.Error(err))
			}
			return
		case f := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.manager.logger.Warn("frame write failed",
					zap.String("client_id", c.ID),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.manager.logger.Warn("ping failed",
					zap.String("client_id", c.ID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// TrySend enqueues a frame for delivery. Returns false if the client is
// closed or the egress buffer cannot accept it within the timeout.
func (c *Client) TrySend(f event.Frame, timeout time.Duration) bool {
	if c.IsClosed() {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- f:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close tears the connection down once. No frames are delivered after it
// returns. The egress channel stays open; cancelling the context is what
// ends the write pump, so a concurrent TrySend never races a channel close.
func (c *Client) Close() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()

		// writeFrames owns the conn teardown; force it after a grace period
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				c.manager.logger.Warn("safety timeout: force closed connection", zap.String("client_id", c.ID))
			}
		}()
	})
}

// IsClosed reports whether the client has been torn down.
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}
