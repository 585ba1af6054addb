package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LegalWise/internal/auth"
	"LegalWise/internal/event"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

// InboundHandler receives every frame a connected participant sends, with
// the sender taken from the verified connection identity rather than the
// frame body.
type InboundHandler func(senderID string, f event.Frame)

type inboundFrame struct {
	frame  event.Frame
	client *Client
}

type clientBucket struct {
	sync.RWMutex
	users map[string]*Client
}

// Hub owns one logical push connection per authenticated participant. A
// newer connection for the same participant supersedes the older one.
type Hub struct {
	shards     [shardCount]*clientBucket
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	logger     *zap.Logger

	handlerMu sync.RWMutex
	handler   InboundHandler

	framesIn  atomic.Int64
	framesOut atomic.Int64

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundFrame, 4096), // buffer for burst handling
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{
			users: make(map[string]*Client),
		}
	}

	go h.run()

	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}
					h.handleFrame(in.frame, in.client)
				}
			}
		}()
	}

	return h
}

// SetInboundHandler registers the frame router. Exactly one handler is
// active at a time.
func (h *Hub) SetInboundHandler(handler InboundHandler) {
	h.handlerMu.Lock()
	h.handler = handler
	h.handlerMu.Unlock()
}

func (h *Hub) handleFrame(f event.Frame, c *Client) {
	h.framesIn.Add(1)

	h.handlerMu.RLock()
	handler := h.handler
	h.handlerMu.RUnlock()

	if handler == nil {
		h.logger.Warn("inbound frame dropped, no handler registered",
			zap.String("type", f.Type),
			zap.String("user_id", c.userID),
		)
		return
	}

	handler(c.userID, f)
}

// PushToUser delivers a frame to a participant's live connection, if any.
// Best-effort: returns false when the participant is offline or the egress
// buffer cannot accept the frame in time. The durable-write path, not this
// channel, is the reliability backstop.
func (h *Hub) PushToUser(userID string, f event.Frame) bool {
	sh := getShard(userID)
	b := h.shards[sh]

	b.RLock()
	c, ok := b.users[userID]
	b.RUnlock()
	if !ok {
		return false
	}

	if !c.TrySend(f, sendTimeout) {
		h.logger.Warn("egress full, disconnecting client",
			zap.String("user_id", userID),
			zap.String("client_id", c.ID),
		)
		if kickOnFull {
			select {
			case h.unregister <- c:
			case <-time.After(unregisterTimeout):
				h.logger.Warn("failed to unregister client: timeout", zap.String("client_id", c.ID))
			}
		}
		return false
	}

	h.framesOut.Add(1)
	return true
}

// IsOnline reports whether a participant has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	b := h.shards[getShard(userID)]
	b.RLock()
	defer b.RUnlock()
	_, ok := b.users[userID]
	return ok
}

func getShard(userID string) uint32 {
	if userID == "" {
		return 0
	}

	s := sha1.Sum([]byte(userID))
	return binary.BigEndian.Uint32(s[:4]) % shardCount
}

func (h *Hub) addClient(c *Client) {
	sh := getShard(c.userID)
	b := h.shards[sh]
	b.Lock()
	old := b.users[c.userID]
	b.users[c.userID] = c
	b.Unlock()

	// one logical connection per participant: the newer one wins
	if old != nil && old != c {
		h.logger.Info("superseding connection",
			zap.String("user_id", c.userID),
			zap.String("old_client_id", old.ID),
			zap.String("client_id", c.ID),
		)
		old.Close()
	}

	h.logger.Info("client registered",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID),
		zap.Uint32("shard", sh),
	)
}

func (h *Hub) removeClient(c *Client) {
	sh := getShard(c.userID)
	b := h.shards[sh]
	b.Lock()
	current, ok := b.users[c.userID]
	if ok && current == c {
		delete(b.users, c.userID)
	}
	b.Unlock()

	c.Close()
	if ok && current == c {
		h.logger.Info("client removed",
			zap.String("client_id", c.ID),
			zap.String("user_id", c.userID),
		)
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Stop closes every connection and waits for the worker pool to drain.
// Safe to call more than once; both the server loop and the container
// teardown invoke it.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		for _, shard := range h.shards {
			shard.RLock()
			for _, client := range shard.users {
				client.Close()
			}
			shard.RUnlock()
		}

		close(h.inbound)
		h.wg.Wait()
	})
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	switch r.Header.Get("Origin") {
	case "", "http://localhost:4200", "https://www.legalwise.app":
		return true
	default:
		return false
	}
}

// ServeWS upgrades an already-authenticated handshake. The identity token
// must be verified by the caller before this point; no frame is routed for
// an unverified connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, ident *auth.Identity) {
	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(ident, conn, h)
}
