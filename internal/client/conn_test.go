package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LegalWise/internal/event"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// pushServer is a minimal socket endpoint: it verifies the token query
// parameter, then lets the test script each accepted connection.
type pushServer struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	conns  []*websocket.Conn
	accept chan *websocket.Conn
}

func newPushServer(t *testing.T, validToken string) *pushServer {
	ps := &pushServer{t: t, accept: make(chan *websocket.Conn, 8)}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != validToken {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.mu.Unlock()
		ps.accept <- conn
	}))
	t.Cleanup(func() {
		ps.mu.Lock()
		for _, c := range ps.conns {
			c.Close()
		}
		ps.mu.Unlock()
		ps.srv.Close()
	})
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *pushServer) nextConn() *websocket.Conn {
	select {
	case c := <-ps.accept:
		return c
	case <-time.After(3 * time.Second):
		ps.t.Fatal("no connection accepted")
		return nil
	}
}

func TestOpenDeliversFramesToHandler(t *testing.T) {
	ps := newPushServer(t, "good-token")

	conn := NewConn(ConnConfig{
		SocketURL: ps.url(),
		Token:     "good-token",
		Logger:    zap.NewNop(),
	})

	received := make(chan event.Frame, 1)
	conn.OnFrame(func(f event.Frame) { received <- f })

	require.NoError(t, conn.Open(context.Background()))
	t.Cleanup(conn.Close)
	require.Equal(t, StateConnected, conn.State())

	server := ps.nextConn()
	require.NoError(t, server.WriteJSON(event.Frame{
		Type:           event.FrameMessageCanonical,
		ID:             "m1",
		ConversationID: "conv-1",
		Content:        "Hello",
	}))

	select {
	case f := <-received:
		require.Equal(t, "m1", f.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestOpenSurfacesAuthRejection(t *testing.T) {
	ps := newPushServer(t, "good-token")

	conn := NewConn(ConnConfig{
		SocketURL: ps.url(),
		Token:     "expired-token",
		Logger:    zap.NewNop(),
	})

	err := conn.Open(context.Background())
	require.ErrorIs(t, err, ErrAuthRejected)
	require.Equal(t, StateDisconnected, conn.State())
}

func TestSendIsBestEffortWhenDisconnected(t *testing.T) {
	conn := NewConn(ConnConfig{
		SocketURL: "ws://127.0.0.1:1/ws",
		Token:     "token",
		Logger:    zap.NewNop(),
	})

	// silently dropped; the durable-write path is the backstop
	conn.Send(event.Frame{Type: event.FrameMessage, Content: "lost"})
	require.Equal(t, StateDisconnected, conn.State())
}

func TestUnexpectedCloseTriggersReconnect(t *testing.T) {
	ps := newPushServer(t, "good-token")

	conn := NewConn(ConnConfig{
		SocketURL:     ps.url(),
		Token:         "good-token",
		RetryDelay:    50 * time.Millisecond, // policy constant, shortened for the test
		AutoReconnect: true,
		Logger:        zap.NewNop(),
	})

	reconnected := make(chan struct{}, 1)
	conn.OnReconnected(func() { reconnected <- struct{}{} })

	received := make(chan event.Frame, 1)
	conn.OnFrame(func(f event.Frame) { received <- f })

	require.NoError(t, conn.Open(context.Background()))
	t.Cleanup(conn.Close)

	// drop the first connection from the server side
	first := ps.nextConn()
	first.Close()

	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("connection never reestablished")
	}
	require.Equal(t, StateConnected, conn.State())

	// frames flow on the new connection
	second := ps.nextConn()
	require.NoError(t, second.WriteJSON(event.Frame{Type: event.FrameMessageCanonical, ID: "m2"}))
	select {
	case f := <-received:
		require.Equal(t, "m2", f.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("frame never delivered after reconnect")
	}
}

func TestOpenDuringReconnectWaitIsNoOp(t *testing.T) {
	ps := newPushServer(t, "good-token")

	conn := NewConn(ConnConfig{
		SocketURL:     ps.url(),
		Token:         "good-token",
		RetryDelay:    time.Hour, // keep the retry loop parked in its wait
		AutoReconnect: true,
		Logger:        zap.NewNop(),
	})

	require.NoError(t, conn.Open(context.Background()))
	t.Cleanup(conn.Close)

	first := ps.nextConn()
	first.Close()

	require.Eventually(t, func() bool {
		return conn.State() == StateReconnecting
	}, 3*time.Second, 10*time.Millisecond)

	// the retry loop owns the redial; a second Open must not race it
	// with a dial of its own
	require.NoError(t, conn.Open(context.Background()))
	require.Equal(t, StateReconnecting, conn.State())

	select {
	case c := <-ps.accept:
		c.Close()
		t.Fatal("unexpected dial while a reconnect was pending")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestCloseStopsDeliveryAndReconnect(t *testing.T) {
	ps := newPushServer(t, "good-token")

	conn := NewConn(ConnConfig{
		SocketURL:     ps.url(),
		Token:         "good-token",
		RetryDelay:    50 * time.Millisecond,
		AutoReconnect: true,
		Logger:        zap.NewNop(),
	})

	var mu sync.Mutex
	delivered := 0
	conn.OnFrame(func(event.Frame) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	require.NoError(t, conn.Open(context.Background()))
	server := ps.nextConn()

	conn.Close()
	require.Equal(t, StateDisconnected, conn.State())

	// frames written after close never reach the handler
	_ = server.WriteJSON(event.Frame{Type: event.FrameMessageCanonical, ID: "late"})
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	require.Zero(t, delivered)
	mu.Unlock()
	require.Equal(t, StateDisconnected, conn.State(), "intentional close does not reconnect")
}
