package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LegalWise/internal/auth"
	"LegalWise/internal/event"
)

const testSecret = "hub-test-secret"

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	h := NewHub(zap.NewNop())
	verifier := auth.NewJWTVerifier(testSecret)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := verifier.Verify(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		h.ServeWS(w, r, ident)
	}))

	t.Cleanup(func() {
		srv.Close()
		h.Stop()
	})
	return h, srv
}

func dialAs(t *testing.T, srv *httptest.Server, userID, role string) *websocket.Conn {
	t.Helper()

	token, err := auth.Mint(testSecret, userID, role, time.Hour)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitOnline(t *testing.T, h *Hub, userID string) {
	t.Helper()
	require.Eventually(t, func() bool { return h.IsOnline(userID) },
		3*time.Second, 10*time.Millisecond, "user %s never registered", userID)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	_, srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushToUserDeliversFrame(t *testing.T) {
	h, srv := newTestServer(t)
	conn := dialAs(t, srv, "lawyer-1", "lawyer")
	waitOnline(t, h, "lawyer-1")

	sent := event.Frame{
		Type:           event.FrameMessageCanonical,
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "client-1",
		Content:        "Hello",
	}
	require.True(t, h.PushToUser("lawyer-1", sent))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got event.Frame
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, sent.ID, got.ID)
	require.Equal(t, sent.Content, got.Content)
}

func TestPushToOfflineUserIsBestEffort(t *testing.T) {
	h, _ := newTestServer(t)
	require.False(t, h.PushToUser("nobody", event.Frame{Type: event.FrameMessage}))
}

func TestInboundFrameReachesHandlerWithVerifiedSender(t *testing.T) {
	h, srv := newTestServer(t)

	type inbound struct {
		senderID string
		frame    event.Frame
	}
	received := make(chan inbound, 1)
	h.SetInboundHandler(func(senderID string, f event.Frame) {
		received <- inbound{senderID: senderID, frame: f}
	})

	conn := dialAs(t, srv, "client-1", "client")
	waitOnline(t, h, "client-1")

	require.NoError(t, conn.WriteJSON(event.Frame{
		Type:           event.FrameMessage,
		ConversationID: "conv-1",
		SenderID:       "client-1",
		Content:        "Hello",
		ClientNonce:    "n1",
	}))

	select {
	case in := <-received:
		require.Equal(t, "client-1", in.senderID, "sender comes from the connection identity")
		require.Equal(t, "n1", in.frame.ClientNonce)
	case <-time.After(3 * time.Second):
		t.Fatal("inbound frame never reached the handler")
	}
}

func TestNewerConnectionSupersedesOlder(t *testing.T) {
	h, srv := newTestServer(t)

	old := dialAs(t, srv, "lawyer-1", "lawyer")
	waitOnline(t, h, "lawyer-1")

	replacement := dialAs(t, srv, "lawyer-1", "lawyer")

	// the old connection is closed by the hub
	old.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f event.Frame
		if err := old.ReadJSON(&f); err != nil {
			break
		}
	}

	require.True(t, h.IsOnline("lawyer-1"))
	require.True(t, h.PushToUser("lawyer-1", event.Frame{
		Type: event.FrameMessageCanonical,
		ID:   "m1",
	}))

	replacement.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got event.Frame
	require.NoError(t, replacement.ReadJSON(&got))
	require.Equal(t, "m1", got.ID)
}

func clientFor(h *Hub, userID string) *Client {
	b := h.shards[getShard(userID)]
	b.RLock()
	defer b.RUnlock()
	return b.users[userID]
}

func TestStopTwiceIsSafe(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.Stop()

	// the server loop and the container teardown both call Stop
	require.NotPanics(t, func() { h.Stop() })
}

func TestTrySendAfterCloseDoesNotPanic(t *testing.T) {
	h, srv := newTestServer(t)
	dialAs(t, srv, "lawyer-1", "lawyer")
	waitOnline(t, h, "lawyer-1")

	c := clientFor(h, "lawyer-1")
	require.NotNil(t, c)
	c.Close()

	require.NotPanics(t, func() {
		for i := 0; i < 64; i++ {
			require.False(t, c.TrySend(event.Frame{Type: event.FrameMessage}, time.Millisecond))
		}
	})
}

func TestMonitorStatsCountConnections(t *testing.T) {
	h, srv := newTestServer(t)
	ms := NewMonitorService(h)

	require.Equal(t, "idle", ms.GetStats().Status)

	dialAs(t, srv, "client-1", "client")
	dialAs(t, srv, "lawyer-1", "lawyer")
	waitOnline(t, h, "client-1")
	waitOnline(t, h, "lawyer-1")

	stats := ms.GetStats()
	require.Equal(t, "healthy", stats.Status)
	require.Equal(t, 2, stats.TotalConnected)
	require.Equal(t, 1, stats.ConnectedByRole["client"])
	require.Equal(t, 1, stats.ConnectedByRole["lawyer"])
}
