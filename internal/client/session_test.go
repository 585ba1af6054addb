package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LegalWise/internal/auth"
	"LegalWise/internal/deliver"
	"LegalWise/internal/gateway"
	"LegalWise/internal/handler"
	"LegalWise/internal/hub"
	"LegalWise/internal/model"
	"LegalWise/internal/repo"
)

const stackSecret = "session-test-secret"

type memParticipants struct {
	byID map[string]model.Participant
}

func (m *memParticipants) Get(_ context.Context, id string) (*model.Participant, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, repo.ErrParticipantNotFound
	}
	return &p, nil
}

func (m *memParticipants) Upsert(_ context.Context, p model.Participant) error {
	m.byID[p.ID] = p
	return nil
}

func (m *memParticipants) ListByRole(_ context.Context, role string) ([]model.Participant, error) {
	var out []model.Participant
	for _, p := range m.byID {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}

// testStack runs the whole server side in-process: durable store, push hub,
// gateway, and the REST surface, all behind one httptest listener.
type testStack struct {
	srv   *httptest.Server
	store *repo.MemoryStore
	hub   *hub.Hub
}

// waitOnline blocks until the hub has registered the participant's
// connection; registration is asynchronous after the handshake.
func (ts *testStack) waitOnline(t *testing.T, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ts.hub.IsOnline(userID)
	}, 3*time.Second, 10*time.Millisecond)
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := repo.NewMemoryStore()
	pushHub := hub.NewHub(logger)
	t.Cleanup(pushHub.Stop)

	gw := gateway.New(store, pushHub, logger)
	pushHub.SetInboundHandler(gw.HandleInbound)

	participants := &memParticipants{byID: map[string]model.Participant{
		"lawyer-1": {ID: "lawyer-1", Role: model.RoleLawyer, DisplayName: "Dana"},
		"client-1": {ID: "client-1", Role: model.RoleClient, DisplayName: "Avi"},
	}}

	verifier := auth.NewJWTVerifier(stackSecret)
	chatHandler := handler.NewChatHandler(gw, participants, logger)

	router := gin.New()
	chatRoute := router.Group("/lw/api/chat")
	chatRoute.Use(handler.AuthMiddleware(verifier))
	{
		chatRoute.GET("/conversations", chatHandler.ListConversations)
		chatRoute.POST("/conversations", chatHandler.EnsureConversation)
		chatRoute.GET("/conversations/:conversationId/messages", chatHandler.ListMessages)
		chatRoute.POST("/conversations/:conversationId/read", chatHandler.MarkAsRead)
		chatRoute.POST("/messages", chatHandler.SendMessage)
	}
	router.GET("/ws", func(c *gin.Context) {
		ident, err := verifier.Verify(c.Query("token"))
		if err != nil {
			c.JSON(401, gin.H{"error": "invalid or expired token"})
			return
		}
		pushHub.ServeWS(c.Writer, c.Request, ident)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testStack{srv: srv, store: store, hub: pushHub}
}

// session mints a token for the participant, opens the conversation via the
// API, and returns a live session bound to it.
func (ts *testStack) session(t *testing.T, id, role, conversationID string, connect bool) *Session {
	t.Helper()

	token, err := auth.Mint(stackSecret, id, role, time.Minute)
	require.NoError(t, err)

	api := NewAPIClient(ts.srv.URL, token, nil)
	conn := NewConn(ConnConfig{
		SocketURL: "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws",
		Token:     token,
		Logger:    zap.NewNop(),
	})

	s := NewSession(api, conn, auth.Identity{ID: id, Role: role}, conversationID, zap.NewNop())
	if connect {
		require.NoError(t, s.Open(context.Background()))
		t.Cleanup(s.Close)
	}
	return s
}

func (ts *testStack) openConversation(t *testing.T) string {
	t.Helper()
	token, err := auth.Mint(stackSecret, "client-1", model.RoleClient, time.Minute)
	require.NoError(t, err)
	conv, err := NewAPIClient(ts.srv.URL, token, nil).EnsureConversation(context.Background(), "lawyer-1")
	require.NoError(t, err)
	return conv.ID
}

func canonicalContents(records []deliver.Record) []string {
	var out []string
	for _, r := range records {
		if !r.Pending {
			out = append(out, r.Message.Content)
		}
	}
	return out
}

func TestDualPathSendConvergesToOneMessage(t *testing.T) {
	ts := newTestStack(t)
	convID := ts.openConversation(t)

	clientSess := ts.session(t, "client-1", model.RoleClient, convID, true)
	lawyerSess := ts.session(t, "lawyer-1", model.RoleLawyer, convID, true)
	ts.waitOnline(t, "client-1")
	ts.waitOnline(t, "lawyer-1")

	_, result := clientSess.Send(context.Background(), "Hello")
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("durable outcome never reported")
	}

	// both views settle on exactly one canonical record: the provisional
	// push and the durable write reconcile by nonce, never duplicate
	for _, s := range []*Session{clientSess, lawyerSess} {
		require.Eventually(t, func() bool {
			records := s.Messages()
			if len(records) != 1 || records[0].Pending {
				return false
			}
			return records[0].Message.Content == "Hello" && records[0].Message.ID != ""
		}, 3*time.Second, 20*time.Millisecond)
	}
}

func TestOfflineRecipientCatchesUpOnOpen(t *testing.T) {
	ts := newTestStack(t)
	convID := ts.openConversation(t)

	clientSess := ts.session(t, "client-1", model.RoleClient, convID, true)

	_, result := clientSess.Send(context.Background(), "are you there?")
	require.NoError(t, <-result)

	// the lawyer was never connected; the push frame evaporated, the
	// durable record did not
	lawyerSess := ts.session(t, "lawyer-1", model.RoleLawyer, convID, true)
	require.Equal(t, []string{"are you there?"}, canonicalContents(lawyerSess.Messages()))
}

func TestSendWithoutConnectionStillPersists(t *testing.T) {
	ts := newTestStack(t)
	convID := ts.openConversation(t)

	// session never opens its push channel; only the durable path runs
	clientSess := ts.session(t, "client-1", model.RoleClient, convID, false)

	_, result := clientSess.Send(context.Background(), "sent while offline")
	require.NoError(t, <-result)

	lawyerSess := ts.session(t, "lawyer-1", model.RoleLawyer, convID, true)
	require.Equal(t, []string{"sent while offline"}, canonicalContents(lawyerSess.Messages()))
}

func TestSendMessageRetrySameNonceReturnsOriginal(t *testing.T) {
	ts := newTestStack(t)
	convID := ts.openConversation(t)

	token, err := auth.Mint(stackSecret, "client-1", model.RoleClient, time.Minute)
	require.NoError(t, err)
	api := NewAPIClient(ts.srv.URL, token, nil)

	first, err := api.SendMessage(context.Background(), convID, "only once", "nonce-retry")
	require.NoError(t, err)
	second, err := api.SendMessage(context.Background(), convID, "only once", "nonce-retry")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	msgs, err := api.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestMarkAsReadNotifiesCounterpart(t *testing.T) {
	ts := newTestStack(t)
	convID := ts.openConversation(t)

	clientSess := ts.session(t, "client-1", model.RoleClient, convID, true)
	lawyerSess := ts.session(t, "lawyer-1", model.RoleLawyer, convID, true)

	ts.waitOnline(t, "client-1")
	ts.waitOnline(t, "lawyer-1")

	readBy := make(chan string, 1)
	clientSess.OnRead(func(readerID string) { readBy <- readerID })

	_, result := clientSess.Send(context.Background(), "please confirm")
	require.NoError(t, <-result)

	require.Eventually(t, func() bool {
		return len(lawyerSess.Messages()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	count, err := lawyerSess.MarkAsRead(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	select {
	case readerID := <-readBy:
		require.Equal(t, "lawyer-1", readerID)
	case <-time.After(3 * time.Second):
		t.Fatal("read receipt never arrived")
	}

	// unread counter is durably cleared
	token, err := auth.Mint(stackSecret, "lawyer-1", model.RoleLawyer, time.Minute)
	require.NoError(t, err)
	convs, err := NewAPIClient(ts.srv.URL, token, nil).ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Zero(t, convs[0].UnreadCount["lawyer-1"])
}

func TestTypingIndicatorRelayedNotPersisted(t *testing.T) {
	ts := newTestStack(t)
	convID := ts.openConversation(t)

	clientSess := ts.session(t, "client-1", model.RoleClient, convID, true)
	lawyerSess := ts.session(t, "lawyer-1", model.RoleLawyer, convID, true)

	ts.waitOnline(t, "client-1")
	ts.waitOnline(t, "lawyer-1")

	typing := make(chan bool, 1)
	lawyerSess.OnTyping(func(_ string, isTyping bool) { typing <- isTyping })

	clientSess.SendTyping(true)

	select {
	case isTyping := <-typing:
		require.True(t, isTyping)
	case <-time.After(3 * time.Second):
		t.Fatal("typing indicator never relayed")
	}

	msgs, err := ts.store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
