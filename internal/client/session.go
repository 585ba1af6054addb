package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"LegalWise/internal/auth"
	"LegalWise/internal/deliver"
	"LegalWise/internal/event"
)

// ErrNotSaved reports a durable-write failure for a send. It is distinct
// from connection failures on purpose: the user should be told "your
// message wasn't saved" (retry) rather than "you're disconnected" (wait).
var ErrNotSaved = errors.New("message was not saved")

// Session is the participant-facing view of one active conversation: it
// submits dual-path sends, feeds push frames and durable confirmations into
// the delivery coordinator, and resyncs from authoritative history after
// every reconnect.
type Session struct {
	api            *APIClient
	conn           *Conn
	coord          *deliver.Coordinator
	identity       auth.Identity
	conversationID string
	logger         *zap.Logger

	onRead   func(readerID string)
	onTyping func(senderID string, typing bool)
}

// NewSession wires a session for one conversation. It takes over the
// connection's frame handler.
func NewSession(api *APIClient, conn *Conn, ident auth.Identity, conversationID string, logger *zap.Logger) *Session {
	s := &Session{
		api:            api,
		conn:           conn,
		coord:          deliver.NewCoordinator(logger),
		identity:       ident,
		conversationID: conversationID,
		logger:         logger,
	}
	conn.OnFrame(s.handleFrame)
	conn.OnReconnected(func() {
		// the push stream does not resume where it left off; the view is
		// stale until a catch-up fetch repairs it
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Resync(ctx); err != nil {
			s.logger.Warn("post-reconnect resync failed", zap.Error(err))
		}
	})
	return s
}

// Open connects the push channel and loads the authoritative history.
func (s *Session) Open(ctx context.Context) error {
	if err := s.conn.Open(ctx); err != nil {
		return err
	}
	return s.Resync(ctx)
}

// Close tears down the push connection. In-flight durable writes are
// independent of the connection and still complete.
func (s *Session) Close() {
	s.conn.Close()
}

// Send submits the message on both paths and returns immediately. The
// returned channel reports the durable outcome once: nil when persisted,
// ErrNotSaved-wrapped otherwise, with the content preserved in the pending
// record source for retry.
func (s *Session) Send(ctx context.Context, content string) (string, <-chan error) {
	nonce := uuid.NewString()
	provisional := event.Frame{
		Type:           event.FrameMessage,
		ConversationID: s.conversationID,
		SenderID:       s.identity.ID,
		SenderRole:     s.identity.Role,
		Content:        content,
		ClientNonce:    nonce,
		CreatedAt:      time.Now().UTC(),
	}

	// the sender's own view shows the message optimistically too
	s.coord.ObservePush(provisional)
	// ephemeral path: fire and forget
	s.conn.Send(provisional)

	result := make(chan error, 1)
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(result)
		msg, err := s.api.SendMessage(writeCtx, s.conversationID, content, nonce)
		if err != nil {
			// the provisional entry comes down only on this confirmed
			// failure, never on a timeout race
			s.coord.Fail(nonce)
			s.logger.Warn("durable send failed",
				zap.Error(err),
				zap.String("client_nonce", nonce),
			)
			result <- fmt.Errorf("%w: %v", ErrNotSaved, err)
			return
		}
		s.coord.Confirm(*msg)
	}()

	return nonce, result
}

// Resync replaces the local view with the authoritative history.
func (s *Session) Resync(ctx context.Context) error {
	history, err := s.api.ListMessages(ctx, s.conversationID)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	s.coord.Resync(history)
	return nil
}

// MarkAsRead durably clears the caller's unread counter. Idempotent.
func (s *Session) MarkAsRead(ctx context.Context) (int64, error) {
	return s.api.MarkAsRead(ctx, s.conversationID)
}

// Messages returns the reconciled view: canonical records in store order,
// pending sends after.
func (s *Session) Messages() []deliver.Record {
	return s.coord.Snapshot()
}

// SendTyping relays a typing indicator over the push channel. Best-effort,
// never persisted.
func (s *Session) SendTyping(typing bool) {
	s.conn.Send(event.Frame{
		Type:           event.FrameTyping,
		ConversationID: s.conversationID,
		SenderID:       s.identity.ID,
		SenderRole:     s.identity.Role,
		Typing:         typing,
	})
}

// OnRead registers a callback for counterpart read receipts.
func (s *Session) OnRead(fn func(readerID string)) { s.onRead = fn }

// OnTyping registers a callback for counterpart typing indicators.
func (s *Session) OnTyping(fn func(senderID string, typing bool)) { s.onTyping = fn }

func (s *Session) handleFrame(f event.Frame) {
	if f.ConversationID != s.conversationID {
		return
	}

	switch f.Type {
	case event.FrameMessage, event.FrameMessageCanonical:
		s.coord.ObservePush(f)
	case event.FrameRead:
		if s.onRead != nil {
			s.onRead(f.SenderID)
		}
	case event.FrameTyping:
		if s.onTyping != nil {
			s.onTyping(f.SenderID, f.Typing)
		}
	default:
		s.logger.Debug("ignoring frame", zap.String("type", f.Type))
	}
}
