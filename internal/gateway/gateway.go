// Package gateway is the single entry point for consultation messaging: it
// hides the dual-path send (ephemeral push plus durable write), fans
// canonical updates out to live connections, and routes inbound frames.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"LegalWise/internal/event"
	"LegalWise/internal/model"
	"LegalWise/internal/repo"
)

// Pusher is the push side the gateway fans out on. Satisfied by *hub.Hub.
type Pusher interface {
	PushToUser(userID string, f event.Frame) bool
}

// PendingSend is the immediately-returned handle for a dual-path send. The
// result channel reports the durable-write outcome exactly once: nil on
// persistence, an error when the message was not saved and the caller
// should offer retry. A delivered ephemeral push is never retracted on
// failure; unconfirmed copies are never treated as canonical downstream.
type PendingSend struct {
	ClientNonce string
	Result      <-chan error
}

// Gateway wires the durable store, the conversation directory views it
// exposes, and the push hub together.
type Gateway struct {
	store  repo.DurableStore
	pusher Pusher
	logger *zap.Logger
}

func New(store repo.DurableStore, pusher Pusher, logger *zap.Logger) *Gateway {
	return &Gateway{
		store:  store,
		pusher: pusher,
		logger: logger,
	}
}

// Send submits a message on both paths: a provisional frame to the
// counterpart's live connection for low latency, and a concurrent durable
// write that assigns the canonical identity. Returns without waiting for
// persistence.
func (g *Gateway) Send(ctx context.Context, conversationID, senderID, content string) (*PendingSend, error) {
	conv, err := g.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	counterpart, ok := conv.Counterpart(senderID)
	if !ok {
		return nil, repo.ErrNotParticipant
	}

	nonce := uuid.NewString()
	provisional := event.Frame{
		Type:           event.FrameMessage,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     conv.RoleOf(senderID),
		Content:        content,
		ClientNonce:    nonce,
		CreatedAt:      time.Now().UTC(),
	}
	// best-effort: a closed connection just means the durable path carries
	// the message alone
	g.pusher.PushToUser(counterpart, provisional)

	result := make(chan error, 1)
	// The durable write is independent of any connection lifetime: closing
	// the sender's connection must not cancel it.
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(result)
		if _, err := g.Persist(writeCtx, conversationID, senderID, content, nonce); err != nil {
			result <- err
		}
	}()

	return &PendingSend{ClientNonce: nonce, Result: result}, nil
}

// Persist runs the durable half of a send: append to the store and fan the
// canonical frame out to both participants' live connections. The REST
// surface calls it directly with the client-generated nonce; repeated calls
// with the same nonce return the same canonical message.
func (g *Gateway) Persist(ctx context.Context, conversationID, senderID, content, clientNonce string) (*model.Message, error) {
	msg, err := g.store.Append(ctx, conversationID, senderID, content, clientNonce)
	if err != nil {
		g.logger.Error("durable write failed",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
			zap.String("client_nonce", clientNonce),
		)
		return nil, fmt.Errorf("persist message: %w", err)
	}

	conv, err := g.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	canonical := event.CanonicalFrame(*msg)
	for _, participant := range conv.ParticipantIDs {
		g.pusher.PushToUser(participant, canonical)
	}

	return msg, nil
}

// EnsureConversation lazily creates the channel between a client and a
// lawyer. The caller's verified identity decides which side it sits on.
func (g *Gateway) EnsureConversation(ctx context.Context, clientID, lawyerID string) (*model.Conversation, error) {
	return g.store.EnsureConversation(ctx, clientID, lawyerID)
}

// ListConversations returns the participant's directory view, most recent
// activity first.
func (g *Gateway) ListConversations(ctx context.Context, participantID string) ([]model.Conversation, error) {
	return g.store.ListConversations(ctx, participantID)
}

// ListMessages returns the authoritative history in canonical order. Any
// push-derived copies a client holds must be reconciled against this
// result, not appended to it.
func (g *Gateway) ListMessages(ctx context.Context, conversationID, participantID string) ([]model.Message, error) {
	conv, err := g.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(participantID) {
		return nil, repo.ErrNotParticipant
	}
	return g.store.ListMessages(ctx, conversationID)
}

// MarkAsRead durably flips every counterpart-authored message to read,
// zeroes the reader's unread counter, and notifies the counterpart's live
// connection. Idempotent.
func (g *Gateway) MarkAsRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	count, err := g.store.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	conv, err := g.store.GetConversation(ctx, conversationID)
	if err != nil {
		return count, err
	}
	if counterpart, ok := conv.Counterpart(readerID); ok {
		g.pusher.PushToUser(counterpart, event.Frame{
			Type:           event.FrameRead,
			ConversationID: conversationID,
			SenderID:       readerID,
			CreatedAt:      time.Now().UTC(),
		})
	}

	return count, nil
}

// HandleInbound routes frames arriving over a live connection. senderID is
// the verified connection identity; frames claiming another sender are
// dropped.
func (g *Gateway) HandleInbound(senderID string, f event.Frame) {
	if f.SenderID != senderID {
		g.logger.Warn("dropping spoofed frame",
			zap.String("claimed_sender", f.SenderID),
			zap.String("connection_identity", senderID),
			zap.String("type", f.Type),
		)
		return
	}

	switch f.Type {
	case event.FrameMessage:
		g.relayToCounterpart(senderID, f)
	case event.FrameTyping:
		g.relayToCounterpart(senderID, f)
	default:
		g.logger.Debug("ignoring inbound frame type", zap.String("type", f.Type))
	}
}

func (g *Gateway) relayToCounterpart(senderID string, f event.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := g.store.GetConversation(ctx, f.ConversationID)
	if err != nil {
		g.logger.Warn("cannot relay frame",
			zap.Error(err),
			zap.String("conversation_id", f.ConversationID),
		)
		return
	}

	counterpart, ok := conv.Counterpart(senderID)
	if !ok {
		g.logger.Warn("relay rejected, sender not a participant",
			zap.String("sender_id", senderID),
			zap.String("conversation_id", f.ConversationID),
		)
		return
	}

	g.pusher.PushToUser(counterpart, f)
}
