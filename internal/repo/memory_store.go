package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"LegalWise/internal/model"
)

// MemoryStore is a DurableStore held entirely in process memory. It honors
// the same atomicity contracts as the Mongo store under a single mutex and
// backs the test suites and local development without a database.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message // keyed by conversation id
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		now:           time.Now,
	}
}

// SetClock overrides the timestamp source. Tests use it to force timestamp
// collisions and verify the sequence tie-break.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) EnsureConversation(_ context.Context, clientID, lawyerID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.ClientID == clientID && conv.LawyerID == lawyerID {
			return copyConversation(conv), nil
		}
	}

	now := s.now().UTC()
	conv := &model.Conversation{
		ID:             uuid.NewString(),
		ClientID:       clientID,
		LawyerID:       lawyerID,
		ParticipantIDs: []string{clientID, lawyerID},
		UnreadCount:    map[string]int{clientID: 0, lawyerID: 0},
		LastActivityAt: now,
		CreatedAt:      now,
	}
	s.conversations[conv.ID] = conv
	return copyConversation(conv), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) Append(_ context.Context, conversationID, senderID, content, clientNonce string) (*model.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	recipient, ok := conv.Counterpart(senderID)
	if !ok {
		return nil, ErrNotParticipant
	}

	if clientNonce != "" {
		for _, existing := range s.messages[conversationID] {
			if existing.ClientNonce == clientNonce {
				dup := existing
				return &dup, nil
			}
		}
	}

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     conv.RoleOf(senderID),
		Content:        content,
		ClientNonce:    clientNonce,
		Seq:            conv.LastSeq + 1,
		CreatedAt:      s.now().UTC(),
		Read:           false,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)

	conv.LastSeq = msg.Seq
	conv.LastActivityAt = msg.CreatedAt
	conv.LastMessage = &model.LastMessage{
		MessageID: msg.ID,
		Content:   msg.Content,
		SenderID:  msg.SenderID,
		SentAt:    msg.CreatedAt,
	}
	conv.UnreadCount[recipient]++

	out := msg
	return &out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0, ErrConversationNotFound
	}

	counterpart, ok := conv.Counterpart(readerID)
	if !ok {
		return 0, ErrNotParticipant
	}

	var affected int64
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID == counterpart && !msgs[i].Read {
			msgs[i].Read = true
			affected++
		}
	}
	conv.UnreadCount[readerID] = 0

	return affected, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	msgs := make([]model.Message, len(s.messages[conversationID]))
	copy(msgs, s.messages[conversationID])
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Before(msgs[j])
	})
	return msgs, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, participantID string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var convs []model.Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(participantID) {
			convs = append(convs, *copyConversation(conv))
		}
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
	})
	return convs, nil
}

func copyConversation(conv *model.Conversation) *model.Conversation {
	out := *conv
	out.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
	out.UnreadCount = make(map[string]int, len(conv.UnreadCount))
	for k, v := range conv.UnreadCount {
		out.UnreadCount[k] = v
	}
	if conv.LastMessage != nil {
		lm := *conv.LastMessage
		out.LastMessage = &lm
	}
	return &out
}
