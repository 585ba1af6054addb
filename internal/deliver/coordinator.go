// Package deliver reconciles the two independent arrivals of a logical
// message, the ephemeral push frame and the durable-write confirmation,
// into exactly one canonical record per send.
package deliver

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"LegalWise/internal/event"
	"LegalWise/internal/model"
)

// Record is one entry in the reconciled conversation view. Pending records
// are push-delivered sends that have not been confirmed by the durable
// store; they render optimistically but never count toward unread totals or
// canonical ordering.
type Record struct {
	Message model.Message
	Pending bool
}

// Coordinator maintains the reconciled view of a single conversation.
//
// Canonical records are keyed by store-assigned id and ordered by
// (created_at, seq). Provisional records are keyed by client nonce. A
// confirmation carrying a nonce that matches a provisional record replaces
// it in place; a confirmation with no matching provisional inserts
// directly; a provisional whose nonce was already confirmed is dropped.
// Every path is idempotent, so duplicate pushes and re-observed
// confirmations are harmless.
type Coordinator struct {
	mu     sync.Mutex
	logger *zap.Logger

	canonical []model.Message
	byID      map[string]struct{}
	// nonce -> canonical id for confirmed sends, so late provisional
	// duplicates are recognized
	confirmedNonce map[string]string

	pending      map[string]model.Message
	pendingOrder []string
}

// NewCoordinator creates an empty reconciled view.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	return &Coordinator{
		logger:         logger,
		byID:           make(map[string]struct{}),
		confirmedNonce: make(map[string]string),
		pending:        make(map[string]model.Message),
	}
}

// ObservePush handles a frame arriving over the push channel. Canonical
// frames confirm; provisional frames are recorded optimistically.
func (c *Coordinator) ObservePush(f event.Frame) {
	if f.Canonical() {
		c.Confirm(f.Message())
		return
	}
	if f.ClientNonce == "" {
		c.logger.Debug("dropping provisional frame without nonce",
			zap.String("conversation_id", f.ConversationID),
		)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.confirmedNonce[f.ClientNonce]; done {
		return
	}
	if _, exists := c.pending[f.ClientNonce]; exists {
		return
	}

	c.pending[f.ClientNonce] = f.Message()
	c.pendingOrder = append(c.pendingOrder, f.ClientNonce)
}

// Confirm handles a durable-write confirmation, whether it came from the
// sender's own request response, a canonical push frame, or a history
// refetch. Idempotent per message id.
func (c *Coordinator) Confirm(msg model.Message) {
	if msg.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmLocked(msg)
}

func (c *Coordinator) confirmLocked(msg model.Message) {
	if _, seen := c.byID[msg.ID]; seen {
		return
	}

	if msg.ClientNonce != "" {
		c.dropPendingLocked(msg.ClientNonce)
		c.confirmedNonce[msg.ClientNonce] = msg.ID
	}

	idx := sort.Search(len(c.canonical), func(i int) bool {
		return msg.Before(c.canonical[i])
	})
	c.canonical = append(c.canonical, model.Message{})
	copy(c.canonical[idx+1:], c.canonical[idx:])
	c.canonical[idx] = msg
	c.byID[msg.ID] = struct{}{}
}

// Fail removes a provisional record whose durable write was reported
// failed. The caller keeps the original content for retry; there is no
// timeout-based expiry.
func (c *Coordinator) Fail(clientNonce string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPendingLocked(clientNonce)
}

// Resync replaces the canonical view with an authoritative history fetch.
// Provisional records whose nonce appears in the history are confirmed by
// it; the rest are kept pending. Called after reconnect, when any state
// accumulated over the old connection must be treated as stale.
func (c *Coordinator) Resync(history []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.canonical = c.canonical[:0]
	c.byID = make(map[string]struct{})
	c.confirmedNonce = make(map[string]string)

	for _, msg := range history {
		c.confirmLocked(msg)
	}
}

// Snapshot returns the reconciled view: canonical records in store order
// followed by still-pending provisional records in arrival order.
func (c *Coordinator) Snapshot() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, 0, len(c.canonical)+len(c.pendingOrder))
	for _, msg := range c.canonical {
		out = append(out, Record{Message: msg})
	}
	for _, nonce := range c.pendingOrder {
		out = append(out, Record{Message: c.pending[nonce], Pending: true})
	}
	return out
}

// CanonicalMessages returns only the confirmed records in store order.
func (c *Coordinator) CanonicalMessages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Message, len(c.canonical))
	copy(out, c.canonical)
	return out
}

func (c *Coordinator) dropPendingLocked(clientNonce string) {
	if _, ok := c.pending[clientNonce]; !ok {
		return
	}
	delete(c.pending, clientNonce)
	for i, n := range c.pendingOrder {
		if n == clientNonce {
			c.pendingOrder = append(c.pendingOrder[:i], c.pendingOrder[i+1:]...)
			break
		}
	}
}
