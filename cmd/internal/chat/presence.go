package chat

import (
	"time"

	"roam/cmd/internal/notify"
)

// Responder reacts to an accepted outbound message in an eligible direct
// conversation. The default implementation is the timer-driven presence
// simulator; a real presence transport can replace it behind this interface
// without touching the stores.
//
// MessageSent and Close are invoked inside the engine's serialization
// boundary.
type Responder interface {
	MessageSent(conv Conversation, msg Message)
	Close()
}

const (
	// Transition offsets relative to the triggering send.
	typingDelay = 1 * time.Second
	replyDelay  = 3 * time.Second
)

// simulatedReply is the canned content of every synthetic counterpart reply.
const simulatedReply = "That sounds amazing! Let me check my dates and get back to you."

// simulator drives the Idle -> Typing -> Idle chain per conversation and
// appends the synthetic reply at the final transition.
//
// One chain per conversation: re-arming cancels the previous chain, so a
// burst of sends inside the reply window produces a single reply and no
// overlapping typing flips. Chains are owned by the engine and cancelled on
// Close; no timer outlives the session.
//
// All simulator state is guarded by the engine mutex: entry points are
// called with it held, and timer callbacks acquire it before touching
// chains.
type simulator struct {
	engine *Engine

	chains map[string]*replyChain
	closed bool
}

type replyChain struct {
	counterpart Participant
	typingTimer Timer
	replyTimer  Timer
}

func (c *replyChain) stop() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	if c.replyTimer != nil {
		c.replyTimer.Stop()
	}
}

func newSimulator(e *Engine) *simulator {
	return &simulator{engine: e, chains: make(map[string]*replyChain)}
}

// MessageSent arms (or re-arms) the typing/reply chain for the conversation.
func (s *simulator) MessageSent(conv Conversation, _ Message) {
	if s.closed {
		return
	}
	counterpart, ok := conv.counterpart(s.engine.self.ID)
	if !ok {
		return
	}

	if prev, exists := s.chains[conv.ID]; exists {
		prev.stop()
	}

	convID := conv.ID
	ch := &replyChain{counterpart: counterpart}
	ch.typingTimer = s.engine.clock.AfterFunc(typingDelay, func() { s.typingStep(convID) })
	ch.replyTimer = s.engine.clock.AfterFunc(replyDelay, func() { s.replyStep(convID) })
	s.chains[convID] = ch
}

// Close cancels every outstanding chain. Called with the engine lock held.
func (s *simulator) Close() {
	s.closed = true
	for id, ch := range s.chains {
		ch.stop()
		delete(s.chains, id)
	}
}

func (s *simulator) typingStep(conversationID string) {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := s.chains[conversationID]
	if s.closed || e.closed || ch == nil {
		return
	}
	e.setTypingLocked(conversationID, ch.counterpart.ID, true)
}

func (s *simulator) replyStep(conversationID string) {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := s.chains[conversationID]
	if s.closed || e.closed || ch == nil {
		return
	}
	delete(s.chains, conversationID)

	e.setTypingLocked(conversationID, ch.counterpart.ID, false)

	now := e.clock.Now()
	reply := Message{
		ID:             NewMessageID(now),
		ConversationID: conversationID,
		SenderID:       ch.counterpart.ID,
		SenderName:     ch.counterpart.DisplayName,
		SenderAvatar:   ch.counterpart.Avatar,
		RecipientID:    e.self.ID,
		Content:        simulatedReply,
		Timestamp:      now.UnixMilli(),
		Read:           false,
		// The counterpart has already seen the thread from their side.
		Status: StatusRead,
	}

	e.msgs.append(reply)
	metricRepliesSimulated.Inc()
	e.log.Info("presence.reply", "conversation_id", conversationID, "message_id", reply.ID)

	e.afterMutationLocked()
	e.publishMessageLocked(reply)

	e.notifier.Notify(notify.Notification{
		Type:        "message",
		Title:       ch.counterpart.DisplayName,
		Message:     reply.Content,
		RelatedID:   conversationID,
		RelatedType: "conversation",
	})
}
