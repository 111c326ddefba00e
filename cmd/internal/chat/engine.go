// Package chat implements the conversation and message synchronization
// engine: conversation deduplication, the append-only message log, derived
// unread/last-message reconciliation, and the timer-driven counterpart
// presence simulation.
//
// Concurrency model: one mutex serializes both collections. Every operation
// runs mutate -> reconcile -> persist -> notify inside that boundary, so no
// reader observes a partial update and the reconciler never races a
// concurrent append. The only asynchrony is the responder's timer chain,
// whose callbacks re-enter through the same boundary.
package chat

import (
	"context"
	"log/slog"
	mrand "math/rand/v2"
	"os"
	"sync"

	"roam/cmd/internal/notify"
)

// Config wires an Engine. Zero fields fall back to safe defaults; only Self
// is commonly required.
type Config struct {
	// Self is the viewer identity. An empty ID degrades to the guest
	// sentinel rather than failing.
	Self Identity

	Log   *slog.Logger
	Clock Clock

	// Store is the snapshot persistence backend. Nil disables durability
	// and seeding: the session is purely in-memory and starts empty.
	Store SnapshotStore

	// Notifier consumes new-inbound-message summaries.
	Notifier notify.Dispatcher

	// Sink receives engine events. Must not block.
	Sink EventSink

	// Responder reacts to eligible outbound sends. Nil installs the
	// built-in presence simulator.
	Responder Responder
}

// Engine owns the two shared collections and all operations over them.
type Engine struct {
	log      *slog.Logger
	self     Identity
	clock    Clock
	store    SnapshotStore
	notifier notify.Dispatcher
	sink     EventSink

	// online randomizes the counterpart presence flag at direct
	// conversation creation. Cosmetic simulation detail.
	online func() bool

	mu        sync.Mutex
	convs     conversationSet
	msgs      messageLog
	responder Responder
	closed    bool
}

// NewEngine constructs an engine and loads state from the snapshot store,
// falling back to the built-in seed set when the store is empty or
// unreadable.
func NewEngine(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	self := cfg.Self
	if self.ID == "" {
		// Documented degradation: no identity means a guest session, not
		// an error.
		self = Identity{ID: GuestID, DisplayName: "Guest"}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}

	e := &Engine{
		log:      log,
		self:     self,
		clock:    clock,
		store:    cfg.Store,
		notifier: notifier,
		sink:     sink,
		online:   func() bool { return mrand.IntN(2) == 0 },
		convs:    newConversationSet(),
	}

	e.responder = cfg.Responder
	if e.responder == nil {
		e.responder = newSimulator(e)
	}

	e.loadOrSeed(context.Background())
	return e
}

// Self returns the viewer identity the engine was built with.
func (e *Engine) Self() Identity { return e.self }

// loadOrSeed installs persisted state, or the seed set when the store is
// absent, empty, or unreadable. A decode failure is logged and degraded, not
// surfaced.
func (e *Engine) loadOrSeed(ctx context.Context) {
	if e.store == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok, err := e.store.Load(ctx)
	if err != nil {
		e.log.Error("persist.load.fail", "err", err)
		ok = false
	}
	if !ok {
		st = seedState(e.self, e.clock.Now())
		e.log.Info("engine.seed", "conversations", len(st.Conversations), "messages", len(st.Messages))
	}

	e.convs.install(st.Conversations)
	e.msgs.install(st.Messages)

	// Derive unread/last-message over whatever was loaded so invariants
	// hold from the first observation point.
	e.afterMutationLocked()
}

// SendMessage resolves or creates the target conversation, appends the
// outbound message, reconciles, and arms the responder when the counterpart
// is an eligible simulated human. It never fails; absent identity degrades
// to the guest sentinel upstream.
func (e *Engine) SendMessage(in SendInput) Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Message{}
	}
	if in.Kind == "" {
		in.Kind = KindDirect
	}

	now := e.clock.Now()
	conv, created := e.convs.findOrCreate(in, e.self, now, e.online)

	msg := Message{
		ID:             NewMessageID(now),
		ConversationID: conv.ID,
		SenderID:       e.self.ID,
		SenderName:     e.self.DisplayName,
		SenderAvatar:   e.self.Avatar,
		Content:        in.Content,
		Pitch:          in.Pitch,
		Timestamp:      now.UnixMilli(),
		Read:           true,
		Status:         StatusSent,
	}
	if conv.Kind == KindDirect {
		if cp, ok := conv.counterpart(e.self.ID); ok {
			msg.RecipientID = cp.ID
		}
	}

	e.msgs.append(msg)
	metricMessagesSent.Inc()
	e.log.Info("engine.send",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"kind", string(conv.Kind),
		"created", created,
	)

	e.afterMutationLocked()
	e.publishMessageLocked(msg)

	if cp, ok := conv.counterpart(e.self.ID); ok &&
		conv.Kind == KindDirect && cp.ID != e.self.ID && cp.ID != ConciergeID {
		e.responder.MessageSent(conv.clone(), msg)
	}

	return msg
}

// AddMessage appends an externally-sourced message to an existing
// conversation, bypassing find-or-create and the responder. Unknown
// conversation ids are a silent no-op (absent, not an error).
func (e *Engine) AddMessage(conversationID, senderID, senderName, senderAvatar, content string) (Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Message{}, false
	}
	conv, ok := e.convs.get(conversationID)
	if !ok {
		return Message{}, false
	}

	now := e.clock.Now()
	inbound := senderID != e.self.ID
	msg := Message{
		ID:             NewMessageID(now),
		ConversationID: conv.ID,
		SenderID:       senderID,
		SenderName:     senderName,
		SenderAvatar:   senderAvatar,
		Content:        content,
		Timestamp:      now.UnixMilli(),
		Read:           !inbound,
		Status:         StatusDelivered,
	}
	if conv.Kind == KindDirect && inbound {
		msg.RecipientID = e.self.ID
	}

	e.msgs.append(msg)
	e.afterMutationLocked()
	e.publishMessageLocked(msg)

	if inbound {
		e.notifier.Notify(notify.Notification{
			Type:        "message",
			Title:       senderName,
			Message:     content,
			RelatedID:   conv.ID,
			RelatedType: "conversation",
		})
	}

	return msg, true
}

// MarkAsRead flips Read on the conversation's inbound messages. Idempotent:
// a repeated call changes nothing and emits nothing.
func (e *Engine) MarkAsRead(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if _, ok := e.convs.get(conversationID); !ok {
		return
	}
	if e.msgs.markRead(conversationID, e.self.ID) == 0 {
		return
	}

	e.log.Debug("engine.mark_read", "conversation_id", conversationID)
	e.afterMutationLocked()
}

// SetTypingStatus flips the typing indicator on every non-self participant
// of the conversation. Used by external sources (e.g. a backend-driven
// concierge); the built-in simulator drives the same path internally.
func (e *Engine) SetTypingStatus(conversationID string, typing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	conv, ok := e.convs.get(conversationID)
	if !ok {
		return
	}
	for _, p := range conv.Participants {
		if p.ID == e.self.ID {
			continue
		}
		e.setTypingLocked(conversationID, p.ID, typing)
	}
}

// UpdatePresence flips the online flag for identity wherever it
// participates.
func (e *Engine) UpdatePresence(identity string, online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	touched := false
	for _, id := range e.convs.order {
		conv := e.convs.byID[id]
		for i, p := range conv.Participants {
			if p.ID != identity || p.Online == online {
				continue
			}
			next := conv.clone()
			next.Participants[i].Online = online
			e.convs.put(next)
			touched = true
			e.sink.Publish(Event{
				Type:           EventPresence,
				ConversationID: conv.ID,
				ParticipantID:  identity,
				Online:         online,
			})
			break
		}
	}
	if touched {
		e.persistLocked()
	}
}

// GetConversation returns the direct conversation containing participantID,
// or ok=false when absent.
func (e *Engine) GetConversation(participantID string) (Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.convs.findDirectWith(participantID)
	if !ok {
		return Conversation{}, false
	}
	return c.clone(), true
}

// ConversationByID returns the conversation with that id, or ok=false.
func (e *Engine) ConversationByID(id string) (Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.convs.get(id)
	if !ok {
		return Conversation{}, false
	}
	return c.clone(), true
}

// Conversations returns a snapshot of all conversations in creation order.
func (e *Engine) Conversations() []Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convs.snapshot()
}

// Messages returns the conversation's messages ascending by timestamp, ties
// broken by insertion order. The slice is freshly computed per call.
func (e *Engine) Messages(conversationID string) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msgs.forConversation(conversationID)
}

// TotalUnreadCount sums unread counts over all conversations.
func (e *Engine) TotalUnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalUnreadLocked()
}

// Close cancels outstanding responder chains and flushes a final snapshot.
// The snapshot store itself is owned by the caller and closed there.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.responder.Close()
	e.persistLocked()
	e.log.Info("engine.closed")
}

// ---- internals (engine lock held) ----

// afterMutationLocked is the fixed post-mutation sequence: reconcile the
// derived fields, persist best-effort, then emit diffed conversation
// updates.
func (e *Engine) afterMutationLocked() {
	changed := reconcile(&e.convs, &e.msgs, e.self.ID)
	e.persistLocked()
	for i := range changed {
		c := changed[i]
		e.sink.Publish(Event{
			Type:           EventConversationUpdated,
			ConversationID: c.ID,
			Conversation:   &c,
		})
	}
	metricUnreadTotal.Set(float64(e.totalUnreadLocked()))
}

// persistLocked snapshots both collections to the store. A write failure
// degrades durability to best-effort for the session: it is logged, nothing
// rolls back, and in-memory state stays authoritative.
func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}
	st := State{Conversations: e.convs.snapshot(), Messages: e.msgs.snapshot()}
	if err := e.store.Save(context.Background(), st); err != nil {
		e.log.Error("persist.save.fail", "err", err)
	}
}

func (e *Engine) publishMessageLocked(msg Message) {
	m := msg
	e.sink.Publish(Event{
		Type:           EventMessageNew,
		ConversationID: msg.ConversationID,
		Message:        &m,
	})
}

// setTypingLocked flips one participant's typing flag and publishes the
// transition. Typing is ephemeral presence overlay and is not persisted.
func (e *Engine) setTypingLocked(conversationID, participantID string, typing bool) {
	conv, ok := e.convs.get(conversationID)
	if !ok {
		return
	}
	for i, p := range conv.Participants {
		if p.ID != participantID || p.Typing == typing {
			continue
		}
		next := conv.clone()
		next.Participants[i].Typing = typing
		e.convs.put(next)
		e.sink.Publish(Event{
			Type:           EventTyping,
			ConversationID: conversationID,
			ParticipantID:  participantID,
			Typing:         typing,
		})
		return
	}
}

func (e *Engine) totalUnreadLocked() int {
	total := 0
	for _, id := range e.convs.order {
		total += e.convs.byID[id].UnreadCount
	}
	return total
}
