package chat

// EventType enumerates engine change notifications.
type EventType string

const (
	// EventConversationUpdated fires when a conversation's derived fields
	// changed during reconciliation. Unchanged conversations are not
	// re-emitted.
	EventConversationUpdated EventType = "conversation_updated"
	// EventMessageNew fires for every appended message, outbound or inbound.
	EventMessageNew EventType = "message_new"
	// EventTyping fires on a typing indicator transition.
	EventTyping EventType = "typing"
	// EventPresence fires on an online flag transition.
	EventPresence EventType = "presence"
)

// Event is a change notification emitted inside the engine's serialization
// boundary, after the mutate -> reconcile step. Sinks must not block.
type Event struct {
	Type           EventType
	ConversationID string

	// Conversation is set for EventConversationUpdated.
	Conversation *Conversation
	// Message is set for EventMessageNew.
	Message *Message

	// ParticipantID, Typing, and Online describe presence transitions.
	ParticipantID string
	Typing        bool
	Online        bool
}

// EventSink receives engine events.
type EventSink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}
