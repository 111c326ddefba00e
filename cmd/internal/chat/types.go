package chat

// Kind distinguishes direct and group conversations.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// Status is the advisory display state of a message. It is cosmetic: unread
// accounting uses the Read flag, never Status.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

const (
	// GuestID is the sentinel identity used when the identity collaborator
	// provides none. Sends degrade to a guest session instead of failing.
	GuestID = "guest"

	// ConciergeID is the designated non-human participant. It is excluded
	// from presence simulation; its replies arrive through AddMessage from
	// a real backend.
	ConciergeID = "roam-concierge"
)

// Identity describes the viewer as provided by the identity collaborator.
// The engine consumes it read-only.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// Participant is the mutable presence overlay for one conversation member.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Online      bool   `json:"isOnline"`
	Typing      bool   `json:"isTyping"`
}

// LastMessage is a weak reference to the most recent message in a
// conversation. It is derived by the reconciler and never independently
// mutated.
type LastMessage struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
	Preview   string `json:"preview"`
}

// Conversation is a thread container. UnreadCount and LastMessage are
// derived fields owned by the reconciler; callers never author them.
type Conversation struct {
	ID             string        `json:"id"`
	Kind           Kind          `json:"kind"`
	ParticipantIDs []string      `json:"participantIds"`
	Participants   []Participant `json:"participantDetails"`
	Title          string        `json:"title,omitempty"`
	UnreadCount    int           `json:"unreadCount"`
	LastMessage    *LastMessage  `json:"lastMessage,omitempty"`
}

func (c Conversation) clone() Conversation {
	out := c
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	out.Participants = append([]Participant(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return out
}

// hasParticipant reports whether id appears in the participant set.
func (c Conversation) hasParticipant(id string) bool {
	for _, p := range c.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}

// counterpart returns the first participant entry that is not selfID.
func (c Conversation) counterpart(selfID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return Participant{}, false
}

// Pitch is an optional trip-pitch structure embedded in a message. The
// engine carries it as opaque payload metadata and never interprets it.
type Pitch struct {
	Destination string `json:"destination"`
	BudgetTier  string `json:"budgetTier"`
	Duration    string `json:"duration"`
}

// Message is one unit of communication within a conversation. Messages are
// appended on send (or by a responder) and mutated only by read-marking;
// they are never deleted.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	SenderAvatar   string `json:"senderAvatar"`
	RecipientID    string `json:"recipientId,omitempty"`
	Content        string `json:"content"`
	Pitch          *Pitch `json:"pitch,omitempty"`
	// Timestamp is epoch milliseconds, monotonically intended.
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
	Status    Status `json:"status"`
}

// SendInput describes an outbound send request from the UI layer.
type SendInput struct {
	CounterpartID     string
	CounterpartName   string
	CounterpartAvatar string
	Content           string

	// ConversationID, when set, short-circuits find-or-create to a direct
	// lookup.
	ConversationID string

	// Kind defaults to KindDirect when empty.
	Kind Kind

	// Pitch is optional opaque payload metadata.
	Pitch *Pitch
}
