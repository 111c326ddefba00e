// Package v1 defines the Roam feed protocol v1 contract.
//
// The feed is the dispatch surface between the chat engine and the app shell:
// UI commands go in, engine events come out. It is intentionally stable and
// dependency-light so server and shell clients share one authoritative shape.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the session handshake (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeMessageSend requests an outbound send through the engine (client -> server).
	TypeMessageSend = "message_send"
	// TypeMessageAdd appends an externally-sourced message to an existing
	// conversation, bypassing find-or-create and simulation (client -> server).
	TypeMessageAdd = "message_add"
	// TypeMarkRead marks a conversation's inbound messages read (client -> server).
	TypeMarkRead = "mark_read"
	// TypeTypingSet flips the counterpart typing indicator (client -> server).
	TypeTypingSet = "typing_set"
	// TypePresenceSet flips an identity's online flag (client -> server).
	TypePresenceSet = "presence_set"

	// TypeConversationList requests the conversation snapshot (client -> server).
	TypeConversationList = "conversation_list"
	// TypeConversationListResult returns the conversation snapshot (server -> client).
	TypeConversationListResult = "conversation_list_result"
	// TypeMessageList requests one conversation's ordered messages (client -> server).
	TypeMessageList = "message_list"
	// TypeMessageListResult returns one conversation's ordered messages (server -> client).
	TypeMessageListResult = "message_list_result"

	// TypeConversationUpdated pushes a conversation whose derived fields changed (server -> client).
	TypeConversationUpdated = "conversation_updated"
	// TypeMessageNew pushes a newly appended message (server -> client).
	TypeMessageNew = "message_new"
	// TypeTyping pushes a typing indicator transition (server -> client).
	TypeTyping = "typing"
	// TypePresence pushes an online flag transition (server -> client).
	TypePresence = "presence"
	// TypeNotification pushes a fire-and-forget notification summary (server -> client).
	TypeNotification = "notification"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeMessageSend,
		TypeMessageAdd,
		TypeMarkRead,
		TypeTypingSet,
		TypePresenceSet,
		TypeConversationList,
		TypeConversationListResult,
		TypeMessageList,
		TypeMessageListResult,
		TypeConversationUpdated,
		TypeMessageNew,
		TypeTyping,
		TypePresence,
		TypeNotification,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Wire models ----

// Participant is the presence overlay entry for one conversation member.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Online      bool   `json:"isOnline"`
	Typing      bool   `json:"isTyping"`
}

// LastMessage is the weak reference to a conversation's most recent message.
type LastMessage struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
	Preview   string `json:"preview"`
}

// Conversation mirrors the engine's conversation shape on the wire.
// UnreadCount and LastMessage are server-derived; clients never author them.
type Conversation struct {
	ID             string        `json:"id"`
	Kind           string        `json:"kind"`
	ParticipantIDs []string      `json:"participantIds"`
	Participants   []Participant `json:"participantDetails"`
	Title          string        `json:"title,omitempty"`
	UnreadCount    int           `json:"unreadCount"`
	LastMessage    *LastMessage  `json:"lastMessage,omitempty"`
}

// Pitch is the optional embedded trip-pitch payload, carried opaquely.
type Pitch struct {
	Destination string `json:"destination"`
	BudgetTier  string `json:"budgetTier"`
	Duration    string `json:"duration"`
}

// Message mirrors the engine's message shape on the wire.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	SenderAvatar   string `json:"senderAvatar"`
	RecipientID    string `json:"recipientId,omitempty"`
	Content        string `json:"content"`
	Pitch          *Pitch `json:"pitch,omitempty"`
	Timestamp      int64  `json:"timestamp"`
	Read           bool   `json:"read"`
	Status         string `json:"status"`
}

// ---- Payloads ----

// HelloPayload is sent by the client to initiate a session.
type HelloPayload struct{}

// HelloAckPayload carries the session id assigned by the server.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// MessageSendPayload requests an outbound send.
// ConversationID is optional; when empty the engine resolves the target by
// counterpart (direct) or group identity per its deduplication rules.
type MessageSendPayload struct {
	CounterpartID     string `json:"counterpart_id"`
	CounterpartName   string `json:"counterpart_name"`
	CounterpartAvatar string `json:"counterpart_avatar,omitempty"`
	Content           string `json:"content"`
	ConversationID    string `json:"conversation_id,omitempty"`
	Kind              string `json:"kind,omitempty"`
	Pitch             *Pitch `json:"pitch,omitempty"`
}

// MessageAddPayload appends an externally-sourced message.
type MessageAddPayload struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	SenderAvatar   string `json:"sender_avatar,omitempty"`
	Content        string `json:"content"`
}

// MarkReadPayload marks a conversation read for the viewer.
type MarkReadPayload struct {
	ConversationID string `json:"conversation_id"`
}

// TypingSetPayload flips the counterpart typing indicator for a conversation.
type TypingSetPayload struct {
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// PresenceSetPayload flips an identity's online flag across conversations.
type PresenceSetPayload struct {
	ParticipantID string `json:"participant_id"`
	Online        bool   `json:"online"`
}

// ConversationListPayload requests the conversation snapshot.
type ConversationListPayload struct{}

// ConversationListResultPayload returns the conversation snapshot plus the
// aggregate unread count so shells can badge without re-summing.
type ConversationListResultPayload struct {
	Conversations []Conversation `json:"conversations"`
	TotalUnread   int            `json:"total_unread"`
}

// MessageListPayload requests one conversation's messages.
type MessageListPayload struct {
	ConversationID string `json:"conversation_id"`
}

// MessageListResultPayload returns messages ascending by timestamp.
type MessageListResultPayload struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// ConversationUpdatedPayload pushes a conversation with fresh derived fields.
type ConversationUpdatedPayload struct {
	Conversation Conversation `json:"conversation"`
}

// MessageNewPayload pushes a newly appended message.
type MessageNewPayload struct {
	Message Message `json:"message"`
}

// TypingPayload pushes a typing indicator transition.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	ParticipantID  string `json:"participant_id"`
	Typing         bool   `json:"typing"`
}

// PresencePayload pushes an online flag transition.
type PresencePayload struct {
	ConversationID string `json:"conversation_id"`
	ParticipantID  string `json:"participant_id"`
	Online         bool   `json:"online"`
}

// NotificationPayload pushes a notification summary for the shell to render.
type NotificationPayload struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	RelatedID   string `json:"related_id,omitempty"`
	RelatedType string `json:"related_type,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
