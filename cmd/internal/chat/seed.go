package chat

import "time"

// Seed identity shown to fresh installs.
const (
	conciergeName   = "Roam Concierge"
	conciergeAvatar = "avatars/concierge.png"

	seedConversationID = "conv-" + ConciergeID
	seedWelcome        = "Welcome to Roam! I can help you find trips, plan routes, and connect with travel buddies. Ask me anything."
)

// seedState is the built-in fallback used when the snapshot store has no
// snapshot or an unreadable one. A fresh install shows the concierge thread
// instead of an empty inbox.
func seedState(self Identity, now time.Time) State {
	conv := Conversation{
		ID:             seedConversationID,
		Kind:           KindDirect,
		ParticipantIDs: []string{self.ID, ConciergeID},
		Participants: []Participant{
			{ID: self.ID, DisplayName: self.DisplayName, Avatar: self.Avatar, Online: true},
			{ID: ConciergeID, DisplayName: conciergeName, Avatar: conciergeAvatar, Online: true},
		},
	}

	welcome := Message{
		ID:             NewMessageID(now),
		ConversationID: conv.ID,
		SenderID:       ConciergeID,
		SenderName:     conciergeName,
		SenderAvatar:   conciergeAvatar,
		RecipientID:    self.ID,
		Content:        seedWelcome,
		Timestamp:      now.UnixMilli(),
		Read:           false,
		Status:         StatusDelivered,
	}

	return State{
		Conversations: []Conversation{conv},
		Messages:      []Message{welcome},
	}
}
