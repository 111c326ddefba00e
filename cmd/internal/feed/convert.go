package feed

import (
	"roam/cmd/internal/chat"
	v1 "roam/shared/contracts/feed/v1"
)

func toWireConversation(c chat.Conversation) v1.Conversation {
	out := v1.Conversation{
		ID:             c.ID,
		Kind:           string(c.Kind),
		ParticipantIDs: append([]string(nil), c.ParticipantIDs...),
		Participants:   make([]v1.Participant, 0, len(c.Participants)),
		Title:          c.Title,
		UnreadCount:    c.UnreadCount,
	}
	for _, p := range c.Participants {
		out.Participants = append(out.Participants, v1.Participant{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Online:      p.Online,
			Typing:      p.Typing,
		})
	}
	if c.LastMessage != nil {
		out.LastMessage = &v1.LastMessage{
			MessageID: c.LastMessage.MessageID,
			Timestamp: c.LastMessage.Timestamp,
			Preview:   c.LastMessage.Preview,
		}
	}
	return out
}

func toWireMessage(m chat.Message) v1.Message {
	out := v1.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderAvatar:   m.SenderAvatar,
		RecipientID:    m.RecipientID,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		Read:           m.Read,
		Status:         string(m.Status),
	}
	if m.Pitch != nil {
		out.Pitch = &v1.Pitch{
			Destination: m.Pitch.Destination,
			BudgetTier:  m.Pitch.BudgetTier,
			Duration:    m.Pitch.Duration,
		}
	}
	return out
}

func fromWirePitch(p *v1.Pitch) *chat.Pitch {
	if p == nil {
		return nil
	}
	return &chat.Pitch{
		Destination: p.Destination,
		BudgetTier:  p.BudgetTier,
		Duration:    p.Duration,
	}
}
