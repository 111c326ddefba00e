package chat

import "time"

// conversationSet owns the conversation collection. All methods assume the
// engine's serialization boundary. Mutations replace whole Conversation
// values rather than editing shared memory, so snapshots handed to readers
// never observe a partial update.
type conversationSet struct {
	order []string
	byID  map[string]Conversation
}

func newConversationSet() conversationSet {
	return conversationSet{byID: make(map[string]Conversation)}
}

func (s *conversationSet) get(id string) (Conversation, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// put installs a conversation value, registering it in iteration order on
// first sight.
func (s *conversationSet) put(c Conversation) {
	if _, ok := s.byID[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.byID[c.ID] = c
}

// findDirectWith returns the direct conversation whose participants include
// participantID. At most one such conversation exists per counterpart.
func (s *conversationSet) findDirectWith(participantID string) (Conversation, bool) {
	for _, id := range s.order {
		c := s.byID[id]
		if c.Kind == KindDirect && c.hasParticipant(participantID) {
			return c, true
		}
	}
	return Conversation{}, false
}

func (s *conversationSet) snapshot() []Conversation {
	out := make([]Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].clone())
	}
	return out
}

func (s *conversationSet) install(convs []Conversation) {
	s.order = s.order[:0]
	s.byID = make(map[string]Conversation, len(convs))
	for _, c := range convs {
		// Dedup defensively: a corrupt snapshot must not break the
		// one-conversation-per-id invariant.
		if _, ok := s.byID[c.ID]; ok {
			continue
		}
		s.put(c.clone())
	}
}

// findOrCreate resolves the conversation for an outbound send.
//
// Resolution order:
//  1. an explicit ConversationID wins when it exists;
//  2. direct sends dedupe on the counterpart: at most one direct
//     conversation per unordered {self, counterpart} pair;
//  3. group sends use the group identity as the conversation id.
//
// There is no failure mode: unknown explicit ids fall through to the
// kind-specific rules.
func (s *conversationSet) findOrCreate(in SendInput, self Identity, now time.Time, online func() bool) (Conversation, bool) {
	if in.ConversationID != "" {
		if c, ok := s.get(in.ConversationID); ok {
			return c, false
		}
	}

	if in.Kind == KindGroup {
		if c, ok := s.get(in.CounterpartID); ok {
			return c, false
		}
		c := Conversation{
			ID:             in.CounterpartID,
			Kind:           KindGroup,
			ParticipantIDs: []string{self.ID},
			Participants: []Participant{
				{ID: self.ID, DisplayName: self.DisplayName, Avatar: self.Avatar, Online: true},
			},
			Title: in.CounterpartName,
		}
		s.put(c)
		return c, true
	}

	if c, ok := s.findDirectWith(in.CounterpartID); ok {
		return c, false
	}

	c := Conversation{
		ID:             NewConversationID(now),
		Kind:           KindDirect,
		ParticipantIDs: []string{self.ID, in.CounterpartID},
		Participants: []Participant{
			{ID: self.ID, DisplayName: self.DisplayName, Avatar: self.Avatar, Online: true},
			{
				ID:          in.CounterpartID,
				DisplayName: in.CounterpartName,
				Avatar:      in.CounterpartAvatar,
				// Cosmetic: counterpart presence at creation is randomized.
				Online: online(),
			},
		},
	}
	s.put(c)
	return c, true
}
