package chat

// reconcile recomputes every conversation's derived fields from the raw
// message log and returns clones of the conversations whose derived fields
// actually changed. Unchanged conversations are not re-emitted, so
// downstream sinks see a diffed stream.
//
// Quirk, kept on purpose: a conversation with zero messages keeps its
// previously known LastMessage instead of having it cleared. Seeded
// conversation rows keep their preview text until a real message arrives.
func reconcile(convs *conversationSet, log *messageLog, selfID string) []Conversation {
	var changed []Conversation

	for _, id := range convs.order {
		c := convs.byID[id]

		unread := log.unread(id, selfID)

		last := c.LastMessage
		if m, ok := log.latest(id); ok {
			last = &LastMessage{MessageID: m.ID, Timestamp: m.Timestamp, Preview: m.Content}
		}

		if unread == c.UnreadCount && sameLastMessage(c.LastMessage, last) {
			continue
		}

		c.UnreadCount = unread
		c.LastMessage = last
		convs.byID[id] = c
		changed = append(changed, c.clone())
	}

	return changed
}

func sameLastMessage(a, b *LastMessage) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
