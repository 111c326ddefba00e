package chat

import "sort"

// messageLog owns the message collection: append-only in spirit, with
// read-marking as the single permitted mutation. All methods assume the
// engine's serialization boundary; mutations build a fresh slice so read
// snapshots stay stable.
type messageLog struct {
	msgs []Message
}

func (l *messageLog) append(m Message) {
	l.msgs = append(l.msgs, m)
}

func (l *messageLog) snapshot() []Message {
	return append([]Message(nil), l.msgs...)
}

func (l *messageLog) install(msgs []Message) {
	l.msgs = append([]Message(nil), msgs...)
}

// forConversation returns the conversation's messages ascending by
// Timestamp, ties broken by insertion order. The result is a finite fresh
// slice recomputed per call.
func (l *messageLog) forConversation(conversationID string) []Message {
	var out []Message
	for _, m := range l.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// markRead flips Read on every message in the conversation not sent by
// selfID. It returns the number of messages flipped; zero means the call was
// a no-op and observable state is unchanged (idempotence).
func (l *messageLog) markRead(conversationID, selfID string) int {
	changed := 0
	for _, m := range l.msgs {
		if m.ConversationID == conversationID && m.SenderID != selfID && !m.Read {
			changed++
		}
	}
	if changed == 0 {
		return 0
	}

	next := make([]Message, len(l.msgs))
	copy(next, l.msgs)
	for i := range next {
		if next[i].ConversationID == conversationID && next[i].SenderID != selfID {
			next[i].Read = true
		}
	}
	l.msgs = next
	return changed
}

// unread counts messages in the conversation that are unread and not
// authored by selfID.
func (l *messageLog) unread(conversationID, selfID string) int {
	n := 0
	for _, m := range l.msgs {
		if m.ConversationID == conversationID && !m.Read && m.SenderID != selfID {
			n++
		}
	}
	return n
}

// latest returns the conversation's message with the maximum Timestamp,
// later insertion winning ties.
func (l *messageLog) latest(conversationID string) (Message, bool) {
	var (
		best  Message
		found bool
	)
	for _, m := range l.msgs {
		if m.ConversationID != conversationID {
			continue
		}
		if !found || m.Timestamp >= best.Timestamp {
			best = m
			found = true
		}
	}
	return best, found
}
