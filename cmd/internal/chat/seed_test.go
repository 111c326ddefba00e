package chat

import (
	"testing"
	"time"
)

func TestLoadOrSeed_EmptyStoreSeedsConcierge(t *testing.T) {
	clock := newFakeClock(testStart)
	store := &stubStore{}
	e, _, _ := newTestEngine(clock, func(cfg *Config) { cfg.Store = store })

	convs := e.Conversations()
	if len(convs) != 1 || convs[0].ID != seedConversationID {
		t.Fatalf("expected the concierge seed conversation, got %+v", convs)
	}

	conv := convs[0]
	if !conv.hasParticipant(ConciergeID) {
		t.Fatalf("seed conversation missing the concierge: %v", conv.ParticipantIDs)
	}
	if conv.UnreadCount != 1 {
		t.Fatalf("seed welcome must be unread, got %d", conv.UnreadCount)
	}
	if conv.LastMessage == nil || conv.LastMessage.Preview != seedWelcome {
		t.Fatalf("seed lastMessage must preview the welcome: %+v", conv.LastMessage)
	}

	msgs := e.Messages(seedConversationID)
	if len(msgs) != 1 || msgs[0].SenderID != ConciergeID {
		t.Fatalf("expected one concierge welcome message, got %+v", msgs)
	}

	// The seeded state was flushed back to the store.
	if store.saveCount() == 0 {
		t.Fatalf("seed must be persisted")
	}
}

func TestLoadOrSeed_BrokenStoreDegradesToSeed(t *testing.T) {
	clock := newFakeClock(testStart)
	store := &stubStore{loadErr: errStoreBroken}
	e, _, _ := newTestEngine(clock, func(cfg *Config) { cfg.Store = store })

	convs := e.Conversations()
	if len(convs) != 1 || convs[0].ID != seedConversationID {
		t.Fatalf("load failure must fall back to the seed set, got %+v", convs)
	}
}

func TestLoadOrSeed_ExistingSnapshotWins(t *testing.T) {
	clock := newFakeClock(testStart)

	persisted := State{
		Conversations: []Conversation{{
			ID:             "c-restored",
			Kind:           KindDirect,
			ParticipantIDs: []string{"viewer-1", "maya-1"},
			Participants: []Participant{
				{ID: "viewer-1", DisplayName: "Alex"},
				{ID: "maya-1", DisplayName: "Maya"},
			},
		}},
		Messages: []Message{{
			ID:             "m-restored",
			ConversationID: "c-restored",
			SenderID:       "maya-1",
			Content:        "welcome back",
			Timestamp:      testStart.UnixMilli(),
			Read:           false,
		}},
	}
	store := &stubStore{state: persisted, hasData: true}
	e, _, _ := newTestEngine(clock, func(cfg *Config) { cfg.Store = store })

	convs := e.Conversations()
	if len(convs) != 1 || convs[0].ID != "c-restored" {
		t.Fatalf("expected restored conversation, got %+v", convs)
	}
	if convs[0].UnreadCount != 1 {
		t.Fatalf("reconcile over restored state must derive unread=1, got %d", convs[0].UnreadCount)
	}
}

func TestSaveFailure_DoesNotRollBack(t *testing.T) {
	clock := newFakeClock(testStart)
	store := &stubStore{saveErr: errStoreBroken}
	e, _, _ := newTestEngine(clock, func(cfg *Config) { cfg.Store = store })

	msg := e.SendMessage(SendInput{CounterpartID: "maya-1", CounterpartName: "Maya", Content: "hi"})

	// Write failed, in-memory state stays authoritative.
	if got := len(e.Messages(msg.ConversationID)); got != 1 {
		t.Fatalf("in-memory state lost after save failure: %d messages", got)
	}
}

func TestNilStore_StartsEmpty(t *testing.T) {
	clock := newFakeClock(testStart)
	e, _, _ := newTestEngine(clock)

	if got := len(e.Conversations()); got != 0 {
		t.Fatalf("no store means no seed, got %d conversations", got)
	}
	if got := e.TotalUnreadCount(); got != 0 {
		t.Fatalf("empty session must have zero unread, got %d", got)
	}
}

func TestSeedState_Shape(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	st := seedState(Identity{ID: "u1", DisplayName: "U"}, now)

	if len(st.Conversations) != 1 || len(st.Messages) != 1 {
		t.Fatalf("unexpected seed shape: %d convs, %d msgs", len(st.Conversations), len(st.Messages))
	}
	m := st.Messages[0]
	if m.ConversationID != st.Conversations[0].ID {
		t.Fatalf("welcome message detached from seed conversation")
	}
	if m.Read || m.Status != StatusDelivered {
		t.Fatalf("welcome must arrive unread/delivered, got read=%v status=%q", m.Read, m.Status)
	}
	if m.Timestamp != now.UnixMilli() {
		t.Fatalf("welcome timestamp mismatch: %d", m.Timestamp)
	}
}
