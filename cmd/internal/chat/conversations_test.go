package chat

import (
	"testing"
	"time"
)

func alwaysOnline() bool { return true }

func TestConversationSet_FindOrCreate(t *testing.T) {
	self := Identity{ID: "self", DisplayName: "Self"}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("direct creates then dedupes", func(t *testing.T) {
		s := newConversationSet()

		c1, created := s.findOrCreate(SendInput{CounterpartID: "maya", CounterpartName: "Maya"}, self, now, alwaysOnline)
		if !created {
			t.Fatalf("first direct send must create")
		}
		if c1.Kind != KindDirect || !c1.hasParticipant("maya") || !c1.hasParticipant("self") {
			t.Fatalf("unexpected conversation: %+v", c1)
		}

		c2, created := s.findOrCreate(SendInput{CounterpartID: "maya"}, self, now.Add(time.Minute), alwaysOnline)
		if created || c2.ID != c1.ID {
			t.Fatalf("second direct send must dedupe: created=%v id=%q want=%q", created, c2.ID, c1.ID)
		}
	})

	t.Run("explicit id wins", func(t *testing.T) {
		s := newConversationSet()
		c1, _ := s.findOrCreate(SendInput{CounterpartID: "maya"}, self, now, alwaysOnline)

		c2, created := s.findOrCreate(SendInput{
			CounterpartID:  "ben",
			ConversationID: c1.ID,
		}, self, now, alwaysOnline)
		if created || c2.ID != c1.ID {
			t.Fatalf("explicit id must short-circuit: created=%v id=%q", created, c2.ID)
		}
	})

	t.Run("unknown explicit id falls through", func(t *testing.T) {
		s := newConversationSet()

		c, created := s.findOrCreate(SendInput{
			CounterpartID:  "maya",
			ConversationID: "ghost",
		}, self, now, alwaysOnline)
		if !created {
			t.Fatalf("unknown explicit id must fall through to create")
		}
		if c.ID == "ghost" {
			t.Fatalf("fallthrough must mint a fresh id")
		}
	})

	t.Run("group id is the group identity", func(t *testing.T) {
		s := newConversationSet()

		c, created := s.findOrCreate(SendInput{
			CounterpartID:   "trip-gang",
			CounterpartName: "Trip Gang",
			Kind:            KindGroup,
		}, self, now, alwaysOnline)
		if !created || c.ID != "trip-gang" || c.Title != "Trip Gang" {
			t.Fatalf("unexpected group conversation: %+v", c)
		}
		if len(c.ParticipantIDs) != 1 || c.ParticipantIDs[0] != "self" {
			t.Fatalf("group must start with self only: %v", c.ParticipantIDs)
		}

		again, created := s.findOrCreate(SendInput{CounterpartID: "trip-gang", Kind: KindGroup}, self, now, alwaysOnline)
		if created || again.ID != "trip-gang" {
			t.Fatalf("group resend must reuse the thread")
		}
	})
}

func TestConversationSet_InstallDedupes(t *testing.T) {
	s := newConversationSet()
	s.install([]Conversation{
		{ID: "c1", Kind: KindDirect},
		{ID: "c2", Kind: KindDirect},
		{ID: "c1", Kind: KindGroup},
	})

	if got := len(s.snapshot()); got != 2 {
		t.Fatalf("expected corrupt duplicate dropped, got %d conversations", got)
	}
	if c, _ := s.get("c1"); c.Kind != KindDirect {
		t.Fatalf("first occurrence must win, got kind %q", c.Kind)
	}
}

func TestConversationSet_SnapshotIsolation(t *testing.T) {
	s := newConversationSet()
	s.put(Conversation{ID: "c1", ParticipantIDs: []string{"a"}})

	snap := s.snapshot()
	snap[0].ParticipantIDs[0] = "mutated"

	if c, _ := s.get("c1"); c.ParticipantIDs[0] != "a" {
		t.Fatalf("snapshot mutation leaked into the set")
	}
}
