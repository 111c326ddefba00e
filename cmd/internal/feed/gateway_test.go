package feed

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"roam/cmd/internal/chat"
	"roam/cmd/internal/notify"
	v1 "roam/shared/contracts/feed/v1"
)

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name           string
		origin         string
		originRequired bool
		allowed        []string
		wantErr        bool
	}{
		{name: "missing origin rejected when required", origin: "", originRequired: true, allowed: []string{"http://localhost"}, wantErr: true},
		{name: "missing origin allowed when optional", origin: "", originRequired: false, allowed: []string{"http://localhost"}, wantErr: false},
		{name: "exact match", origin: "http://localhost", originRequired: true, allowed: []string{"http://localhost"}, wantErr: false},
		{name: "host match ignores port", origin: "http://localhost:3000", originRequired: true, allowed: []string{"http://localhost"}, wantErr: false},
		{name: "foreign origin rejected", origin: "http://evil.example", originRequired: true, allowed: []string{"http://localhost"}, wantErr: true},
		{name: "wildcard honored when explicit", origin: "http://anything.example", originRequired: true, allowed: []string{"*"}, wantErr: false},
		{name: "empty allowlist rejects", origin: "http://localhost", originRequired: true, allowed: nil, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := &Gateway{
				log:            testLogger(),
				originRequired: tc.originRequired,
				allowedOrigins: tc.allowed,
			}

			r := httptest.NewRequest("GET", "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}

			err := g.enforceOrigin(r)
			if tc.wantErr && err == nil {
				t.Fatalf("expected rejection")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected acceptance, got %v", err)
			}
		})
	}
}

func TestOriginHostOnly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost", "localhost"},
		{"http://localhost:3000", "localhost"},
		{"https://App.Example.com:443", "app.example.com"},
		{"localhost:8080", "localhost"},
		{"LOCALHOST", "localhost"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := originHostOnly(tc.in); got != tc.want {
			t.Fatalf("originHostOnly(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatternsFromAllowedOrigins([]string{
		"http://localhost",
		"http://localhost:3000",
		"http://127.0.0.1",
		"*",
		"",
	})

	want := []string{"127.0.0.1", "localhost"}
	if len(got) != len(want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns = %v, want %v", got, want)
		}
	}
}

func TestGatewayPublish_MapsEngineEvents(t *testing.T) {
	t.Parallel()

	g := NewGateway(testLogger(), NewHub(testLogger()))
	c := NewClient("session-a", 16)
	g.hub.Join(c)

	conv := chat.Conversation{ID: "c1", Kind: chat.KindDirect, UnreadCount: 2}
	msg := chat.Message{ID: "m1", ConversationID: "c1", SenderID: "maya", Content: "hi"}

	g.Publish(chat.Event{Type: chat.EventConversationUpdated, ConversationID: "c1", Conversation: &conv})
	g.Publish(chat.Event{Type: chat.EventMessageNew, ConversationID: "c1", Message: &msg})
	g.Publish(chat.Event{Type: chat.EventTyping, ConversationID: "c1", ParticipantID: "maya", Typing: true})
	g.Publish(chat.Event{Type: chat.EventPresence, ConversationID: "c1", ParticipantID: "maya", Online: true})

	// Nil payload carriers are dropped, not broadcast.
	g.Publish(chat.Event{Type: chat.EventConversationUpdated, ConversationID: "c1"})
	g.Publish(chat.Event{Type: chat.EventMessageNew, ConversationID: "c1"})

	wantTypes := []string{
		v1.TypeConversationUpdated,
		v1.TypeMessageNew,
		v1.TypeTyping,
		v1.TypePresence,
	}
	if got := len(c.Send); got != len(wantTypes) {
		t.Fatalf("expected %d envelopes, got %d", len(wantTypes), got)
	}

	for _, want := range wantTypes {
		env := <-c.Send
		if env.Type != want {
			t.Fatalf("unexpected envelope type: got %q want %q", env.Type, want)
		}
		if env.V != v1.Version || env.ID == "" {
			t.Fatalf("envelope missing version/id: %+v", env)
		}
		if err := env.Validate(); err != nil {
			t.Fatalf("broadcast envelope invalid: %v", err)
		}
	}

	// Spot-check a payload shape.
	g.Publish(chat.Event{Type: chat.EventMessageNew, ConversationID: "c1", Message: &msg})
	env := <-c.Send
	var p v1.MessageNewPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal message_new: %v", err)
	}
	if p.Message.ID != "m1" || p.Message.SenderID != "maya" {
		t.Fatalf("unexpected message payload: %+v", p.Message)
	}
}

func TestGatewayNotify_BroadcastsNotification(t *testing.T) {
	t.Parallel()

	g := NewGateway(testLogger(), NewHub(testLogger()))
	c := NewClient("session-a", 4)
	g.hub.Join(c)

	g.Notify(notify.Notification{
		Type:        "message",
		Title:       "Maya",
		Message:     "hi",
		RelatedID:   "c1",
		RelatedType: "conversation",
	})

	env := <-c.Send
	if env.Type != v1.TypeNotification {
		t.Fatalf("unexpected type %q", env.Type)
	}

	var p v1.NotificationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Title != "Maya" || p.RelatedID != "c1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}
