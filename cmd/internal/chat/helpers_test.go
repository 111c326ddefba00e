package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"roam/cmd/internal/notify"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordSink captures engine events. Publish runs inside the engine's
// serialization boundary, but reads happen from the test goroutine after
// timer callbacks, so it carries its own lock.
type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordSink) byType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

type recordNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordNotifier) Notify(msg notify.Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
}

func (n *recordNotifier) all() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}

// stubStore is a scriptable SnapshotStore.
type stubStore struct {
	mu sync.Mutex

	state   State
	hasData bool

	loadErr error
	saveErr error

	saves int
}

func (s *stubStore) Load(_ context.Context) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return State{}, false, s.loadErr
	}
	return s.state, s.hasData, nil
}

func (s *stubStore) Save(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = st
	s.hasData = true
	return nil
}

func (s *stubStore) Close() error { return nil }

func (s *stubStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *stubStore) saved() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.hasData
}

var errStoreBroken = errors.New("store broken")

func newTestEngine(clock Clock, extra ...func(*Config)) (*Engine, *recordSink, *recordNotifier) {
	sink := &recordSink{}
	notifier := &recordNotifier{}

	cfg := Config{
		Self:     Identity{ID: "viewer-1", DisplayName: "Alex", Avatar: "avatars/alex.png"},
		Log:      testLogger(),
		Clock:    clock,
		Notifier: notifier,
		Sink:     sink,
	}
	for _, fn := range extra {
		fn(&cfg)
	}

	e := NewEngine(cfg)
	// Deterministic counterpart presence for assertions.
	e.online = func() bool { return true }
	return e, sink, notifier
}
