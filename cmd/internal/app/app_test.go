package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roam/cmd/internal/chat"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sendToMaya() chat.SendInput {
	return chat.SendInput{
		CounterpartID:   "maya-1",
		CounterpartName: "Maya",
		Content:         "still on for Lisbon?",
	}
}

func TestNew_MemoryModeSeedsEngine(t *testing.T) {
	cfg := LoadConfig()

	a, err := New(cfg, testLog())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.engine.Close()

	if a.dbEnabled {
		t.Fatalf("default config must not enable the db")
	}

	convs := a.Engine().Conversations()
	if len(convs) != 1 {
		t.Fatalf("memory mode must seed the concierge thread, got %d conversations", len(convs))
	}
	if a.Engine().TotalUnreadCount() != 1 {
		t.Fatalf("seed welcome must be unread")
	}
}

func TestNew_PebbleModePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	cfg := LoadConfig()
	cfg.DataDir = dir
	cfg.SelfID = "u-1"
	cfg.SelfName = "Alex"

	a, err := New(cfg, testLog())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sent := a.Engine().SendMessage(sendToMaya())
	a.Engine().Close()
	if err := a.store.Close(context.Background()); err != nil {
		t.Fatalf("store close: %v", err)
	}

	// Second boot sees the same snapshot instead of re-seeding.
	b, err := New(cfg, testLog())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = b.store.Close(context.Background()) }()
	defer b.Engine().Close()

	if _, ok := b.Engine().ConversationByID(sent.ConversationID); !ok {
		t.Fatalf("conversation lost across restart")
	}
	if got := len(b.Engine().Messages(sent.ConversationID)); got != 1 {
		t.Fatalf("messages lost across restart: %d", got)
	}
}

func TestRegisterHTTP_HealthAndMetrics(t *testing.T) {
	cfg := LoadConfig()

	a, err := New(cfg, testLog())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.engine.Close()

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gateway)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", path, rr.Code)
		}
	}
}

func TestReadyz_RequiresDBWhenConfigured(t *testing.T) {
	cfg := LoadConfig()
	cfg.ReadinessRequireDB = true

	a, err := New(cfg, testLog())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.engine.Close()

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gateway)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz must fail without a db, got %d", rr.Code)
	}
}

func TestNonZeroHelpers(t *testing.T) {
	t.Parallel()

	if got := nonZeroDuration(0, 5*time.Second); got != 5*time.Second {
		t.Fatalf("zero duration must fall back, got %v", got)
	}
	if got := nonZeroDuration(time.Second, 5*time.Second); got != time.Second {
		t.Fatalf("explicit duration lost, got %v", got)
	}
	if got := nonZeroInt(0, 7); got != 7 {
		t.Fatalf("zero int must fall back, got %d", got)
	}
	if got := nonZeroInt(3, 7); got != 3 {
		t.Fatalf("explicit int lost, got %d", got)
	}
}
