package persist

import (
	"context"
	"testing"
)

func TestPebble_RoundtripAndReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	st, err := OpenPebble(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, ok, err := st.Load(ctx); err != nil || ok {
		t.Fatalf("fresh db must be absent: ok=%v err=%v", ok, err)
	}

	in := testState()
	if err := st.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Snapshot survives a process restart.
	st, err = OpenPebble(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = st.Close() }()

	out, ok, err := st.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load after reopen: ok=%v err=%v", ok, err)
	}
	if len(out.Conversations) != 1 || out.Conversations[0].ID != "c1" {
		t.Fatalf("conversations lost across reopen: %+v", out.Conversations)
	}
	if len(out.Messages) != 1 || out.Messages[0].ID != "m1" {
		t.Fatalf("messages lost across reopen: %+v", out.Messages)
	}
}

func TestPebble_SaveOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	st, err := OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Save(ctx, testState()); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := testState()
	next.Messages = append(next.Messages, next.Messages[0])
	next.Messages[1].ID = "m2"
	if err := st.Save(ctx, next); err != nil {
		t.Fatalf("second save: %v", err)
	}

	out, ok, err := st.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected overwritten snapshot with 2 messages, got %d", len(out.Messages))
	}
}

func TestOpenPebble_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenPebble(""); err == nil {
		t.Fatalf("empty path must fail")
	}
}

func TestPebble_ClosedStoreErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	st, err := OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := st.Save(ctx, testState()); err == nil {
		t.Fatalf("save on closed store must fail")
	}
	if _, _, err := st.Load(ctx); err == nil {
		t.Fatalf("load on closed store must fail")
	}
}
