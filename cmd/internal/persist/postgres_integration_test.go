package persist

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roam/cmd/internal/chat"
)

// Integration tests are enabled when ROAM_TEST_DATABASE_URL is set.
// This keeps local "go test ./..." fast & deterministic without requiring Postgres.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("ROAM_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("ROAM_TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	return pool
}

func mustTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := fmt.Sprintf("roam_test_%d", time.Now().UnixNano())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})

	return schema
}

func TestPostgres_RoundtripAndOverwrite(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustTestSchema(t, pool)

	st, err := NewPostgres(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	if _, ok, err := st.Load(ctx); err != nil || ok {
		t.Fatalf("fresh schema must be absent: ok=%v err=%v", ok, err)
	}

	if err := st.Save(ctx, testState()); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, ok, err := st.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(out.Conversations) != 1 || out.Conversations[0].ID != "c1" {
		t.Fatalf("conversations lost in roundtrip: %+v", out.Conversations)
	}

	// Upsert path: a second save replaces, not duplicates.
	next := testState()
	next.Conversations[0].UnreadCount = 0
	next.Messages[0].Read = true
	if err := st.Save(ctx, next); err != nil {
		t.Fatalf("second save: %v", err)
	}

	out, ok, err = st.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	if out.Conversations[0].UnreadCount != 0 || !out.Messages[0].Read {
		t.Fatalf("overwrite not applied: %+v", out)
	}
}

func TestPostgres_SavedEmptyIsPresent(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustTestSchema(t, pool)

	st, err := NewPostgres(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := st.Save(ctx, chat.State{}); err != nil {
		t.Fatalf("save empty: %v", err)
	}

	out, ok, err := st.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("saved-empty must be present: ok=%v err=%v", ok, err)
	}
	if len(out.Conversations) != 0 || len(out.Messages) != 0 {
		t.Fatalf("expected empty state, got %+v", out)
	}
}

func TestWithSchema_RejectsInvalidIdentifiers(t *testing.T) {
	t.Parallel()

	cases := []string{"", "  ", "bad-schema", "1leading", `dq"uote`}
	for _, schema := range cases {
		opt := WithSchema(schema)
		st := &Postgres{}
		if err := opt(st); err == nil {
			t.Fatalf("schema %q must be rejected", schema)
		}
	}
}
