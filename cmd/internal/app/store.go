package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"roam/cmd/internal/chat"
	"roam/cmd/internal/persist"
)

// Thin constructors around the persist package so app.go stays focused on
// wiring decisions.

func persistPostgres(ctx context.Context, pool *pgxpool.Pool) (chat.SnapshotStore, error) {
	st, err := persist.NewPostgres(pool)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func persistPebble(dir string) (chat.SnapshotStore, error) {
	return persist.OpenPebble(dir)
}

func persistMemory() chat.SnapshotStore {
	return persist.NewMemory()
}
