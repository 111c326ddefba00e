package chat

import "context"

// State is the full persistable view of the engine's two collections.
type State struct {
	Conversations []Conversation
	Messages      []Message
}

// SnapshotStore is the durability contract for engine state.
//
// Requirements:
//   - Save replaces both collections atomically from the caller's view.
//   - Load returns ok=false when no snapshot exists; a decode failure is an
//     error. The engine treats both the same way: fall back to seed data.
//   - The persisted form has no schema version field (kept compatible with
//     the legacy payload shape).
type SnapshotStore interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, st State) error
	Close() error
}
