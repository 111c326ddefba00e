package persist

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"

	"roam/cmd/internal/chat"
)

// Pebble is the durable, process-local SnapshotStore. It survives restarts
// but is not synchronized across devices or processes.
//
// Writes go through one batch committed with pebble.Sync, so an
// acknowledged save is on disk and both keys move together.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the database at path.
func OpenPebble(path string) (*Pebble, error) {
	if path == "" {
		return nil, errors.New("persist: empty pebble path")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

// Close closes the underlying database.
func (s *Pebble) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load implements chat.SnapshotStore.
func (s *Pebble) Load(ctx context.Context) (chat.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return chat.State{}, false, err
	}
	if s == nil || s.db == nil {
		return chat.State{}, false, errors.New("persist: pebble not open")
	}

	rawConvs, okConvs, err := s.get(keyConversations)
	if err != nil {
		return chat.State{}, false, err
	}
	rawMsgs, okMsgs, err := s.get(keyMessages)
	if err != nil {
		return chat.State{}, false, err
	}
	if !okConvs || !okMsgs {
		return chat.State{}, false, nil
	}
	return decodeState(rawConvs, rawMsgs)
}

// Save implements chat.SnapshotStore.
func (s *Pebble) Save(ctx context.Context, st chat.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("persist: pebble not open")
	}

	convs, msgs, err := encodeState(st)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()

	if err := b.Set([]byte(keyConversations), convs, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(keyMessages), msgs, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *Pebble) get(key string) ([]byte, bool, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		return nil, false, err
	}
	return out, true, nil
}
