package persist

import (
	"context"
	"encoding/json"
	"sync"

	"roam/cmd/internal/chat"
)

// Memory is a dev/test SnapshotStore. It holds the raw serialized values
// under the same two keys as the durable backends, so the decode path (and
// its parse-failure degradation) behaves identically.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Close closes the store (noop for in-memory).
func (s *Memory) Close() error { return nil }

// Load implements chat.SnapshotStore.
func (s *Memory) Load(ctx context.Context) (chat.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return chat.State{}, false, err
	}

	s.mu.Lock()
	rawConvs, okConvs := s.data[keyConversations]
	rawMsgs, okMsgs := s.data[keyMessages]
	s.mu.Unlock()

	if !okConvs || !okMsgs {
		return chat.State{}, false, nil
	}
	return decodeState(rawConvs, rawMsgs)
}

// Save implements chat.SnapshotStore.
func (s *Memory) Save(ctx context.Context, st chat.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	convs, msgs, err := encodeState(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.data[keyConversations] = convs
	s.data[keyMessages] = msgs
	s.mu.Unlock()
	return nil
}

// Put injects a raw value under a well-known key. Test hook for corrupt or
// legacy payloads.
func (s *Memory) Put(key string, value []byte) {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
}

func encodeState(st chat.State) (convs, msgs []byte, err error) {
	// Persist empty collections as [] rather than null so a re-load
	// distinguishes "saved empty" from "absent".
	cs := st.Conversations
	if cs == nil {
		cs = []chat.Conversation{}
	}
	ms := st.Messages
	if ms == nil {
		ms = []chat.Message{}
	}

	convs, err = json.Marshal(cs)
	if err != nil {
		return nil, nil, err
	}
	msgs, err = json.Marshal(ms)
	if err != nil {
		return nil, nil, err
	}
	return convs, msgs, nil
}

func decodeState(rawConvs, rawMsgs []byte) (chat.State, bool, error) {
	var st chat.State
	if err := json.Unmarshal(rawConvs, &st.Conversations); err != nil {
		return chat.State{}, false, err
	}
	if err := json.Unmarshal(rawMsgs, &st.Messages); err != nil {
		return chat.State{}, false, err
	}
	return st, true, nil
}
