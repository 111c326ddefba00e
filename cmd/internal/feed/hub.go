package feed

import (
	"log/slog"
	"sync"

	v1 "roam/shared/contracts/feed/v1"
)

// Hub is the in-memory session registry + broadcast fanout for the feed.
// Every engine event goes to every connected shell session: the feed is a
// single viewer's surface, not a multi-user conversation transport.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: make(map[string]*Client),
	}
}

// Join registers a session.
func (h *Hub) Join(client *Client) {
	if h == nil || client == nil || client.SessionID == "" {
		return
	}

	h.mu.Lock()
	h.sessions[client.SessionID] = client
	h.mu.Unlock()

	h.log.Info("feed.session.join", "session_id", client.SessionID)
}

// Leave removes a session and signals shutdown for that client.
func (h *Hub) Leave(sessionID string) {
	if h == nil || sessionID == "" {
		return
	}

	var cl *Client

	h.mu.Lock()
	cl = h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	// Signal client shutdown after removing from the registry. This
	// ordering avoids race windows where a broadcaster still holds a
	// pointer while the client goroutines are being torn down.
	if cl != nil {
		cl.Close()
	}

	h.log.Info("feed.session.leave", "session_id", sessionID)
}

// Broadcast fanouts an envelope to all sessions.
// Non-blocking: if a session queue is full or the client is shutting down, it is dropped.
func (h *Hub) Broadcast(env v1.Envelope) {
	if h == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.sessions {
		if c == nil {
			continue
		}

		select {
		case <-c.Done():
			// Skip sessions that are shutting down.
			continue
		default:
		}

		select {
		case c.Send <- env:
		default:
			// Drop rather than block the whole feed.
		}
	}
}
