// Package persist provides snapshot persistence backends for the chat
// engine: a durable process-local Pebble store, a remote Postgres store, and
// an in-memory fallback for dev and tests.
//
// All backends share the same layout: the full conversation and message
// collections serialized as JSON arrays under two well-known keys. The
// payload carries no schema version field; this mirrors the legacy persisted
// shape and is flagged as an open question rather than silently changed.
package persist

const (
	keyConversations = "chat:conversations"
	keyMessages      = "chat:messages"
)
