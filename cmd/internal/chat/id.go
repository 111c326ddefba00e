package chat

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewMessageID returns a ULID used as message id.
// ULIDs are creation-ordered, so insertion order stays recoverable from ids
// alone and ties on Timestamp break deterministically.
func NewMessageID(now time.Time) string {
	return newULID(now)
}

// NewConversationID returns a ULID used as direct-conversation id.
// Group conversations use the group identity as their id instead.
func NewConversationID(now time.Time) string {
	return newULID(now)
}

func newULID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		// crypto/rand failure is practically unreachable. Return the
		// zero ULID rather than failing a send; callers treat it as an
		// error-like value in logs.
		return ulid.ULID{}.String()
	}
	return id.String()
}
