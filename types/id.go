package types

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEntryID returns a type-prefixed, lexicographically sortable entry id,
// e.g. "conv_01J8X5...". IDs generated within the same millisecond remain
// strictly increasing.
func NewEntryID(t MemoryType) string {
	return prefixFor(t) + "_" + newULID()
}

// NewTurnID returns an id for a conversation turn.
func NewTurnID() string {
	return "turn_" + newULID()
}

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func prefixFor(t MemoryType) string {
	switch t {
	case MemoryConversation:
		return "conv"
	case MemoryFactual:
		return "fact"
	case MemoryPreference:
		return "pref"
	case MemoryInsight:
		return "insight"
	default:
		return "mem"
	}
}
