package tender

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by SnapshotStore.Get when a key has never been
// written. Callers treat it as "start empty", not as a failure.
var ErrNotFound = errors.New("tender: key not found")

// Adapter fetches one page or batch at a time from one upstream feed using
// that feed's pagination idiom. FetchPage must be safe to call repeatedly
// with the same state, and must report upstream drift (non-JSON body,
// non-success status, unparsable payload) as exhaustion, not as an error
// that aborts the cycle.
type Adapter interface {
	SourceID() string
	FetchPage(ctx context.Context, state FetchState) (Page, error)
}

// SnapshotStore is the durable key-value blob store holding the latest
// snapshot and per-source fetch state. Put replaces the whole value
// atomically; there are no multi-key transactions.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Publisher pushes snapshot-updated events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle and request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for composite opportunity identities.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Store keys used by the orchestrator and read path.
const SnapshotKey = "latest"

// FetchStateKey returns the store key holding one source's continuation state.
func FetchStateKey(sourceID string) string {
	return "fetch-state:" + sourceID
}
