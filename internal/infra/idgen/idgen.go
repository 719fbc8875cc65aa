// Package idgen issues message ids and timestamps that sort in append order.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a ULID for t. Ids issued within the same millisecond are
// strictly increasing.
func NewULID(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// NextTimestamp returns now, or one microsecond past prev when now would not
// be strictly greater. Timestamps are truncated to microseconds so they
// survive a round trip through Postgres and SQLite unchanged.
func NextTimestamp(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !prev.IsZero() && !now.After(prev) {
		return prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}
