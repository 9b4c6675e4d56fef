package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable reports that the backing store could not be reached.
// Callers must treat it as a transient failure distinct from an admission
// denial; the store never falls back to approximate local counting, since
// undercounting would defeat the rate limit.
var ErrUnavailable = errors.New("store unavailable")

// Store is a shared keyed counter and value store with per-key expiry.
// It is the single serialization point for concurrent admission checks:
// every mutation is one atomic store-side operation, never a
// read-modify-write sequence. Implementations must be safe for unlimited
// concurrent use.
type Store interface {
	// Increment atomically increments the counter for key and returns the
	// new value. If the key has no current value it is first initialized
	// to 0 with the given TTL, race-free across concurrent first callers.
	// The TTL is applied on creation only; later increments do not refresh it.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// GetCount returns the current counter value for key, or ok=false if
	// the key has expired or was never set. No side effects.
	GetCount(ctx context.Context, key string) (value int64, ok bool, err error)

	// SetNX atomically stores value under key with the given TTL only if
	// no value currently exists. It returns whatever value is now stored:
	// the caller's value if it won the race, or the pre-existing value if
	// another writer won.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (string, error)

	// Set unconditionally stores value under key with the given TTL,
	// overwriting any prior value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the stored string value for key, or ok=false if the key
	// has expired or was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Close releases backend resources. It is idempotent.
	Close() error
}

// LimitKey is the per-user rate-limit counter key.
func LimitKey(userID int64) string {
	return fmt.Sprintf("limit:%d", userID)
}

// VerifyKey is the per-(item,user) verification token key.
func VerifyKey(itemID, userID int64) string {
	return fmt.Sprintf("verify:%d:%d", itemID, userID)
}
