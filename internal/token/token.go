// Package token derives and stores short-lived verification tokens binding
// a user to an item. A token proves the pre-checks passed for that exact
// pair; downstream purchase logic refuses requests without one.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/flashgate/flashgate/internal/store"
)

// Issuer derives deterministic, non-guessable verification tokens and
// records them in the store with a validity TTL.
type Issuer struct {
	store store.Store
	salt  []byte
	ttl   time.Duration
}

// NewIssuer creates an Issuer. The salt keys the digest; it must be kept
// secret and stable across instances that share the store.
func NewIssuer(s store.Store, salt string, ttl time.Duration) (*Issuer, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if salt == "" {
		return nil, fmt.Errorf("secret salt is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	return &Issuer{
		store: s,
		salt:  []byte(salt),
		ttl:   ttl,
	}, nil
}

// Issue computes the token for (itemID, userID) and stores it under the
// verification key, unconditionally overwriting any prior token for the
// pair. The hash is computed before any write, so a failed store leaves no
// new token behind.
func (i *Issuer) Issue(ctx context.Context, itemID, userID int64) (string, error) {
	tok := i.derive(itemID, userID)

	if err := i.store.Set(ctx, store.VerifyKey(itemID, userID), tok, i.ttl); err != nil {
		return "", fmt.Errorf("storing verification token: %w", err)
	}
	return tok, nil
}

// derive is a pure function of (itemID, userID, salt): an HMAC-SHA256 keyed
// by the salt over the item and user ids in decimal form, order-significant.
func (i *Issuer) derive(itemID, userID int64) string {
	mac := hmac.New(sha256.New, i.salt)
	mac.Write([]byte(strconv.FormatInt(itemID, 10)))
	mac.Write([]byte(strconv.FormatInt(userID, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
