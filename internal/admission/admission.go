// Package admission gates flash-sale purchase attempts. It validates that
// the requesting user and the target item exist, counts attempts per user
// against a fixed threshold, and hands out verification tokens for requests
// that pass. It holds no in-process locks on the request path; all
// cross-call coordination lives in the shared store.
package admission

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/store"
	"github.com/flashgate/flashgate/internal/token"
)

const (
	// DefaultAllowCount is the number of attempts permitted per user per
	// rate-limit window before further attempts are blocked.
	DefaultAllowCount = 10

	// DefaultWindow is the fixed rate-limit window. The counter key
	// expires this long after its first increment; there is no manual
	// reset path.
	DefaultWindow = time.Hour
)

// User is the resolved account behind a purchase attempt.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Stock is the resolved sale item.
type Stock struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// UserLookup resolves users by id. A nil User with a nil error means the
// user does not exist.
type UserLookup interface {
	UserByID(ctx context.Context, id int64) (*User, error)
}

// StockLookup resolves sale items by id. A nil Stock with a nil error means
// the item does not exist.
type StockLookup interface {
	StockByID(ctx context.Context, id int64) (*Stock, error)
}

// Config holds the admission policy parameters.
type Config struct {
	// AllowCount is the attempt threshold. A user is blocked once their
	// attempt count exceeds it: exactly AllowCount attempts are still
	// permitted.
	AllowCount int64

	// Window is the TTL of the per-user attempt counter.
	Window time.Duration
}

// Controller orchestrates validation, attempt counting, and token issuance
// into per-request admission decisions. Safe for unlimited concurrent use.
type Controller struct {
	store      store.Store
	issuer     *token.Issuer
	users      UserLookup
	stocks     StockLookup
	log        *zap.Logger
	allowCount int64
	window     time.Duration
}

// NewController creates a Controller with explicit collaborators. Zero
// config fields fall back to the defaults.
func NewController(s store.Store, issuer *token.Issuer, users UserLookup, stocks StockLookup, log *zap.Logger, cfg Config) (*Controller, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user lookup is required")
	}
	if stocks == nil {
		return nil, fmt.Errorf("stock lookup is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	allowCount := cfg.AllowCount
	if allowCount <= 0 {
		allowCount = DefaultAllowCount
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	return &Controller{
		store:      s,
		issuer:     issuer,
		users:      users,
		stocks:     stocks,
		log:        log,
		allowCount: allowCount,
		window:     window,
	}, nil
}

// AllowCount returns the configured attempt threshold.
func (c *Controller) AllowCount() int64 {
	return c.allowCount
}

// RequestVerification validates the user and item, then issues and stores a
// verification token for the pair. It performs no store writes when either
// lookup fails. Rate limiting is not applied here; callers compose
// RecordAttempt/IsBlocked around it per their policy.
func (c *Controller) RequestVerification(ctx context.Context, itemID, userID int64) (string, error) {
	user, err := c.users.UserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("looking up user %d: %w", userID, err)
	}
	if user == nil {
		return "", fmt.Errorf("user %d: %w", userID, ErrInvalidUser)
	}

	stock, err := c.stocks.StockByID(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("looking up item %d: %w", itemID, err)
	}
	if stock == nil {
		return "", fmt.Errorf("item %d: %w", itemID, ErrInvalidItem)
	}

	tok, err := c.issuer.Issue(ctx, itemID, userID)
	if err != nil {
		return "", err
	}

	c.log.Info("verification token issued",
		zap.Int64("user", userID),
		zap.Int64("item", itemID),
		zap.String("stock", stock.Name))
	return tok, nil
}

// RecordAttempt advances the per-user attempt counter and returns the new
// count. The counter is created at 0 with the window TTL on first call;
// later calls do not refresh the TTL. This is the only way the count
// advances, so call it at most once per logical user action.
func (c *Controller) RecordAttempt(ctx context.Context, userID int64) (int64, error) {
	count, err := c.store.Increment(ctx, store.LimitKey(userID), c.window)
	if err != nil {
		return 0, fmt.Errorf("recording attempt for user %d: %w", userID, err)
	}
	return count, nil
}

// IsBlocked reports whether the user has exceeded the attempt threshold.
// A user with no attempt record at all is treated as blocked: inside this
// workflow every legitimate caller has gone through RecordAttempt first, so
// a missing count is itself suspicious. Blocking is a policy verdict, not
// an error; the error return is reserved for store failures.
func (c *Controller) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	count, ok, err := c.store.GetCount(ctx, store.LimitKey(userID))
	if err != nil {
		return false, fmt.Errorf("reading attempt count for user %d: %w", userID, err)
	}
	if !ok {
		c.log.Warn("no attempt record for user, treating as blocked",
			zap.Int64("user", userID))
		return true, nil
	}
	return count > c.allowCount, nil
}
