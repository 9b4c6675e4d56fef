package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/clock"
	"github.com/flashgate/flashgate/internal/store"
	"github.com/flashgate/flashgate/internal/token"
)

var ctx = context.Background()

// fakeLookups serves a fixed set of users and items.
type fakeLookups struct {
	users  map[int64]*User
	stocks map[int64]*Stock
}

func (f *fakeLookups) UserByID(_ context.Context, id int64) (*User, error) {
	return f.users[id], nil
}

func (f *fakeLookups) StockByID(_ context.Context, id int64) (*Stock, error) {
	return f.stocks[id], nil
}

// countingStore wraps a Store and counts writes, for verifying that failed
// validations leave no state behind.
type countingStore struct {
	store.Store
	mu     sync.Mutex
	writes int
}

func (c *countingStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Store.Increment(ctx, key, ttl)
}

func (c *countingStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Store.SetNX(ctx, key, value, ttl)
}

func (c *countingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Store.Set(ctx, key, value, ttl)
}

func (c *countingStore) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func newTestController(t *testing.T) (*Controller, *countingStore, *clock.VirtualClock) {
	t.Helper()

	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cs := &countingStore{Store: store.NewMemoryStore(vc)}

	iss, err := token.NewIssuer(cs, "randomString", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	lookups := &fakeLookups{
		users:  map[int64]*User{42: {ID: 42, Name: "alice"}},
		stocks: map[int64]*Stock{7: {ID: 7, Name: "widget", Count: 100}},
	}

	ctrl, err := NewController(cs, iss, lookups, lookups, zap.NewNop(), Config{
		AllowCount: 10,
		Window:     time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ctrl, cs, vc
}

func TestRequestVerification_IssuesToken(t *testing.T) {
	ctrl, cs, _ := newTestController(t)

	tok, err := ctrl.RequestVerification(ctx, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	if tok == "" {
		t.Fatal("token should not be empty")
	}

	stored, ok, err := cs.Get(ctx, store.VerifyKey(7, 42))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || stored != tok {
		t.Errorf("stored token = %q, %v, want %q, true", stored, ok, tok)
	}
}

func TestRequestVerification_InvalidUser(t *testing.T) {
	ctrl, cs, _ := newTestController(t)

	_, err := ctrl.RequestVerification(ctx, 7, 999)
	if !errors.Is(err, ErrInvalidUser) {
		t.Errorf("error = %v, want ErrInvalidUser", err)
	}
	if cs.writeCount() != 0 {
		t.Errorf("invalid user caused %d store writes, want 0", cs.writeCount())
	}
}

func TestRequestVerification_InvalidItem(t *testing.T) {
	ctrl, cs, _ := newTestController(t)

	_, err := ctrl.RequestVerification(ctx, 999, 42)
	if !errors.Is(err, ErrInvalidItem) {
		t.Errorf("error = %v, want ErrInvalidItem", err)
	}
	if cs.writeCount() != 0 {
		t.Errorf("invalid item caused %d store writes, want 0", cs.writeCount())
	}
}

func TestRequestVerification_ChecksUserBeforeItem(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	// Both references invalid: the user check runs first.
	_, err := ctrl.RequestVerification(ctx, 999, 888)
	if !errors.Is(err, ErrInvalidUser) {
		t.Errorf("error = %v, want ErrInvalidUser", err)
	}
}

func TestRecordAttempt_CountsUp(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	for want := int64(1); want <= 3; want++ {
		got, err := ctrl.RecordAttempt(ctx, 42)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("RecordAttempt #%d = %d, want %d", want, got, want)
		}
	}
}

func TestIsBlocked_NoRecordFailsClosed(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	blocked, err := ctrl.IsBlocked(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("user with no attempt record should be blocked")
	}
}

func TestIsBlocked_ThresholdIsStrict(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	// Exactly AllowCount attempts are still permitted.
	for i := 0; i < 10; i++ {
		if _, err := ctrl.RecordAttempt(ctx, 42); err != nil {
			t.Fatal(err)
		}
	}
	blocked, err := ctrl.IsBlocked(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("user at the threshold should not be blocked")
	}

	// The (AllowCount+1)th attempt trips the block.
	if _, err := ctrl.RecordAttempt(ctx, 42); err != nil {
		t.Fatal(err)
	}
	blocked, err = ctrl.IsBlocked(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("user past the threshold should be blocked")
	}
}

func TestIsBlocked_WindowExpiryResetsToNoRecord(t *testing.T) {
	ctrl, _, vc := newTestController(t)

	for i := 0; i < 11; i++ {
		ctrl.RecordAttempt(ctx, 42)
	}
	if blocked, _ := ctrl.IsBlocked(ctx, 42); !blocked {
		t.Fatal("user should be blocked before window expiry")
	}

	vc.Advance(time.Hour + time.Second)

	// The record expired, which lands back in the fail-closed default.
	blocked, err := ctrl.IsBlocked(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("expired record should fall back to blocked (no record)")
	}

	// A fresh attempt starts a new window at 1.
	count, err := ctrl.RecordAttempt(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("first attempt of new window = %d, want 1", count)
	}
	if blocked, _ := ctrl.IsBlocked(ctx, 42); blocked {
		t.Error("user with one attempt in a fresh window should not be blocked")
	}
}

func TestRecordAttempt_ConcurrentNoLostUpdates(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ctrl.RecordAttempt(ctx, 42); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	count, err := ctrl.RecordAttempt(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if count != n+1 {
		t.Errorf("count after %d concurrent attempts = %d, want %d", n, count, n+1)
	}
}

func TestController_StoreUnavailablePropagates(t *testing.T) {
	iss, err := token.NewIssuer(store.NewMemoryStore(clock.NewRealClock()), "salt", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	lookups := &fakeLookups{
		users:  map[int64]*User{42: {ID: 42}},
		stocks: map[int64]*Stock{7: {ID: 7}},
	}
	ctrl, err := NewController(downStore{}, iss, lookups, lookups, zap.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ctrl.RecordAttempt(ctx, 42); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("RecordAttempt error = %v, want ErrUnavailable", err)
	}
	if _, err := ctrl.IsBlocked(ctx, 42); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("IsBlocked error = %v, want ErrUnavailable", err)
	}
}

func TestNewController_Validation(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemoryStore(vc)
	iss, err := token.NewIssuer(s, "salt", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	lookups := &fakeLookups{}

	if _, err := NewController(nil, iss, lookups, lookups, nil, Config{}); err == nil {
		t.Error("nil store should be rejected")
	}
	if _, err := NewController(s, nil, lookups, lookups, nil, Config{}); err == nil {
		t.Error("nil issuer should be rejected")
	}
	if _, err := NewController(s, iss, nil, lookups, nil, Config{}); err == nil {
		t.Error("nil user lookup should be rejected")
	}
	if _, err := NewController(s, iss, lookups, nil, nil, Config{}); err == nil {
		t.Error("nil stock lookup should be rejected")
	}

	ctrl, err := NewController(s, iss, lookups, lookups, nil, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if ctrl.AllowCount() != DefaultAllowCount {
		t.Errorf("AllowCount() = %d, want default %d", ctrl.AllowCount(), DefaultAllowCount)
	}
}

// downStore fails every operation.
type downStore struct{}

func (downStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, store.ErrUnavailable
}

func (downStore) GetCount(context.Context, string) (int64, bool, error) {
	return 0, false, store.ErrUnavailable
}

func (downStore) SetNX(context.Context, string, string, time.Duration) (string, error) {
	return "", store.ErrUnavailable
}

func (downStore) Set(context.Context, string, string, time.Duration) error {
	return store.ErrUnavailable
}

func (downStore) Get(context.Context, string) (string, bool, error) {
	return "", false, store.ErrUnavailable
}

func (downStore) Close() error { return nil }
