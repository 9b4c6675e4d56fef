// Package directory provides a static, config-seeded implementation of the
// admission lookups. Production deployments substitute lookups backed by
// their account and inventory systems; this one exists so the gate can run
// standalone and so the serve command has real collaborators.
package directory

import (
	"context"
	"sync"

	"github.com/flashgate/flashgate/internal/admission"
)

// Static serves users and items from in-memory tables.
// Thread-safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	users  map[int64]admission.User
	stocks map[int64]admission.Stock
}

// NewStatic creates a directory seeded with the given users and items.
func NewStatic(users []admission.User, stocks []admission.Stock) *Static {
	d := &Static{
		users:  make(map[int64]admission.User, len(users)),
		stocks: make(map[int64]admission.Stock, len(stocks)),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	for _, s := range stocks {
		d.stocks[s.ID] = s
	}
	return d
}

func (d *Static) UserByID(_ context.Context, id int64) (*admission.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (d *Static) StockByID(_ context.Context, id int64) (*admission.Stock, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.stocks[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// AddUser registers or replaces a user.
func (d *Static) AddUser(u admission.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// AddStock registers or replaces an item.
func (d *Static) AddStock(s admission.Stock) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stocks[s.ID] = s
}
