package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/admission"
	"github.com/flashgate/flashgate/internal/clock"
	"github.com/flashgate/flashgate/internal/config"
	"github.com/flashgate/flashgate/internal/directory"
	"github.com/flashgate/flashgate/internal/store"
	"github.com/flashgate/flashgate/internal/token"
)

// gateComponents bundles the assembled admission stack.
type gateComponents struct {
	store      store.Store
	controller *admission.Controller
}

// newGate builds the store, issuer, directory, and controller from config.
func newGate(cfg config.Config, clk clock.Clock, log *zap.Logger) (*gateComponents, error) {
	st, err := newStore(cfg.Store, clk)
	if err != nil {
		return nil, err
	}

	iss, err := token.NewIssuer(st, cfg.Admission.SecretSalt, cfg.Admission.TokenTTL)
	if err != nil {
		st.Close()
		return nil, err
	}

	dir := directory.NewStatic(cfg.Seed.Users, cfg.Seed.Items)

	ctrl, err := admission.NewController(st, iss, dir, dir, log, admission.Config{
		AllowCount: cfg.Admission.AllowCount,
		Window:     cfg.Admission.RateLimitWindow,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &gateComponents{store: st, controller: ctrl}, nil
}

func newStore(cfg config.StoreConfig, clk clock.Clock) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(clk), nil
	case config.BackendRedis:
		return store.NewRedisStore(&cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
