package cli

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/admission"
	"github.com/flashgate/flashgate/internal/audit"
	"github.com/flashgate/flashgate/internal/clock"
	"github.com/flashgate/flashgate/internal/config"
	"github.com/flashgate/flashgate/internal/server"
)

func TestDrainAndExport_ExportsAfterDrain(t *testing.T) {
	cfg := config.Default()
	cfg.Admission.SecretSalt = "randomString"
	cfg.Seed = config.SeedConfig{
		Users: []admission.User{{ID: 42, Name: "alice"}},
		Items: []admission.Stock{{ID: 7, Name: "widget", Count: 100}},
	}

	gate, err := newGate(cfg, clock.NewRealClock(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer gate.store.Close()

	trail := audit.New(nil)
	srv := server.New(":0", gate.controller, clock.NewRealClock(), zap.NewNop(), server.Options{Trail: trail})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.StartOnListener(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/verify?item=7&user=42")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, want 200", resp.StatusCode)
	}

	auditFile := filepath.Join(t.TempDir(), "decisions.json")
	if err := drainAndExport(srv, trail, auditFile, zap.NewNop()); err != nil {
		t.Fatalf("drainAndExport: %v", err)
	}

	// The listener is closed before the export is written.
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("serve returned %v, want ErrServerClosed", err)
	}

	data, err := os.ReadFile(auditFile)
	if err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	var events []audit.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Verdict != audit.VerdictIssued {
		t.Errorf("exported events = %+v, want one issued decision", events)
	}
}

func TestDrainAndExport_NilTrail(t *testing.T) {
	cfg := config.Default()
	cfg.Admission.SecretSalt = "randomString"

	gate, err := newGate(cfg, clock.NewRealClock(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer gate.store.Close()

	srv := server.New(":0", gate.controller, clock.NewRealClock(), zap.NewNop(), server.Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.StartOnListener(ln)

	if err := drainAndExport(srv, nil, "", zap.NewNop()); err != nil {
		t.Fatalf("drainAndExport with nil trail: %v", err)
	}
}
