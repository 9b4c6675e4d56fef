// Package server exposes the admission gate over HTTP. Handlers compose
// the controller's guards in the order the purchase path expects: record
// the attempt, check the block threshold, then issue the token.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/admission"
	"github.com/flashgate/flashgate/internal/audit"
	"github.com/flashgate/flashgate/internal/clock"
	"github.com/flashgate/flashgate/internal/store"
)

// Options configures optional server collaborators.
type Options struct {
	// Trail receives an audit event per admission decision. May be nil.
	Trail *audit.Trail
	// Hub broadcasts decision events to WebSocket clients. May be nil.
	Hub *Hub
}

// Server is the flashgate HTTP server.
type Server struct {
	httpServer *http.Server
	ctrl       *admission.Controller
	clock      clock.Clock
	log        *zap.Logger
	trail      *audit.Trail
	hub        *Hub
	mux        *http.ServeMux
}

// New creates a new Server.
func New(addr string, ctrl *admission.Controller, clk clock.Clock, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		ctrl:  ctrl,
		clock: clk,
		log:   log,
		trail: opts.Trail,
		hub:   opts.Hub,
		mux:   http.NewServeMux(),
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/verify", s.handleVerify)
	s.mux.HandleFunc("/api/attempt", s.handleAttempt)
	s.mux.HandleFunc("/api/blocked", s.handleBlocked)
	if s.hub != nil {
		s.mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	}
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVerify runs the full admission pipeline for a purchase attempt:
// GET /api/verify?item=7&user=42.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	itemID, userID, ok := s.itemAndUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	count, err := s.ctrl.RecordAttempt(ctx, userID)
	if err != nil {
		s.fail(w, userID, itemID, err)
		return
	}

	blocked, err := s.ctrl.IsBlocked(ctx, userID)
	if err != nil {
		s.fail(w, userID, itemID, err)
		return
	}
	if blocked {
		s.record(audit.Event{
			Timestamp: s.clock.Now(),
			UserID:    userID,
			ItemID:    itemID,
			Verdict:   audit.VerdictBlocked,
			Attempts:  count,
		})
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts"})
		return
	}

	tok, err := s.ctrl.RequestVerification(ctx, itemID, userID)
	if err != nil {
		s.fail(w, userID, itemID, err)
		return
	}

	s.record(audit.Event{
		Timestamp: s.clock.Now(),
		UserID:    userID,
		ItemID:    itemID,
		Verdict:   audit.VerdictIssued,
		Attempts:  count,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

// handleAttempt advances the attempt counter without issuing a token:
// POST /api/attempt?user=42.
func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "use POST"})
		return
	}

	userID, ok := s.userParam(w, r)
	if !ok {
		return
	}

	count, err := s.ctrl.RecordAttempt(r.Context(), userID)
	if err != nil {
		s.fail(w, userID, 0, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// handleBlocked reports the block verdict: GET /api/blocked?user=42.
func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userParam(w, r)
	if !ok {
		return
	}

	blocked, err := s.ctrl.IsBlocked(r.Context(), userID)
	if err != nil {
		s.fail(w, userID, 0, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"blocked": blocked})
}

// fail maps controller errors onto HTTP responses without leaking lookup
// internals, and records the corresponding audit event.
func (s *Server) fail(w http.ResponseWriter, userID, itemID int64, err error) {
	ev := audit.Event{
		Timestamp: s.clock.Now(),
		UserID:    userID,
		ItemID:    itemID,
	}

	switch {
	case errors.Is(err, admission.ErrInvalidUser):
		ev.Verdict = audit.VerdictInvalidUser
		s.record(ev)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user"})
	case errors.Is(err, admission.ErrInvalidItem):
		ev.Verdict = audit.VerdictInvalidItem
		s.record(ev)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item"})
	case errors.Is(err, store.ErrUnavailable):
		ev.Verdict = audit.VerdictStoreError
		s.record(ev)
		s.log.Error("store unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service unavailable"})
	default:
		s.log.Error("admission check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// record sends the event to the audit trail and WebSocket hub when present.
func (s *Server) record(ev audit.Event) {
	if s.trail != nil {
		if err := s.trail.Record(ev); err != nil {
			s.log.Warn("audit record failed", zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(ev)
	}
}

func (s *Server) itemAndUser(w http.ResponseWriter, r *http.Request) (itemID, userID int64, ok bool) {
	itemID, err := parseID(r.URL.Query().Get("item"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item is required"})
		return 0, 0, false
	}
	userID, ok = s.userParam(w, r)
	if !ok {
		return 0, 0, false
	}
	return itemID, userID, true
}

func (s *Server) userParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := parseID(r.URL.Query().Get("user"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user is required"})
		return 0, false
	}
	return userID, true
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("flashgate server listening", zap.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.log.Info("flashgate server listening", zap.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}
