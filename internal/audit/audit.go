// Package audit captures admission decisions for later review.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Verdict classifies the outcome of an admission decision.
type Verdict string

const (
	VerdictIssued      Verdict = "issued"
	VerdictBlocked     Verdict = "blocked"
	VerdictInvalidUser Verdict = "invalid_user"
	VerdictInvalidItem Verdict = "invalid_item"
	VerdictStoreError  Verdict = "store_error"
)

// Event is one recorded admission decision.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
	ItemID    int64     `json:"item_id,omitempty"`
	Verdict   Verdict   `json:"verdict"`
	Attempts  int64     `json:"attempts,omitempty"`
}

// Trail captures admission events in memory. If constructed with a writer,
// events are also streamed to it as newline-delimited JSON as they arrive.
// Thread-safe for concurrent use.
type Trail struct {
	mu     sync.Mutex
	events []Event
	writer io.Writer
}

// New creates a Trail. w may be nil.
func New(w io.Writer) *Trail {
	return &Trail{writer: w}
}

// Record captures a single event.
func (t *Trail) Record(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, ev)

	if t.writer != nil {
		if err := json.NewEncoder(t.writer).Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// Events returns a copy of all recorded events.
func (t *Trail) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of recorded events.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// ExportJSON writes all events to the given writer as a JSON array.
func (t *Trail) ExportJSON(w io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.events)
}

// ExportFile writes all events to a file as a JSON array.
func (t *Trail) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.ExportJSON(f)
}
