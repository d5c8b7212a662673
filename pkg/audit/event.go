// Package audit keeps an append-only, hash-chained trail of title workflow
// events: registrations, review decisions, ledger pushes and transfers.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action names a workflow event.
type Action string

const (
	ActionRegistered     Action = "registered"
	ActionReviewed       Action = "reviewed"
	ActionChainPushed    Action = "chain_pushed"
	ActionChainConfirmed Action = "chain_confirmed"
	ActionCodeIssued     Action = "transfer_code_issued"
	ActionTransferred    Action = "transferred"
)

// Event is one workflow event about a content hash.
type Event struct {
	ID          string            `json:"id"`
	Action      Action            `json:"action"`
	ContentHash string            `json:"content_hash,omitempty"`
	Actor       string            `json:"actor,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Details     map[string]string `json:"details,omitempty"`
}

// Recorder accepts workflow events.
type Recorder interface {
	Record(ctx context.Context, evt Event) error
}

// NewEvent stamps an event with a fresh id.
func NewEvent(action Action, contentHash, actor string, details map[string]string) Event {
	return Event{
		ID:          uuid.New().String(),
		Action:      action,
		ContentHash: contentHash,
		Actor:       actor,
		Details:     details,
	}
}

// WriterRecorder writes events as "AUDIT: {json}" lines.
type WriterRecorder struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewWriterRecorder writes to w, or stdout when w is nil.
func NewWriterRecorder(w io.Writer) *WriterRecorder {
	if w == nil {
		w = os.Stdout
	}
	return &WriterRecorder{writer: w, clock: time.Now}
}

func (r *WriterRecorder) Record(_ context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = r.clock().UTC()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.writer.Write(append(append([]byte("AUDIT: "), b...), '\n'))
	return err
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }

var (
	_ Recorder = (*WriterRecorder)(nil)
	_ Recorder = (*Log)(nil)
	_ Recorder = Discard{}
)
