package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("audit entry not found")
	ErrChainBroken   = errors.New("audit hash chain is broken")
)

const genesis = "genesis"

// Entry is an event sealed into the chain.
type Entry struct {
	Sequence     uint64 `json:"sequence"`
	Event        Event  `json:"event"`
	PayloadHash  string `json:"payload_hash"`
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// Log is an in-memory append-only event log. Each entry's hash covers the
// previous entry's hash, so any edit or removal breaks VerifyChain.
type Log struct {
	mu       sync.RWMutex
	entries  []*Entry
	byID     map[string]*Entry
	head     string
	clock    func() time.Time
	handlers []func(*Entry)
}

func NewLog() *Log {
	return &Log{
		byID:  make(map[string]*Entry),
		head:  genesis,
		clock: time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// OnAppend registers a handler called for each new entry.
func (l *Log) OnAppend(h func(*Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Record appends evt.
func (l *Log) Record(_ context.Context, evt Event) error {
	_, err := l.Append(evt)
	return err
}

// Append seals evt into the chain and returns its entry.
func (l *Log) Append(evt Event) (*Entry, error) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = l.clock().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}

	e := &Entry{
		Sequence:     uint64(len(l.entries)) + 1,
		Event:        evt,
		PayloadHash:  sum(payload),
		PreviousHash: l.head,
	}
	if e.EntryHash, err = entryHash(e); err != nil {
		return nil, err
	}

	l.entries = append(l.entries, e)
	l.byID[evt.ID] = e
	l.head = e.EntryHash

	for _, h := range l.handlers {
		h(e)
	}
	return e, nil
}

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

func entryHash(e *Entry) (string, error) {
	data, err := json.Marshal(struct {
		Sequence     uint64 `json:"sequence"`
		PayloadHash  string `json:"payload_hash"`
		PreviousHash string `json:"previous_hash"`
	}{e.Sequence, e.PayloadHash, e.PreviousHash})
	if err != nil {
		return "", fmt.Errorf("marshal entry for hashing: %w", err)
	}
	return sum(data), nil
}

// Get returns the entry for an event id.
func (l *Log) Get(id string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// Head returns the current chain head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

func (l *Log) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	ContentHash string
	Action      Action
	Since       time.Time
	Limit       int
}

func (f Filter) matches(e *Entry) bool {
	if f.ContentHash != "" && e.Event.ContentHash != f.ContentHash {
		return false
	}
	if f.Action != "" && e.Event.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.Event.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Query returns matching entries oldest first.
func (l *Log) Query(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range l.entries {
		if !f.matches(e) {
			continue
		}
		out = append(out, *e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// VerifyChain recomputes every payload and entry hash.
func (l *Log) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verify(l.entries, genesis)
}

func verify(entries []*Entry, prev string) error {
	for i, e := range entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: entry %d has previous_hash %s, expected %s",
				ErrChainBroken, i, e.PreviousHash, prev)
		}
		payload, err := json.Marshal(e.Event)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, i, err)
		}
		if sum(payload) != e.PayloadHash {
			return fmt.Errorf("%w: entry %d payload modified", ErrChainBroken, i)
		}
		computed, err := entryHash(e)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, i, err)
		}
		if computed != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i)
		}
		prev = e.EntryHash
	}
	return nil
}

// Bundle is an exportable slice of the chain.
type Bundle struct {
	BundleID   string    `json:"bundle_id"`
	CreatedAt  time.Time `json:"created_at"`
	Entries    []Entry   `json:"entries"`
	ChainHead  string    `json:"chain_head"`
	BundleHash string    `json:"bundle_hash"`
}

// Export bundles the entries matching f.
func (l *Log) Export(f Filter) (*Bundle, error) {
	entries := l.Query(f)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries match filter", ErrEntryNotFound)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return &Bundle{
		BundleID:   uuid.New().String(),
		CreatedAt:  l.clock().UTC(),
		Entries:    entries,
		ChainHead:  entries[len(entries)-1].EntryHash,
		BundleHash: sum(data),
	}, nil
}

// VerifyBundle checks the bundle hash and every entry's own hashes. Entries
// from a filtered export need not be contiguous, so links are not checked.
func VerifyBundle(b *Bundle) error {
	if b == nil || len(b.Entries) == 0 {
		return fmt.Errorf("bundle is empty")
	}
	data, err := json.Marshal(b.Entries)
	if err != nil {
		return err
	}
	if sum(data) != b.BundleHash {
		return fmt.Errorf("%w: bundle hash mismatch", ErrChainBroken)
	}
	for i := range b.Entries {
		e := &b.Entries[i]
		if err := verify([]*Entry{e}, e.PreviousHash); err != nil {
			return err
		}
	}
	return nil
}
