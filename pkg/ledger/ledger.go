// Package ledger is an in-process, append-only title ledger.
//
// Every registration, verification and transfer is appended as an entry
// hash-chained to its predecessor; owner and verification state are derived
// from the log. It implements the chain read/write interfaces and backs
// LEDGER_MODE=local deployments and tests.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// EntryType categorizes ledger entries.
type EntryType string

const (
	EntryRegister EntryType = "REGISTER"
	EntryVerify   EntryType = "VERIFY"
	EntryTransfer EntryType = "TRANSFER"
)

var (
	ErrAlreadyRegistered = errors.New("hash already registered")
	ErrUnknownHash       = errors.New("hash not registered")
)

// Entry is an immutable, hash-chained entry.
type Entry struct {
	Sequence    uint64            `json:"sequence"`
	EntryType   EntryType         `json:"entry_type"`
	ContentHash string            `json:"content_hash"`
	PrevHash    string            `json:"prev_hash"`
	Timestamp   time.Time         `json:"timestamp"`
	Author      string            `json:"author,omitempty"`
	Data        map[string]string `json:"data"`
}

// OwnershipRecord is one owner in a property's history.
type OwnershipRecord struct {
	Owner     string    `json:"owner"`
	Timestamp time.Time `json:"timestamp"`
}

type row struct {
	prop     chain.Property
	verified bool
	history  []OwnershipRecord
}

// Ledger is an append-only, hash-chained title log.
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time

	signer      string
	byHash      map[string]*row
	byID        []*row
	entrypoints []string
	unavailable error
	failures    map[string]error
}

// NewLedger creates an empty ledger whose registrations are owned by signer.
// An empty signer yields a read-only ledger.
func NewLedger(signer string) *Ledger {
	if n, err := wallet.Normalize(signer); err == nil {
		signer = n
	}
	return &Ledger{
		entries:     make([]Entry, 0),
		headHash:    "genesis",
		clock:       time.Now,
		signer:      signer,
		byHash:      make(map[string]*row),
		entrypoints: []string{"requestRegistration", "registerProperty", "storeHash"},
		failures:    make(map[string]error),
	}
}

// WithClock overrides clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// WithEntrypoints sets the registration entrypoint names the ledger accepts.
func (l *Ledger) WithEntrypoints(names ...string) *Ledger {
	l.entrypoints = names
	return l
}

// SetUnavailable makes every call fail with err until cleared with nil.
func (l *Ledger) SetUnavailable(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unavailable = err
}

// FailEntrypoint makes the named registration entrypoint revert with err.
// A nil err clears the fault.
func (l *Ledger) FailEntrypoint(name string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, name)
		return
	}
	l.failures[name] = err
}

func (l *Ledger) append(entryType EntryType, author string, data map[string]string) (Entry, error) {
	seq := uint64(len(l.entries)) + 1
	contentHash, err := entryHash(seq, entryType, data, l.headHash)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Sequence:    seq,
		EntryType:   entryType,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		Timestamp:   l.clock(),
		Author:      author,
		Data:        data,
	}
	l.entries = append(l.entries, entry)
	l.headHash = contentHash
	return entry, nil
}

func entryHash(seq uint64, entryType EntryType, data map[string]string, prev string) (string, error) {
	hashInput := struct {
		Seq      uint64            `json:"seq"`
		Type     EntryType         `json:"type"`
		Data     map[string]string `json:"data"`
		PrevHash string            `json:"prev"`
	}{seq, entryType, data, prev}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canon)
	return "0x" + hex.EncodeToString(h[:]), nil
}

func (l *Ledger) checkAvailable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", property.ErrLedgerUnavailable, err)
	}
	if l.unavailable != nil {
		return fmt.Errorf("%w: %v", property.ErrLedgerUnavailable, l.unavailable)
	}
	return nil
}

func (l *Ledger) register(ctx context.Context, entrypoint, hash string) (chain.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(ctx); err != nil {
		return chain.Receipt{}, err
	}
	if err := l.failures[entrypoint]; err != nil {
		return chain.Receipt{}, err
	}
	if _, ok := l.byHash[hash]; ok {
		return chain.Receipt{}, ErrAlreadyRegistered
	}

	entry, err := l.append(EntryRegister, l.signer, map[string]string{"hash": hash, "owner": l.signer, "entrypoint": entrypoint})
	if err != nil {
		return chain.Receipt{}, err
	}
	r := &row{
		prop: chain.Property{
			ID:     uint64(len(l.byID)) + 1,
			Owner:  l.signer,
			Hash:   hash,
			Status: chain.PropertyStatusRegistered,
		},
		verified: true,
		history:  []OwnershipRecord{{Owner: l.signer, Timestamp: entry.Timestamp}},
	}
	l.byHash[hash] = r
	l.byID = append(l.byID, r)
	return chain.Receipt{TxHash: entry.ContentHash, BlockNumber: entry.Sequence}, nil
}

// SetVerified records a verification change for hash, as on-chain approvals would.
func (l *Ledger) SetVerified(hash string, verified bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.byHash[hash]
	if !ok {
		return ErrUnknownHash
	}
	if _, err := l.append(EntryVerify, "", map[string]string{"hash": hash, "verified": fmt.Sprint(verified)}); err != nil {
		return err
	}
	r.verified = verified
	if verified {
		r.prop.Status = chain.PropertyStatusRegistered
	} else {
		r.prop.Status = chain.PropertyStatusRequested
	}
	return nil
}

// Transfer moves ownership of hash to newOwner.
func (l *Ledger) Transfer(ctx context.Context, hash, newOwner string) (chain.Receipt, error) {
	owner, err := wallet.Normalize(newOwner)
	if err != nil {
		return chain.Receipt{}, fmt.Errorf("%w: %v", property.ErrValidation, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(ctx); err != nil {
		return chain.Receipt{}, err
	}
	r, ok := l.byHash[hash]
	if !ok {
		return chain.Receipt{}, ErrUnknownHash
	}
	entry, err := l.append(EntryTransfer, r.prop.Owner, map[string]string{"hash": hash, "from": r.prop.Owner, "to": owner})
	if err != nil {
		return chain.Receipt{}, err
	}
	r.prop.Owner = owner
	r.history = append(r.history, OwnershipRecord{Owner: owner, Timestamp: entry.Timestamp})
	return chain.Receipt{TxHash: entry.ContentHash, BlockNumber: entry.Sequence}, nil
}

// Owner implements chain.Reader.
func (l *Ledger) Owner(ctx context.Context, hash string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.checkAvailable(ctx); err != nil {
		return "", err
	}
	if r, ok := l.byHash[hash]; ok && wallet.IsReal(r.prop.Owner) {
		return r.prop.Owner, nil
	}
	return "", nil
}

// IsVerified implements chain.Reader.
func (l *Ledger) IsVerified(ctx context.Context, hash string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.checkAvailable(ctx); err != nil {
		return false, err
	}
	r, ok := l.byHash[hash]
	return ok && r.verified, nil
}

// ResolvePropertyID implements chain.PropertyIndex.
func (l *Ledger) ResolvePropertyID(ctx context.Context, hash string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.checkAvailable(ctx); err != nil {
		return 0, err
	}
	if r, ok := l.byHash[hash]; ok {
		return r.prop.ID, nil
	}
	return 0, nil
}

// Property implements chain.PropertyIndex.
func (l *Ledger) Property(ctx context.Context, id uint64) (chain.Property, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.checkAvailable(ctx); err != nil {
		return chain.Property{}, err
	}
	if id == 0 || id > uint64(len(l.byID)) {
		return chain.Property{}, fmt.Errorf("property %d: %w", id, ErrUnknownHash)
	}
	return l.byID[id-1].prop, nil
}

// History returns the ownership history of hash, oldest first.
func (l *Ledger) History(hash string) []OwnershipRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.byHash[hash]
	if !ok {
		return nil
	}
	return append([]OwnershipRecord(nil), r.history...)
}

// SignerConfigured implements chain.Registrar.
func (l *Ledger) SignerConfigured() bool {
	return l.signer != ""
}

// Entrypoints implements chain.Registrar.
func (l *Ledger) Entrypoints() []chain.Entrypoint {
	eps := make([]chain.Entrypoint, 0, len(l.entrypoints))
	for _, name := range l.entrypoints {
		eps = append(eps, entrypoint{ledger: l, name: name})
	}
	return eps
}

type entrypoint struct {
	ledger *Ledger
	name   string
}

func (e entrypoint) Name() string { return e.name }

func (e entrypoint) Register(ctx context.Context, hash string) chain.WriteResult {
	receipt, err := e.ledger.register(ctx, e.name, hash)
	switch {
	case err == nil:
		return chain.WriteResult{Status: chain.WriteRegistered, Receipt: receipt}
	case errors.Is(err, ErrAlreadyRegistered):
		return chain.WriteResult{Status: chain.WriteAlreadyRegistered}
	case errors.Is(err, property.ErrLedgerUnavailable):
		return chain.WriteResult{Status: chain.WriteUnavailable, Err: err}
	}
	return chain.WriteResult{Status: chain.WriteReverted, Err: err}
}

// Get retrieves an entry by sequence number.
func (l *Ledger) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := l.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify checks the integrity of the entire ledger chain.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := entryHash(entry.Sequence, entry.EntryType, entry.Data, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}

var (
	_ chain.Reader        = (*Ledger)(nil)
	_ chain.PropertyIndex = (*Ledger)(nil)
	_ chain.Registrar     = (*Ledger)(nil)
	_ chain.Transferor    = (*Ledger)(nil)
)
