// Package chain defines the ledger read and write interfaces the title
// workflow consumes, independent of any particular ledger client.
package chain

import (
	"context"
	"fmt"
)

// Verification is the tri-state answer to "is this hash verified on the ledger".
// Unavailable means the ledger could not be asked, not that the answer was no.
type Verification int

const (
	VerificationUnavailable Verification = iota
	VerificationUnverified
	VerificationVerified
)

func (v Verification) String() string {
	switch v {
	case VerificationVerified:
		return "verified"
	case VerificationUnverified:
		return "unverified"
	}
	return "unavailable"
}

// Known reports whether the ledger actually answered.
func (v Verification) Known() bool {
	return v != VerificationUnavailable
}

// Reader is the minimal hash-indexed ledger read interface.
type Reader interface {
	// Owner returns the lowercase owner address of hash, or "" when the
	// ledger records no real owner.
	Owner(ctx context.Context, hash string) (string, error)
	// IsVerified reports the ledger's verification flag for hash.
	IsVerified(ctx context.Context, hash string) (bool, error)
}

// PropertyStatus mirrors the ledger's per-property status code.
type PropertyStatus uint8

const (
	PropertyStatusNone       PropertyStatus = 0
	PropertyStatusRequested  PropertyStatus = 1
	PropertyStatusRegistered PropertyStatus = 2
)

// Property is a ledger row for ledgers that index by numeric id.
type Property struct {
	ID            uint64         `json:"id"`
	Owner         string         `json:"owner"`
	Hash          string         `json:"hash,omitempty"`
	Status        PropertyStatus `json:"status"`
	ApprovalCount int            `json:"approval_count"`
}

// PropertyIndex is implemented by ledgers that index properties by numeric id.
type PropertyIndex interface {
	// ResolvePropertyID returns 0 when hash is unknown.
	ResolvePropertyID(ctx context.Context, hash string) (uint64, error)
	Property(ctx context.Context, id uint64) (Property, error)
}

// Receipt identifies a mined ledger transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// WriteStatus is the typed outcome of one entrypoint call.
type WriteStatus int

const (
	WriteRegistered WriteStatus = iota
	WriteAlreadyRegistered
	WriteReverted
	WriteUnavailable
)

func (s WriteStatus) String() string {
	switch s {
	case WriteRegistered:
		return "registered"
	case WriteAlreadyRegistered:
		return "already_registered"
	case WriteReverted:
		return "reverted"
	}
	return "unavailable"
}

// Succeeded reports whether the hash is registered after the call.
func (s WriteStatus) Succeeded() bool {
	return s == WriteRegistered || s == WriteAlreadyRegistered
}

// WriteResult is what an Entrypoint returns; Err is set unless Succeeded.
type WriteResult struct {
	Status  WriteStatus
	Receipt Receipt
	Err     error
}

// Entrypoint is one "register this hash" call strategy.
type Entrypoint interface {
	Name() string
	Register(ctx context.Context, hash string) WriteResult
}

// Registrar exposes the ordered registration entrypoints of a writable ledger.
type Registrar interface {
	// SignerConfigured reports whether a signing credential is available.
	SignerConfigured() bool
	Entrypoints() []Entrypoint
}

// Transferor moves ledger ownership of hash to newOwner.
type Transferor interface {
	Transfer(ctx context.Context, hash, newOwner string) (Receipt, error)
}

// ReadVerification collapses a verification read into the tri-state,
// mapping any read failure to VerificationUnavailable.
func ReadVerification(ctx context.Context, r Reader, hash string) (Verification, error) {
	ok, err := r.IsVerified(ctx, hash)
	if err != nil {
		return VerificationUnavailable, fmt.Errorf("read verification: %w", err)
	}
	if ok {
		return VerificationVerified, nil
	}
	return VerificationUnverified, nil
}
