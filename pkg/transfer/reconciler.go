// Package transfer finalizes ownership transfers that completed on the
// ledger. The ledger is the only authority on who owns a title; the local
// record is reset to a fresh approval epoch once the ledger agrees.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/observability"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/transfercode"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// Reconciler checks transfers against the ledger and resets records.
type Reconciler struct {
	reader      chain.Reader
	codes       *transfercode.Issuer
	callTimeout time.Duration
	clock       func() time.Time
	logger      *slog.Logger
	metrics     *observability.Metrics
}

func NewReconciler(reader chain.Reader, codes *transfercode.Issuer) *Reconciler {
	return &Reconciler{
		reader:      reader,
		codes:       codes,
		callTimeout: 15 * time.Second,
		clock:       time.Now,
		logger:      slog.Default().With("component", "transfer"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

func (r *Reconciler) WithCallTimeout(d time.Duration) *Reconciler {
	if d > 0 {
		r.callTimeout = d
	}
	return r
}

func (r *Reconciler) WithLogger(logger *slog.Logger) *Reconciler {
	r.logger = logger
	return r
}

func (r *Reconciler) WithMetrics(m *observability.Metrics) *Reconciler {
	r.metrics = m
	return r
}

// Authorize runs every check a transfer must pass and returns the ledger
// owner to record. It consumes nothing; callers Redeem the code once the
// reset record is persisted.
func (r *Reconciler) Authorize(ctx context.Context, hash, newOwner, code string) (string, error) {
	target, err := wallet.Normalize(newOwner)
	if err != nil {
		return "", fmt.Errorf("%w: new owner wallet: %v", property.ErrValidation, err)
	}

	if code != "" {
		if r.codes == nil {
			return "", fmt.Errorf("%w: transfer codes are not configured", property.ErrValidation)
		}
		c, err := r.codes.Check(ctx, code)
		if err != nil {
			return "", err
		}
		if !wallet.Equal(c.Wallet, target) {
			return "", fmt.Errorf("%w: code is bound to %s", property.ErrCodeMismatch, c.Wallet)
		}
	}

	owner, err := r.ledgerOwner(ctx, hash)
	if err != nil {
		return "", err
	}
	if !wallet.IsReal(owner) {
		return "", fmt.Errorf("%w: %s", property.ErrNoLedgerOwner, hash)
	}
	if !wallet.Equal(owner, target) {
		return "", &property.LedgerMismatchError{Expected: target, Found: owner}
	}
	return owner, nil
}

// Redeem marks code used. An empty code is a no-op.
func (r *Reconciler) Redeem(ctx context.Context, code string) error {
	if code == "" {
		return nil
	}
	if r.codes == nil {
		return fmt.Errorf("%w: transfer codes are not configured", property.ErrValidation)
	}
	return r.codes.Redeem(ctx, code)
}

func (r *Reconciler) ledgerOwner(ctx context.Context, hash string) (string, error) {
	if r.reader == nil {
		return "", fmt.Errorf("%w: no ledger reader configured", property.ErrLedgerUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	owner, err := r.reader.Owner(ctx, hash)
	if err != nil {
		if !errors.Is(err, property.ErrLedgerUnavailable) {
			err = fmt.Errorf("%w: %v", property.ErrLedgerUnavailable, err)
		}
		return "", err
	}
	return owner, nil
}

// Apply starts a new epoch on rec owned by ledgerOwner. It has no side
// effects and may run once per write attempt.
func (r *Reconciler) Apply(rec property.Record, ledgerOwner string) property.Record {
	return property.Reconcile(rec.ResetEpoch(ledgerOwner, r.clock().UTC()))
}

// Completed reports a transfer whose reset record was persisted.
func (r *Reconciler) Completed(ctx context.Context, prevOwner string, rec property.Record) {
	r.metrics.TransferCompleted(ctx)
	r.logger.InfoContext(ctx, "ownership transfer completed",
		"content_hash", rec.ContentHash,
		"from", prevOwner,
		"to", rec.CurrentOwnerWallet,
		"transfer_count", rec.TransferCount,
	)
}

// Complete authorizes the transfer, redeems the code and returns rec reset
// for the new owner. On any error rec is returned unchanged.
func (r *Reconciler) Complete(ctx context.Context, rec property.Record, newOwner, code string) (property.Record, error) {
	owner, err := r.Authorize(ctx, rec.ContentHash, newOwner, code)
	if err != nil {
		return rec, err
	}
	next := r.Apply(rec, owner)
	if err := r.Redeem(ctx, code); err != nil {
		return rec, err
	}
	r.Completed(ctx, rec.CurrentOwnerWallet, next)
	return next, nil
}

// Validate checks that wallet may start a transfer of hash: the ledger
// must hold the property as registered and owned by wallet.
func (r *Reconciler) Validate(ctx context.Context, hash, addr string) (chain.Property, error) {
	w, err := wallet.Normalize(addr)
	if err != nil {
		return chain.Property{}, fmt.Errorf("%w: wallet: %v", property.ErrValidation, err)
	}
	if r.reader == nil {
		return chain.Property{}, fmt.Errorf("%w: no ledger reader configured", property.ErrLedgerUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	p, err := chain.LookupProperty(ctx, r.reader, hash)
	if err != nil {
		return chain.Property{}, err
	}
	if p.Status != chain.PropertyStatusRegistered {
		return p, fmt.Errorf("%w: %s has status %d", property.ErrNotRegistered, hash, p.Status)
	}
	if !wallet.Equal(p.Owner, w) {
		return p, fmt.Errorf("%w: %s is owned by %s", property.ErrNotOwner, hash, p.Owner)
	}
	return p, nil
}
