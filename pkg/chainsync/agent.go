// Package chainsync pulls ledger ownership and verification into property
// records. Sync is best-effort: a failed ledger read leaves the record as it
// was and is never reported to the caller.
package chainsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/observability"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// Agent refreshes records from a ledger reader.
type Agent struct {
	reader  chain.Reader
	clock   func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewAgent(reader chain.Reader) *Agent {
	return &Agent{
		reader: reader,
		clock:  time.Now,
		logger: slog.Default().With("component", "chainsync"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (a *Agent) WithClock(clock func() time.Time) *Agent {
	a.clock = clock
	return a
}

func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	a.logger = logger
	return a
}

func (a *Agent) WithMetrics(m *observability.Metrics) *Agent {
	a.metrics = m
	return a
}

// Sync returns rec updated from the ledger and whether any field changed.
//
// A new non-empty ledger owner replaces the local owner; when the previous
// owner was a real address the change is counted as a transfer that happened
// outside this service. The verification flag follows the ledger, stamping
// VerifiedAt on false to true and clearing the verification metadata on true
// to false. Ownership and
// verification are read independently; either read may fail alone.
func (a *Agent) Sync(ctx context.Context, rec property.Record) (property.Record, bool) {
	if a.reader == nil || rec.ContentHash == "" {
		return rec, false
	}
	now := a.clock().UTC()
	changed := false

	owner, err := a.reader.Owner(ctx, rec.ContentHash)
	if err != nil {
		a.logger.WarnContext(ctx, "ledger owner read failed", "content_hash", rec.ContentHash, "error", err)
	} else if owner != "" && !wallet.Equal(owner, rec.CurrentOwnerWallet) {
		prev := rec.CurrentOwnerWallet
		rec.CurrentOwnerWallet = owner
		if wallet.IsReal(prev) {
			rec.TransferCount++
			rec.LastTransferAt = now
			a.logger.InfoContext(ctx, "external transfer detected",
				"content_hash", rec.ContentHash, "from", prev, "to", owner)
		}
		changed = true
	}

	v, err := chain.ReadVerification(ctx, a.reader, rec.ContentHash)
	a.metrics.LedgerRead(ctx, v.String())
	if err != nil {
		a.logger.WarnContext(ctx, "ledger verification read failed",
			"content_hash", rec.ContentHash, "verification", v.String(), "error", err)
	} else if verified := v == chain.VerificationVerified; verified != rec.Verified {
		if verified {
			rec.Verified = true
			rec.VerifiedAt = now
		} else {
			rec.ClearVerification()
		}
		changed = true
	}

	if changed {
		a.metrics.SyncChanged(ctx)
	}
	return rec, changed
}
