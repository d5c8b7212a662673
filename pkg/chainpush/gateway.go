// Package chainpush registers approved records on the ledger.
//
// A push walks the registration entrypoints in order and accepts the first
// that leaves the hash registered. If every entrypoint fails the record is
// returned untouched, still approved_pending_chain, so the same call can be
// retried later.
package chainpush

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/observability"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// Gateway pushes records to the ledger.
type Gateway struct {
	registrar       chain.Registrar
	reader          chain.Reader
	plan            []chain.PlanStep
	contractVersion string
	callTimeout     time.Duration
	clock           func() time.Time
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewGateway creates a Gateway writing through registrar and confirming
// client-signed pushes through reader. Either may be nil.
func NewGateway(registrar chain.Registrar, reader chain.Reader) *Gateway {
	return &Gateway{
		registrar:   registrar,
		reader:      reader,
		plan:        chain.DefaultRegistrationPlan,
		callTimeout: 30 * time.Second,
		clock:       time.Now,
		logger:      slog.Default().With("component", "chainpush"),
	}
}

// WithPlan overrides the entrypoint order and the deployed contract version
// used to filter it.
func (g *Gateway) WithPlan(plan []chain.PlanStep, contractVersion string) *Gateway {
	if len(plan) > 0 {
		g.plan = plan
	}
	g.contractVersion = contractVersion
	return g
}

// WithCallTimeout bounds each entrypoint call.
func (g *Gateway) WithCallTimeout(d time.Duration) *Gateway {
	if d > 0 {
		g.callTimeout = d
	}
	return g
}

// WithClock overrides the clock for deterministic testing.
func (g *Gateway) WithClock(clock func() time.Time) *Gateway {
	g.clock = clock
	return g
}

func (g *Gateway) WithLogger(logger *slog.Logger) *Gateway {
	g.logger = logger
	return g
}

func (g *Gateway) WithMetrics(m *observability.Metrics) *Gateway {
	g.metrics = m
	return g
}

// SignerConfigured reports whether pushes can be signed server-side.
func (g *Gateway) SignerConfigured() bool {
	return g.registrar != nil && g.registrar.SignerConfigured()
}

// Push registers rec on the ledger and returns it finalized as approved.
func (g *Gateway) Push(ctx context.Context, rec property.Record) (property.Record, error) {
	rec = property.Reconcile(rec)
	if rec.ApprovalCount < property.Quorum {
		return rec, fmt.Errorf("%w: have %d", property.ErrInsufficientApprovals, rec.ApprovalCount)
	}
	if !g.SignerConfigured() {
		return rec, property.ErrSignerConfigMissing
	}

	eps, err := chain.SelectEntrypoints(g.plan, g.contractVersion, g.registrar.Entrypoints())
	if err != nil {
		return rec, fmt.Errorf("%w: %v", property.ErrSignerConfigMissing, err)
	}

	failed := &property.LedgerWriteFailedError{}
	for _, ep := range eps {
		if err := ctx.Err(); err != nil {
			failed.Attempts = append(failed.Attempts, property.Attempt{
				Entrypoint: ep.Name(),
				Err:        fmt.Errorf("%w: %v", property.ErrLedgerUnavailable, err),
			})
			break
		}

		res := g.register(ctx, ep, rec.ContentHash)
		g.metrics.PushAttempt(ctx, ep.Name(), res.Status.String())
		if res.Status.Succeeded() {
			g.logger.InfoContext(ctx, "ledger registration accepted",
				"content_hash", rec.ContentHash,
				"entrypoint", ep.Name(),
				"status", res.Status.String(),
				"tx_hash", res.Receipt.TxHash,
			)
			return g.finalize(rec, res.Receipt.TxHash), nil
		}

		g.logger.WarnContext(ctx, "ledger registration attempt failed",
			"content_hash", rec.ContentHash,
			"entrypoint", ep.Name(),
			"status", res.Status.String(),
			"error", res.Err,
		)
		failed.Attempts = append(failed.Attempts, property.Attempt{Entrypoint: ep.Name(), Err: res.Err})
	}
	return rec, failed
}

func (g *Gateway) register(ctx context.Context, ep chain.Entrypoint, hash string) chain.WriteResult {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	res := ep.Register(ctx, hash)
	if !res.Status.Succeeded() && res.Err == nil {
		res.Err = errors.New(res.Status.String())
	}
	return res
}

// Confirm finalizes a record the client registered with its own signer.
// The ledger must already show an owner for the hash.
func (g *Gateway) Confirm(ctx context.Context, rec property.Record, txHash string) (property.Record, error) {
	rec = property.Reconcile(rec)
	if rec.ApprovalCount < property.Quorum {
		return rec, fmt.Errorf("%w: have %d", property.ErrInsufficientApprovals, rec.ApprovalCount)
	}
	txHash, err := NormalizeTxHash(txHash)
	if err != nil {
		return rec, err
	}
	if g.reader == nil {
		return rec, fmt.Errorf("%w: no ledger reader configured", property.ErrLedgerUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	owner, err := g.reader.Owner(ctx, rec.ContentHash)
	if err != nil {
		if !errors.Is(err, property.ErrLedgerUnavailable) {
			err = fmt.Errorf("%w: %v", property.ErrLedgerUnavailable, err)
		}
		return rec, err
	}
	if owner == "" {
		return rec, fmt.Errorf("%w: %s is not registered yet", property.ErrNoLedgerOwner, rec.ContentHash)
	}

	g.logger.InfoContext(ctx, "client ledger registration confirmed",
		"content_hash", rec.ContentHash, "tx_hash", txHash, "owner", owner)
	return g.finalize(rec, txHash), nil
}

func (g *Gateway) finalize(rec property.Record, txHash string) property.Record {
	now := g.clock().UTC()
	rec.Verified = true
	rec.VerifiedAt = now
	rec.VerifiedBy = property.VerifiedByMultiRole
	if txHash != "" {
		rec.ChainTxHash = txHash
		rec.ChainPushedAt = now
	}
	return property.Reconcile(rec)
}

// NormalizeTxHash validates a 32-byte 0x-prefixed transaction hash and lowercases it.
func NormalizeTxHash(txHash string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(txHash))
	if !strings.HasPrefix(h, "0x") || len(h) != 66 {
		return "", fmt.Errorf("%w: transaction hash must be 0x followed by 64 hex digits", property.ErrValidation)
	}
	if _, err := hex.DecodeString(h[2:]); err != nil {
		return "", fmt.Errorf("%w: transaction hash is not hex", property.ErrValidation)
	}
	return h, nil
}
