package chainsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// Store is the record persistence the poller syncs through.
type Store interface {
	List(ctx context.Context) ([]property.Record, error)
	UpdateIfVersion(ctx context.Context, rec property.Record) (property.Record, error)
}

// Poller runs Sync over every stored record on a fixed interval.
type Poller struct {
	agent    *Agent
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(agent *Agent, store Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		agent:    agent,
		store:    store,
		interval: interval,
		logger:   slog.Default().With("component", "chainsync.poller"),
	}
}

// Run syncs once immediately, then every interval until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.WarnContext(ctx, "sync pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce syncs every record and persists the reconciled result of the ones
// that changed or whose derived fields drifted. Records modified concurrently
// are skipped; the next pass picks them up.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	recs, err := p.store.List(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		synced, changed := p.agent.Sync(ctx, rec)
		if !changed && !property.Drifted(synced) {
			continue
		}
		if _, err := p.store.UpdateIfVersion(ctx, property.Reconcile(synced)); err != nil {
			if errors.Is(err, property.ErrConflict) {
				p.logger.DebugContext(ctx, "sync dropped on conflict", "content_hash", rec.ContentHash)
				continue
			}
			return updated, err
		}
		updated++
	}
	if updated > 0 {
		p.logger.InfoContext(ctx, "sync pass complete", "records", len(recs), "updated", updated)
	}
	return updated, nil
}
