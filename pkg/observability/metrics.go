package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Title-domain semantic convention attributes.
var (
	AttrContentHash = attribute.Key("titlevault.content_hash")
	AttrRole        = attribute.Key("titlevault.review.role")
	AttrOutcome     = attribute.Key("titlevault.review.outcome")
	AttrEntrypoint  = attribute.Key("titlevault.chain.entrypoint")
	AttrResult      = attribute.Key("titlevault.result")
)

// Metrics holds the domain instruments. A nil *Metrics records nothing.
type Metrics struct {
	ledgerReads       metric.Int64Counter
	pushAttempts      metric.Int64Counter
	reviewOutcomes    metric.Int64Counter
	transfersComplete metric.Int64Counter
	syncChanges       metric.Int64Counter
}

// NewMetrics registers the domain instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ledgerReads, err = meter.Int64Counter("titlevault.ledger.reads",
		metric.WithDescription("Ledger verification reads by result"),
		metric.WithUnit("{read}"),
	); err != nil {
		return nil, err
	}
	if m.pushAttempts, err = meter.Int64Counter("titlevault.chain.push.attempts",
		metric.WithDescription("Registration entrypoint attempts by entrypoint and result"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}
	if m.reviewOutcomes, err = meter.Int64Counter("titlevault.review.outcomes",
		metric.WithDescription("Review decisions by outcome"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, err
	}
	if m.transfersComplete, err = meter.Int64Counter("titlevault.transfers.completed",
		metric.WithDescription("Ownership transfers finalized against the ledger"),
		metric.WithUnit("{transfer}"),
	); err != nil {
		return nil, err
	}
	if m.syncChanges, err = meter.Int64Counter("titlevault.sync.changes",
		metric.WithDescription("Records changed by ledger sync"),
		metric.WithUnit("{record}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// LedgerRead counts a verification read; result is verified, unverified or unavailable.
func (m *Metrics) LedgerRead(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.ledgerReads.Add(ctx, 1, metric.WithAttributes(AttrResult.String(result)))
}

// PushAttempt counts one registration entrypoint call.
func (m *Metrics) PushAttempt(ctx context.Context, entrypoint, result string) {
	if m == nil {
		return
	}
	m.pushAttempts.Add(ctx, 1, metric.WithAttributes(AttrEntrypoint.String(entrypoint), AttrResult.String(result)))
}

// ReviewOutcome counts a review decision.
func (m *Metrics) ReviewOutcome(ctx context.Context, role, outcome string) {
	if m == nil {
		return
	}
	m.reviewOutcomes.Add(ctx, 1, metric.WithAttributes(AttrRole.String(role), AttrOutcome.String(outcome)))
}

func (m *Metrics) TransferCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.transfersComplete.Add(ctx, 1)
}

func (m *Metrics) SyncChanged(ctx context.Context) {
	if m == nil {
		return
	}
	m.syncChanges.Add(ctx, 1)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span.
func SetSpanStatus(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
