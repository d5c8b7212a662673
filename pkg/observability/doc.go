// Package observability provides OpenTelemetry tracing and metrics for the
// title service.
//
// Initialize the provider at startup; when disabled the global no-op
// providers are used and every instrument is still safe to call:
//
//	p, err := observability.New(ctx, &observability.Config{Enabled: cfg.OTelEnabled, OTLPEndpoint: cfg.OTelEndpoint})
//	defer p.Shutdown(ctx)
//
// Wrap operations to get a span plus rate, error and duration metrics:
//
//	ctx, done := p.TrackOperation(ctx, "titles.review", observability.AttrContentHash.String(hash))
//	defer func() { done(err) }()
//
// Domain counters live on p.Metrics().
package observability
