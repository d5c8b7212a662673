package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/review"
	"github.com/Mindburn-Labs/titlevault/pkg/titles"
	"github.com/Mindburn-Labs/titlevault/pkg/transfercode"
)

// Service is the title workflow the API drives.
type Service interface {
	Register(ctx context.Context, content []byte, filename, uploaderID, ownerWallet string) (titles.Registration, error)
	Verify(ctx context.Context, hash string) (titles.Verification, error)
	Get(ctx context.Context, hash string) (property.Record, error)
	ListForReviewers(ctx context.Context) ([]property.Record, error)
	ListForCitizen(ctx context.Context, ids []string, ownerWallet string) ([]property.Record, error)
	Review(ctx context.Context, hash string, req review.Request) (titles.ReviewResult, error)
	RetryChainPush(ctx context.Context, hash string) (property.Record, error)
	ConfirmChainPush(ctx context.Context, hash, txHash string) (property.Record, error)
	GenerateTransferCode(ctx context.Context, destination string) (transfercode.Code, error)
	ResolveTransferCode(ctx context.Context, code string) (transfercode.Resolution, error)
	CompleteTransfer(ctx context.Context, hash, newOwner, code string) (property.Record, error)
	ValidateTransfer(ctx context.Context, hash, addr string) (chain.Property, error)
	LookupOwner(ctx context.Context, hash string) (titles.OwnerInfo, error)
}

var _ Service = (*titles.Service)(nil)

// HealthFunc reports whether a dependency is reachable.
type HealthFunc func(ctx context.Context) error

// Server routes HTTP requests to a Service.
type Server struct {
	svc         Service
	audit       *audit.Log
	health      map[string]HealthFunc
	idempotency IdempotencyStorer
	limiter     *GlobalRateLimiter
	tracker     OperationTracker
	maxUpload   int64
	logger      *slog.Logger
}

// NewServer creates a Server for svc.
func NewServer(svc Service) *Server {
	return &Server{
		svc:         svc,
		health:      make(map[string]HealthFunc),
		idempotency: NewIdempotencyStore(24 * time.Hour),
		maxUpload:   32 << 20,
		logger:      slog.Default().With("component", "api"),
	}
}

// WithAudit exposes the audit log under /api/audit.
func (s *Server) WithAudit(log *audit.Log) *Server {
	s.audit = log
	return s
}

// WithHealthCheck adds a named dependency to /health.
func (s *Server) WithHealthCheck(name string, fn HealthFunc) *Server {
	s.health[name] = fn
	return s
}

// WithRateLimit enables per-IP rate limiting.
func (s *Server) WithRateLimit(rps, burst int) *Server {
	if rps > 0 {
		s.limiter = NewGlobalRateLimiter(rps, burst)
	}
	return s
}

// WithIdempotencyStore replaces the in-memory idempotency cache.
func (s *Server) WithIdempotencyStore(st IdempotencyStorer) *Server {
	s.idempotency = st
	return s
}

// WithMaxUpload bounds the size of uploaded documents.
func (s *Server) WithMaxUpload(n int64) *Server {
	s.maxUpload = n
	return s
}

// WithTelemetry records every request through t.
func (s *Server) WithTelemetry(t OperationTracker) *Server {
	s.tracker = t
	return s
}

// WithLogger overrides the logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/files/upload", s.handleUpload)
	mux.HandleFunc("GET /api/files", s.handleListForReviewers)
	mux.HandleFunc("GET /api/files/{userId}", s.handleListForCitizen)
	mux.HandleFunc("PATCH /api/files/review", s.handleReview)
	mux.HandleFunc("PATCH /api/files/retry-chain-push", s.handleRetryChainPush)
	mux.HandleFunc("PATCH /api/files/confirm-chain-push", s.handleConfirmChainPush)
	mux.HandleFunc("PATCH /api/files/transfer-owner", s.handleTransferOwner)

	mux.HandleFunc("POST /api/verify", s.handleVerify)
	mux.HandleFunc("GET /api/property/{hash}", s.handleLookupOwner)

	mux.HandleFunc("POST /api/transfer/generate-code", s.handleGenerateCode)
	mux.HandleFunc("GET /api/transfer/resolve/{code}", s.handleResolveCode)
	mux.HandleFunc("POST /api/transfer/validate", s.handleValidateTransfer)

	if s.audit != nil {
		mux.HandleFunc("GET /api/audit", s.handleAudit)
	}

	var h http.Handler = mux
	if s.idempotency != nil {
		h = IdempotencyMiddleware(s.idempotency)(h)
	}
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	if s.tracker != nil {
		h = Telemetry(s.tracker, h)
	}
	h = AccessLog(s.logger, h)
	return RequestID(h)
}
