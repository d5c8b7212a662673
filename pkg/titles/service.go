// Package titles is the title-workflow service: it serializes every
// mutation of a record by content hash and composes review, ledger push,
// ledger sync and ownership transfer into the operations the API exposes.
package titles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/chainpush"
	"github.com/Mindburn-Labs/titlevault/pkg/chainsync"
	"github.com/Mindburn-Labs/titlevault/pkg/contentstore"
	"github.com/Mindburn-Labs/titlevault/pkg/identity"
	"github.com/Mindburn-Labs/titlevault/pkg/observability"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/review"
	"github.com/Mindburn-Labs/titlevault/pkg/store"
	"github.com/Mindburn-Labs/titlevault/pkg/transfer"
	"github.com/Mindburn-Labs/titlevault/pkg/transfercode"
)

// DefaultMaxAttempts bounds the read-modify-write retries on a version conflict.
const DefaultMaxAttempts = 3

// Deps are the collaborators a Service composes. Records, Review, Push, Sync,
// Transfers and Codes are required.
type Deps struct {
	Records   store.RecordStore
	Content   contentstore.Store
	Reader    chain.Reader
	Review    *review.Coordinator
	Push      *chainpush.Gateway
	Sync      *chainsync.Agent
	Transfers *transfer.Reconciler
	Codes     *transfercode.Issuer
	Directory identity.Directory
	Audit     audit.Recorder
	Metrics   *observability.Metrics
}

// Service implements the title workflow operations.
type Service struct {
	deps Deps

	locks       *store.Locker
	maxAttempts int
	autoPush    bool
	clock       func() time.Time
	logger      *slog.Logger
}

func New(d Deps) *Service {
	if d.Audit == nil {
		d.Audit = audit.Discard{}
	}
	return &Service{
		deps:        d,
		locks:       store.NewLocker(),
		maxAttempts: DefaultMaxAttempts,
		clock:       time.Now,
		logger:      slog.Default().With("component", "titles"),
	}
}

// WithAutoPush makes Review push to the ledger as soon as quorum is reached,
// when a server-side signer is configured.
func (s *Service) WithAutoPush(enabled bool) *Service {
	s.autoPush = enabled
	return s
}

func (s *Service) WithMaxAttempts(n int) *Service {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

func normalizeHash(hash string) (string, error) {
	h := property.NormalizeHash(hash)
	if h == "" {
		return "", fmt.Errorf("%w: content hash is required", property.ErrValidation)
	}
	return h, nil
}

// update re-reads the record, applies fn and writes the result with a
// compare-and-set, retrying the whole cycle on a version conflict. The caller
// holds the hash lock. Records fn leaves unchanged are not written.
func (s *Service) update(ctx context.Context, hash string, fn func(property.Record) (property.Record, error)) (property.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		cur, err := s.deps.Records.Get(ctx, hash)
		if err != nil {
			return property.Record{}, err
		}
		next, err := fn(cur)
		if err != nil {
			return next, err
		}
		if !changed(cur, next) {
			return next, nil
		}
		saved, err := s.deps.Records.UpdateIfVersion(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, property.ErrConflict) {
			return cur, err
		}
		lastErr = err
		s.logger.DebugContext(ctx, "record version conflict, retrying",
			"content_hash", hash, "attempt", attempt)
	}
	return property.Record{}, lastErr
}

// mutate is update under the per-hash lock.
func (s *Service) mutate(ctx context.Context, hash string, fn func(property.Record) (property.Record, error)) (property.Record, error) {
	unlock := s.locks.Lock(hash)
	defer unlock()
	return s.update(ctx, hash, fn)
}

func changed(a, b property.Record) bool {
	fa, errA := property.Fingerprint(a)
	fb, errB := property.Fingerprint(b)
	return errA != nil || errB != nil || fa != fb
}

func (s *Service) record(ctx context.Context, action audit.Action, hash, actor string, details map[string]string) {
	if err := s.deps.Audit.Record(ctx, audit.NewEvent(action, hash, actor, details)); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "action", action, "content_hash", hash, "error", err)
	}
}

