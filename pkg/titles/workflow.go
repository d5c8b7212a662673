package titles

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/review"
)

// ReviewResult is the outcome of a review decision. PushErr is set when
// quorum was reached, an automatic ledger push was attempted and it failed;
// the decision itself is still saved.
type ReviewResult struct {
	review.Result
	PushErr error
}

// Review records one role's decision on hash.
func (s *Service) Review(ctx context.Context, hash string, req review.Request) (ReviewResult, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return ReviewResult{}, err
	}
	if req, err = s.deps.Review.Validate(req); err != nil {
		return ReviewResult{}, err
	}

	unlock := s.locks.Lock(hash)
	defer unlock()

	var res review.Result
	rec, err := s.update(ctx, hash, func(cur property.Record) (property.Record, error) {
		r, err := s.deps.Review.Decide(cur, req)
		if err != nil {
			return r.Record, err
		}
		res = r
		return r.Record, nil
	})
	if err != nil {
		return ReviewResult{Result: review.Result{Record: rec}}, err
	}
	res.Record = rec
	out := ReviewResult{Result: res}

	s.deps.Metrics.ReviewOutcome(ctx, string(req.Role), string(res.Outcome))
	if res.Outcome != review.OutcomeAlreadyDecided {
		s.record(ctx, audit.ActionReviewed, hash, string(req.Role), map[string]string{
			"decision": string(req.Verdict),
			"outcome":  string(res.Outcome),
			"actor":    req.ActorWallet,
		})
	}

	if res.Outcome == review.OutcomeQuorumReachedPendingChain && s.autoPush && s.deps.Push.SignerConfigured() {
		pushed, err := s.push(ctx, hash)
		if err != nil {
			s.logger.WarnContext(ctx, "automatic ledger push failed; record stays pending chain",
				"content_hash", hash, "error", err)
			out.PushErr = err
		} else {
			out.Record = pushed
			out.Outcome = review.OutcomeApproved
		}
	}
	return out, nil
}

// RetryChainPush pushes a quorum-approved record to the ledger. On failure
// the stored record is left as it was and the call may be repeated.
func (s *Service) RetryChainPush(ctx context.Context, hash string) (property.Record, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return property.Record{}, err
	}
	unlock := s.locks.Lock(hash)
	defer unlock()
	return s.push(ctx, hash)
}

// push runs under the hash lock. The ledger call completes before the record
// is written; a version conflict re-pushes, which the ledger treats as a
// duplicate registration.
func (s *Service) push(ctx context.Context, hash string) (property.Record, error) {
	rec, err := s.update(ctx, hash, func(cur property.Record) (property.Record, error) {
		return s.deps.Push.Push(ctx, cur)
	})
	if err != nil {
		return rec, err
	}
	s.record(ctx, audit.ActionChainPushed, hash, "", map[string]string{"tx_hash": rec.ChainTxHash})
	return rec, nil
}

// ConfirmChainPush finalizes a record whose ledger registration was signed
// by the client's own wallet.
func (s *Service) ConfirmChainPush(ctx context.Context, hash, txHash string) (property.Record, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return property.Record{}, err
	}
	rec, err := s.mutate(ctx, hash, func(cur property.Record) (property.Record, error) {
		return s.deps.Push.Confirm(ctx, cur, txHash)
	})
	if err != nil {
		return rec, err
	}
	s.record(ctx, audit.ActionChainConfirmed, hash, "", map[string]string{"tx_hash": rec.ChainTxHash})
	return rec, nil
}

// Get returns the stored record for hash.
func (s *Service) Get(ctx context.Context, hash string) (property.Record, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return property.Record{}, err
	}
	rec, err := s.deps.Records.Get(ctx, hash)
	if err != nil {
		return property.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}
