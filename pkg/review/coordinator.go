// Package review applies reviewing-role decisions to property records.
//
// A role decides at most once per epoch. Resubmissions are reported as
// OutcomeAlreadyDecided and leave the record untouched; decisions against a
// record whose workflow is approved or rejected fail with ErrTerminalState.
package review

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// Outcome describes what a decision did to the record.
type Outcome string

const (
	OutcomeRecorded                  Outcome = "recorded"
	OutcomeAlreadyDecided            Outcome = "already_decided"
	OutcomeRejected                  Outcome = "rejected"
	OutcomeQuorumReachedPendingChain Outcome = "quorum_reached_pending_chain"
	OutcomeApproved                  Outcome = "approved"
)

// Request is one role's decision on a record.
type Request struct {
	Role        property.Role
	Verdict     property.Verdict
	Reason      string
	ActorWallet string
}

// Result carries the updated record and what happened. Existing is set only
// for OutcomeAlreadyDecided.
type Result struct {
	Record   property.Record
	Outcome  Outcome
	Existing property.Decision
}

// Message is a human-readable summary of the outcome.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeAlreadyDecided:
		return fmt.Sprintf("already reviewed this request as %s", r.Existing.Verdict)
	case OutcomeRejected:
		return "request rejected (2 rejects reached)"
	case OutcomeQuorumReachedPendingChain:
		return "2 approvals received; awaiting ledger registration"
	case OutcomeApproved:
		return "2 approvals received; already confirmed on the ledger"
	}
	return "review saved; waiting for more decisions"
}

// Coordinator validates and applies decisions. It performs no I/O; callers
// persist the returned record under their per-record serialization.
type Coordinator struct {
	clock  func() time.Time
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator using the wall clock.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		clock:  time.Now,
		logger: slog.Default().With("component", "review"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// WithLogger overrides the logger.
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	c.logger = logger
	return c
}

// Validate checks the request without looking at any record.
func (c *Coordinator) Validate(req Request) (Request, error) {
	role, err := property.ParseRole(string(req.Role))
	if err != nil {
		return req, err
	}
	req.Role = role
	if req.Verdict != property.VerdictApprove && req.Verdict != property.VerdictReject {
		return req, fmt.Errorf("%w: decision must be approve or reject", property.ErrValidation)
	}
	req.Reason = property.NormalizeText(req.Reason)
	if req.Verdict == property.VerdictReject && req.Reason == "" {
		return req, fmt.Errorf("%w: rejection reason is required", property.ErrValidation)
	}
	if req.Verdict == property.VerdictApprove {
		req.Reason = ""
	}
	if req.ActorWallet != "" {
		actor, err := wallet.Normalize(req.ActorWallet)
		if err != nil {
			return req, fmt.Errorf("%w: actor wallet: %v", property.ErrValidation, err)
		}
		req.ActorWallet = actor
	}
	return req, nil
}

// Decide applies req to rec.
func (c *Coordinator) Decide(rec property.Record, req Request) (Result, error) {
	req, err := c.Validate(req)
	if err != nil {
		return Result{Record: rec}, err
	}

	rec = property.Reconcile(rec)
	if rec.Status.Terminal() {
		return Result{Record: rec}, fmt.Errorf("%w: request already %s", property.ErrTerminalState, rec.Status)
	}

	if existing := rec.Decisions.Get(req.Role); existing.Decided() {
		c.logger.Info("role already decided",
			"content_hash", rec.ContentHash,
			"role", req.Role,
			"decision", existing.Verdict,
		)
		return Result{Record: rec, Outcome: OutcomeAlreadyDecided, Existing: existing}, nil
	}

	if err := rec.Decisions.Set(req.Role, property.Decision{
		Verdict:     req.Verdict,
		Reason:      req.Reason,
		ActorWallet: req.ActorWallet,
		DecidedAt:   c.clock(),
	}); err != nil {
		return Result{Record: rec}, err
	}
	rec = property.Reconcile(rec)

	res := Result{Record: rec, Outcome: OutcomeRecorded}
	switch rec.Status {
	case property.StatusRejected:
		res.Outcome = OutcomeRejected
	case property.StatusApprovedPendingChain:
		res.Record.ClearChain()
		res.Outcome = OutcomeQuorumReachedPendingChain
	case property.StatusApproved:
		res.Outcome = OutcomeApproved
	}

	c.logger.Info("review decision applied",
		"content_hash", rec.ContentHash,
		"role", req.Role,
		"decision", req.Verdict,
		"outcome", res.Outcome,
		"approvals", rec.ApprovalCount,
		"rejects", rec.RejectCount,
	)
	return res, nil
}
