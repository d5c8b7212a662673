// Package property defines the off-chain property-title record and the
// pure workflow reconciliation that derives its approval state.
package property

import (
	"fmt"
	"strings"
	"time"
)

// Role is one of the three fixed reviewing authorities.
type Role string

const (
	RoleRegistrar      Role = "registrar"
	RoleNotary         Role = "notary"
	RoleLocalAuthority Role = "localAuthority"
)

// Roles lists every reviewing role in canonical order.
var Roles = [...]Role{RoleRegistrar, RoleNotary, RoleLocalAuthority}

// ParseRole accepts a role identifier case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "registrar":
		return RoleRegistrar, nil
	case "notary":
		return RoleNotary, nil
	case "localauthority", "local_authority", "local-authority":
		return RoleLocalAuthority, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// Verdict is a single role's decision. The zero value means undecided.
type Verdict string

const (
	VerdictNone    Verdict = ""
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// ParseVerdict accepts "approve" or "reject" case-insensitively.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve":
		return VerdictApprove, nil
	case "reject":
		return VerdictReject, nil
	}
	return VerdictNone, fmt.Errorf("%w: decision must be approve or reject, got %q", ErrValidation, s)
}

// Status is the workflow state of a record within the current epoch.
type Status string

const (
	StatusPending              Status = "pending"
	StatusApprovedPendingChain Status = "approved_pending_chain"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
)

// Terminal reports whether no further decisions are accepted this epoch.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// VerifiedByMultiRole marks verification obtained through role quorum and a ledger push.
const VerifiedByMultiRole = "multi-role"

// Quorum is the number of agreeing roles that changes workflow status.
const Quorum = 2

// Decision records what one role decided.
type Decision struct {
	Verdict     Verdict   `json:"decision,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ActorWallet string    `json:"actor_wallet,omitempty"`
	DecidedAt   time.Time `json:"decided_at,omitzero"`
}

// Decided reports whether the role has decided this epoch.
func (d Decision) Decided() bool {
	return d.Verdict != VerdictNone
}

// Decisions holds exactly one Decision per fixed role.
type Decisions struct {
	Registrar      Decision `json:"registrar"`
	Notary         Decision `json:"notary"`
	LocalAuthority Decision `json:"localAuthority"`
}

// Get returns the decision for role. Unknown roles yield the zero Decision.
func (d Decisions) Get(role Role) Decision {
	if p := d.slot(role); p != nil {
		return *p
	}
	return Decision{}
}

// Set stores dec under role.
func (d *Decisions) Set(role Role, dec Decision) error {
	p := d.slot(role)
	if p == nil {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	*p = dec
	return nil
}

func (d *Decisions) slot(role Role) *Decision {
	switch role {
	case RoleRegistrar:
		return &d.Registrar
	case RoleNotary:
		return &d.Notary
	case RoleLocalAuthority:
		return &d.LocalAuthority
	}
	return nil
}

// Count returns the number of approve and reject verdicts.
func (d Decisions) Count() (approvals, rejects int) {
	for _, dec := range [...]Decision{d.Registrar, d.Notary, d.LocalAuthority} {
		switch dec.Verdict {
		case VerdictApprove:
			approvals++
		case VerdictReject:
			rejects++
		}
	}
	return approvals, rejects
}

// Record is the off-chain review state of one property-title document,
// keyed by its content hash. Zero-valued strings and times mean "null".
type Record struct {
	ContentHash        string    `json:"content_hash"`
	Filename           string    `json:"filename,omitempty"`
	UploaderID         string    `json:"uploader_id"`
	CurrentOwnerWallet string    `json:"current_owner_wallet,omitempty"`
	TransferCount      int       `json:"transfer_count"`
	LastTransferAt     time.Time `json:"last_transfer_at,omitzero"`
	Verified           bool      `json:"verified"`
	VerifiedAt         time.Time `json:"verified_at,omitzero"`
	VerifiedBy         string    `json:"verified_by,omitempty"`
	Status             Status    `json:"workflow_status"`
	ApprovalCount      int       `json:"approval_count"`
	RejectCount        int       `json:"reject_count"`
	Decisions          Decisions `json:"role_decisions"`
	ChainTxHash        string    `json:"chain_tx_hash,omitempty"`
	ChainPushedAt      time.Time `json:"chain_pushed_at,omitzero"`
	CreatedAt          time.Time `json:"created_at"`

	// Version is the optimistic-concurrency counter maintained by the store.
	Version int64 `json:"version"`
}

// NewRecord returns a freshly uploaded record with every decision undecided.
func NewRecord(contentHash, uploaderID, filename, ownerWallet string, now time.Time) Record {
	return Reconcile(Record{
		ContentHash:        contentHash,
		Filename:           filename,
		UploaderID:         uploaderID,
		CurrentOwnerWallet: ownerWallet,
		Status:             StatusPending,
		CreatedAt:          now,
	})
}

// ClearChain forgets any previous ledger push.
func (r *Record) ClearChain() {
	r.ChainTxHash = ""
	r.ChainPushedAt = time.Time{}
}

// ClearVerification marks the record unverified and drops verification metadata.
func (r *Record) ClearVerification() {
	r.Verified = false
	r.VerifiedAt = time.Time{}
	r.VerifiedBy = ""
}

// ResetEpoch starts a fresh approval cycle for newOwner.
func (r Record) ResetEpoch(newOwner string, now time.Time) Record {
	r.CurrentOwnerWallet = newOwner
	r.ClearVerification()
	r.Status = StatusPending
	r.ApprovalCount = 0
	r.RejectCount = 0
	r.Decisions = Decisions{}
	r.ClearChain()
	r.TransferCount++
	r.LastTransferAt = now
	return r
}
