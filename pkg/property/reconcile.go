package property

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// Reconcile derives approval/reject counts and workflow status from the
// record's decisions. It is pure, total and idempotent, and never touches
// the decisions themselves.
func Reconcile(r Record) Record {
	r.ApprovalCount, r.RejectCount = r.Decisions.Count()

	switch {
	case r.RejectCount >= Quorum:
		r.Status = StatusRejected
		r.ClearVerification()
	case r.ApprovalCount >= Quorum:
		if r.Verified {
			r.Status = StatusApproved
		} else {
			r.Status = StatusApprovedPendingChain
		}
	default:
		r.Status = StatusPending
		if !r.Verified {
			r.VerifiedAt = time.Time{}
			r.VerifiedBy = ""
		}
	}
	return r
}

// Drifted reports whether stored derived fields disagree with Reconcile.
func Drifted(r Record) bool {
	c := Reconcile(r)
	return c.Status != r.Status ||
		c.ApprovalCount != r.ApprovalCount ||
		c.RejectCount != r.RejectCount ||
		c.Verified != r.Verified ||
		!c.VerifiedAt.Equal(r.VerifiedAt) ||
		c.VerifiedBy != r.VerifiedBy
}

// Fingerprint returns a canonical digest of the record's content,
// excluding the store-managed version.
func Fingerprint(r Record) (string, error) {
	r.Version = 0
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize record: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
