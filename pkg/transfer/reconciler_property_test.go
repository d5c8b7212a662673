//go:build property

package transfer

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

func verdictGen() gopter.Gen {
	return gen.OneConstOf(property.VerdictNone, property.VerdictApprove, property.VerdictReject)
}

// TestCompleteAlwaysResetsEpoch checks that whatever the prior decisions,
// a completed transfer leaves no approvals, rejects or decisions behind.
func TestCompleteAlwaysResetsEpoch(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	f := newFixture(t)
	if _, err := f.ledger.Transfer(context.Background(), "QmA", bob); err != nil {
		t.Fatal(err)
	}

	properties.Property("complete resets counters and decisions", prop.ForAll(
		func(reg, not, auth property.Verdict, verified bool, transfers int) bool {
			rec := property.NewRecord("QmA", "user-1", "", signer, t0)
			rec.Decisions.Registrar.Verdict = reg
			rec.Decisions.Notary.Verdict = not
			rec.Decisions.LocalAuthority.Verdict = auth
			rec.Verified = verified
			rec.TransferCount = transfers
			rec = property.Reconcile(rec)

			got, err := f.rec.Complete(context.Background(), rec, bob, "")
			return err == nil &&
				got.ApprovalCount == 0 &&
				got.RejectCount == 0 &&
				got.Decisions == (property.Decisions{}) &&
				got.Status == property.StatusPending &&
				!got.Verified &&
				got.TransferCount == transfers+1
		},
		verdictGen(), verdictGen(), verdictGen(), gen.Bool(), gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
