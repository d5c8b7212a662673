package chainpush

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/ledger"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

const signer = "0x9999999999999999999999999999999999999999"

var (
	t0  = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now = t0.Add(time.Hour)
)

func fixedClock() time.Time { return now }

func approved(hash string) property.Record {
	rec := property.NewRecord(hash, "user-1", "deed.pdf", "", t0)
	rec.Decisions.Registrar = property.Decision{Verdict: property.VerdictApprove, DecidedAt: t0}
	rec.Decisions.Notary = property.Decision{Verdict: property.VerdictApprove, DecidedAt: t0}
	return property.Reconcile(rec)
}

func TestPush_FirstEntrypointWins(t *testing.T) {
	l := ledger.NewLedger(signer)
	g := NewGateway(l, l).WithClock(fixedClock)

	rec := approved("QmA")
	require.Equal(t, property.StatusApprovedPendingChain, rec.Status)

	got, err := g.Push(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, got.Status)
	assert.True(t, got.Verified)
	assert.Equal(t, now, got.VerifiedAt)
	assert.Equal(t, property.VerifiedByMultiRole, got.VerifiedBy)
	assert.NotEmpty(t, got.ChainTxHash)
	assert.Equal(t, now, got.ChainPushedAt)

	history := l.History("QmA")
	require.Len(t, history, 1)
	assert.Equal(t, signer, history[0].Owner)
}

func TestPush_FallsThroughRevertedEntrypoints(t *testing.T) {
	l := ledger.NewLedger(signer)
	l.FailEntrypoint("requestRegistration", errors.New("execution reverted: unknown function"))
	l.FailEntrypoint("registerProperty", errors.New("execution reverted: unknown function"))

	got, err := NewGateway(l, l).WithClock(fixedClock).Push(context.Background(), approved("QmA"))
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, got.Status)
}

func TestPush_AlreadyRegisteredIsSuccess(t *testing.T) {
	l := ledger.NewLedger(signer)
	require.NoError(t, l.Entrypoints()[0].Register(context.Background(), "QmA").Err)

	rec := approved("QmA")
	got, err := NewGateway(l, l).WithClock(fixedClock).Push(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, got.Status)
	assert.True(t, got.Verified)
	assert.Empty(t, got.ChainTxHash)
	assert.True(t, got.ChainPushedAt.IsZero())
}

func TestPush_TotalFailureLeavesRecordUnchanged(t *testing.T) {
	l := ledger.NewLedger(signer)
	for _, name := range []string{"requestRegistration", "registerProperty", "storeHash"} {
		l.FailEntrypoint(name, errors.New("execution reverted"))
	}

	rec := approved("QmA")
	got, err := NewGateway(l, l).Push(context.Background(), rec)
	require.ErrorIs(t, err, property.ErrLedgerWriteFailed)
	assert.Equal(t, rec, got)
	assert.Equal(t, property.ClassRetry, property.Classify(err))

	var wf *property.LedgerWriteFailedError
	require.ErrorAs(t, err, &wf)
	require.Len(t, wf.Attempts, 3)
	assert.Equal(t, "storeHash", wf.Attempts[2].Entrypoint)
}

func TestPush_LedgerUnavailable(t *testing.T) {
	l := ledger.NewLedger(signer)
	l.SetUnavailable(errors.New("dial tcp: connection refused"))

	rec := approved("QmA")
	got, err := NewGateway(l, l).Push(context.Background(), rec)
	require.ErrorIs(t, err, property.ErrLedgerWriteFailed)
	assert.ErrorIs(t, err, property.ErrLedgerUnavailable)
	assert.Equal(t, rec, got)
}

func TestPush_Preconditions(t *testing.T) {
	l := ledger.NewLedger(signer)

	one := property.NewRecord("QmA", "user-1", "", "", t0)
	one.Decisions.Notary = property.Decision{Verdict: property.VerdictApprove}
	_, err := NewGateway(l, l).Push(context.Background(), one)
	require.ErrorIs(t, err, property.ErrInsufficientApprovals)
	assert.Equal(t, property.ClassInput, property.Classify(err))

	readOnly := ledger.NewLedger("")
	_, err = NewGateway(readOnly, readOnly).Push(context.Background(), approved("QmA"))
	require.ErrorIs(t, err, property.ErrSignerConfigMissing)
	assert.Equal(t, property.ClassAdmin, property.Classify(err))

	_, err = NewGateway(nil, nil).Push(context.Background(), approved("QmA"))
	require.ErrorIs(t, err, property.ErrSignerConfigMissing)
}

func TestPush_PlanFiltersByContractVersion(t *testing.T) {
	l := ledger.NewLedger(signer)
	l.FailEntrypoint("requestRegistration", errors.New("must not be called on v1 contracts"))

	g := NewGateway(l, l).WithPlan(chain.DefaultRegistrationPlan, "1.4.0").WithClock(fixedClock)
	got, err := g.Push(context.Background(), approved("QmA"))
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, got.Status)
}

func TestPush_CanceledContext(t *testing.T) {
	l := ledger.NewLedger(signer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := approved("QmA")
	got, err := NewGateway(l, l).Push(ctx, rec)
	require.ErrorIs(t, err, property.ErrLedgerWriteFailed)
	assert.True(t, property.Retryable(err))
	assert.Equal(t, rec, got)
	assert.Empty(t, l.History("QmA"))
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewLedger(signer)
	g := NewGateway(nil, l).WithClock(fixedClock)
	tx := "0xAB" + "00000000000000000000000000000000000000000000000000000000000000"[:62]

	_, err := g.Confirm(ctx, approved("QmA"), tx)
	require.ErrorIs(t, err, property.ErrNoLedgerOwner)

	require.NoError(t, l.Entrypoints()[1].Register(ctx, "QmA").Err)
	got, err := g.Confirm(ctx, approved("QmA"), tx)
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, got.Status)
	assert.Equal(t, "0xab"+tx[4:], got.ChainTxHash)
	assert.Equal(t, now, got.ChainPushedAt)

	_, err = g.Confirm(ctx, approved("QmA"), "0x1234")
	require.ErrorIs(t, err, property.ErrValidation)

	l.SetUnavailable(errors.New("timeout"))
	_, err = g.Confirm(ctx, approved("QmA"), tx)
	require.ErrorIs(t, err, property.ErrLedgerUnavailable)
	assert.True(t, property.Retryable(err))
}
