package titles

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/chainpush"
	"github.com/Mindburn-Labs/titlevault/pkg/chainsync"
	"github.com/Mindburn-Labs/titlevault/pkg/contentstore"
	"github.com/Mindburn-Labs/titlevault/pkg/identity"
	"github.com/Mindburn-Labs/titlevault/pkg/ledger"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/review"
	"github.com/Mindburn-Labs/titlevault/pkg/store"
	"github.com/Mindburn-Labs/titlevault/pkg/transfer"
	"github.com/Mindburn-Labs/titlevault/pkg/transfercode"
)

const (
	signer = "0x1111111111111111111111111111111111111111"
	alice  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type harness struct {
	t         *testing.T
	mu        sync.Mutex
	now       time.Time
	svc       *Service
	ledger    *ledger.Ledger
	records   *store.MemoryRecordStore
	audit     *audit.Log
	codes     *transfercode.Issuer
	directory *identity.MemoryDirectory
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func newHarness(t *testing.T, ledgerSigner string) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	content, err := contentstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	h.ledger = ledger.NewLedger(ledgerSigner).WithClock(h.clock)
	h.records = store.NewMemoryRecordStore()
	h.audit = audit.NewLog().WithClock(h.clock)
	h.directory = identity.NewMemoryDirectory()
	h.codes = transfercode.NewIssuer(transfercode.NewMemoryStore(), h.directory).WithClock(h.clock)

	h.svc = New(Deps{
		Records:   h.records,
		Content:   content,
		Reader:    h.ledger,
		Review:    review.NewCoordinator().WithClock(h.clock),
		Push:      chainpush.NewGateway(h.ledger, h.ledger).WithClock(h.clock),
		Sync:      chainsync.NewAgent(h.ledger).WithClock(h.clock),
		Transfers: transfer.NewReconciler(h.ledger, h.codes).WithClock(h.clock),
		Codes:     h.codes,
		Directory: h.directory,
		Audit:     h.audit,
	}).WithClock(h.clock)
	return h
}

func (h *harness) register(doc string) property.Record {
	h.t.Helper()
	reg, err := h.svc.Register(context.Background(), []byte(doc), "deed.pdf", "citizen-7", alice)
	require.NoError(h.t, err)
	require.True(h.t, reg.Created)
	return reg.Record
}

func (h *harness) decide(hash string, role property.Role, verdict property.Verdict, reason string) ReviewResult {
	h.t.Helper()
	res, err := h.svc.Review(context.Background(), hash, review.Request{Role: role, Verdict: verdict, Reason: reason})
	require.NoError(h.t, err)
	return res
}

func (h *harness) approveTwice(hash string) {
	h.t.Helper()
	h.decide(hash, property.RoleRegistrar, property.VerdictApprove, "")
	res := h.decide(hash, property.RoleNotary, property.VerdictApprove, "")
	require.Equal(h.t, review.OutcomeQuorumReachedPendingChain, res.Outcome)
}

func TestRegister(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()

	rec := h.register("sale deed #1")
	assert.True(t, strings.HasPrefix(rec.ContentHash, "sha256:"))
	assert.Equal(t, property.StatusPending, rec.Status)
	assert.Equal(t, alice, rec.CurrentOwnerWallet)
	assert.Equal(t, int64(1), rec.Version)

	again, err := h.svc.Register(ctx, []byte("sale deed #1"), "copy.pdf", "someone-else", "")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, "citizen-7", again.Record.UploaderID)

	_, err = h.svc.Register(ctx, nil, "empty.pdf", "citizen-7", "")
	require.ErrorIs(t, err, property.ErrValidation)
	_, err = h.svc.Register(ctx, []byte("x"), "x.pdf", "citizen-7", "0x123")
	require.ErrorIs(t, err, property.ErrValidation)

	assert.Len(t, h.audit.Query(audit.Filter{Action: audit.ActionRegistered}), 1)
}

func TestReview_QuorumThenPush(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed quorum")

	res := h.decide(rec.ContentHash, property.RoleRegistrar, property.VerdictApprove, "")
	assert.Equal(t, review.OutcomeRecorded, res.Outcome)
	assert.Equal(t, 1, res.Record.ApprovalCount)

	res = h.decide(rec.ContentHash, property.RoleNotary, property.VerdictApprove, "")
	assert.Equal(t, review.OutcomeQuorumReachedPendingChain, res.Outcome)
	assert.Equal(t, property.StatusApprovedPendingChain, res.Record.Status)
	assert.False(t, res.Record.Verified)

	pushed, err := h.svc.RetryChainPush(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, pushed.Status)
	assert.True(t, pushed.Verified)
	assert.Equal(t, property.VerifiedByMultiRole, pushed.VerifiedBy)
	assert.NotEmpty(t, pushed.ChainTxHash)
	assert.Equal(t, h.clock(), pushed.ChainPushedAt)

	stored, err := h.svc.Get(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, pushed, stored)

	_, err = h.svc.Review(ctx, rec.ContentHash, review.Request{
		Role: property.RoleLocalAuthority, Verdict: property.VerdictReject, Reason: "late",
	})
	require.ErrorIs(t, err, property.ErrTerminalState)

	assert.Len(t, h.audit.Query(audit.Filter{ContentHash: rec.ContentHash, Action: audit.ActionReviewed}), 2)
	assert.Len(t, h.audit.Query(audit.Filter{Action: audit.ActionChainPushed}), 1)
	require.NoError(t, h.audit.VerifyChain())
}

func TestReview_AutoPush(t *testing.T) {
	h := newHarness(t, signer)
	h.svc.WithAutoPush(true)
	rec := h.register("deed auto")

	h.decide(rec.ContentHash, property.RoleRegistrar, property.VerdictApprove, "")
	res := h.decide(rec.ContentHash, property.RoleLocalAuthority, property.VerdictApprove, "")
	assert.Equal(t, review.OutcomeApproved, res.Outcome)
	assert.NoError(t, res.PushErr)
	assert.True(t, res.Record.Verified)
}

func TestReview_AutoPushFailureKeepsDecision(t *testing.T) {
	h := newHarness(t, signer)
	h.svc.WithAutoPush(true)
	rec := h.register("deed auto fail")
	h.ledger.SetUnavailable(errors.New("rpc down"))

	h.decide(rec.ContentHash, property.RoleRegistrar, property.VerdictApprove, "")
	res := h.decide(rec.ContentHash, property.RoleNotary, property.VerdictApprove, "")
	assert.Equal(t, review.OutcomeQuorumReachedPendingChain, res.Outcome)
	require.ErrorIs(t, res.PushErr, property.ErrLedgerWriteFailed)

	stored, err := h.svc.Get(context.Background(), rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, property.StatusApprovedPendingChain, stored.Status)
	assert.Equal(t, 2, stored.ApprovalCount)
}

func TestReview_RejectAndAlreadyDecided(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed reject")

	res := h.decide(rec.ContentHash, property.RoleRegistrar, property.VerdictReject, "forged seal")
	assert.Equal(t, review.OutcomeRecorded, res.Outcome)

	again := h.decide(rec.ContentHash, property.RoleRegistrar, property.VerdictApprove, "")
	assert.Equal(t, review.OutcomeAlreadyDecided, again.Outcome)
	assert.Equal(t, property.VerdictReject, again.Existing.Verdict)
	assert.Equal(t, res.Record.Version, again.Record.Version)

	res = h.decide(rec.ContentHash, property.RoleNotary, property.VerdictReject, "mismatched signature")
	assert.Equal(t, review.OutcomeRejected, res.Outcome)
	assert.Equal(t, property.StatusRejected, res.Record.Status)

	_, err := h.svc.Review(ctx, rec.ContentHash, review.Request{Role: property.RoleNotary, Verdict: property.VerdictReject})
	require.ErrorIs(t, err, property.ErrValidation)

	_, err = h.svc.Review(ctx, "sha256:unknown", review.Request{Role: property.RoleNotary, Verdict: property.VerdictApprove})
	require.ErrorIs(t, err, property.ErrNotFound)
}

func TestRetryChainPush_Failures(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed retry")

	_, err := h.svc.RetryChainPush(ctx, rec.ContentHash)
	require.ErrorIs(t, err, property.ErrInsufficientApprovals)

	h.approveTwice(rec.ContentHash)
	before, err := h.svc.Get(ctx, rec.ContentHash)
	require.NoError(t, err)

	h.ledger.SetUnavailable(errors.New("timeout"))
	_, err = h.svc.RetryChainPush(ctx, rec.ContentHash)
	var wf *property.LedgerWriteFailedError
	require.ErrorAs(t, err, &wf)
	assert.True(t, property.Retryable(err))

	after, err := h.svc.Get(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	h.ledger.SetUnavailable(nil)
	pushed, err := h.svc.RetryChainPush(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, pushed.Status)
}

func TestRetryChainPush_NoSigner(t *testing.T) {
	h := newHarness(t, "")
	rec := h.register("deed no signer")
	h.approveTwice(rec.ContentHash)

	_, err := h.svc.RetryChainPush(context.Background(), rec.ContentHash)
	require.ErrorIs(t, err, property.ErrSignerConfigMissing)
	assert.Equal(t, property.ClassAdmin, property.Classify(err))
}

func TestConfirmChainPush(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed client signed")
	h.approveTwice(rec.ContentHash)
	tx := "0x" + strings.Repeat("ab", 32)

	_, err := h.svc.ConfirmChainPush(ctx, rec.ContentHash, tx)
	require.ErrorIs(t, err, property.ErrNoLedgerOwner)

	res := h.ledger.Entrypoints()[0].Register(ctx, rec.ContentHash)
	require.True(t, res.Status.Succeeded())

	_, err = h.svc.ConfirmChainPush(ctx, rec.ContentHash, strings.ToUpper(tx[2:]))
	require.ErrorIs(t, err, property.ErrValidation)

	confirmed, err := h.svc.ConfirmChainPush(ctx, rec.ContentHash, tx)
	require.NoError(t, err)
	assert.Equal(t, property.StatusApproved, confirmed.Status)
	assert.Equal(t, tx, confirmed.ChainTxHash)
	assert.Len(t, h.audit.Query(audit.Filter{Action: audit.ActionChainConfirmed}), 1)
}

func TestCompleteTransfer(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed transfer")
	h.approveTwice(rec.ContentHash)
	_, err := h.svc.RetryChainPush(ctx, rec.ContentHash)
	require.NoError(t, err)

	code, err := h.svc.GenerateTransferCode(ctx, "0x"+strings.ToUpper(bob[2:]))
	require.NoError(t, err)
	assert.Equal(t, bob, code.Wallet)

	// The ledger has not moved yet.
	_, err = h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, code.Code)
	var mismatch *property.LedgerMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, signer, mismatch.Found)

	res, err := h.svc.ResolveTransferCode(ctx, code.Code)
	require.NoError(t, err, "a failed transfer must not consume the code")
	assert.False(t, res.Code.Used)

	_, err = h.ledger.Transfer(ctx, rec.ContentHash, bob)
	require.NoError(t, err)
	h.advance(time.Minute)

	done, err := h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, strings.ToLower(code.Code))
	require.NoError(t, err)
	assert.Equal(t, bob, done.CurrentOwnerWallet)
	assert.Equal(t, property.StatusPending, done.Status)
	assert.Equal(t, 1, done.TransferCount)
	assert.Equal(t, h.clock(), done.LastTransferAt)
	assert.Zero(t, done.ApprovalCount)
	assert.Equal(t, property.Decisions{}, done.Decisions)
	assert.False(t, done.Verified)
	assert.Empty(t, done.ChainTxHash)

	_, err = h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, code.Code)
	require.ErrorIs(t, err, property.ErrCodeUsed)

	events := h.audit.Query(audit.Filter{Action: audit.ActionTransferred})
	require.Len(t, events, 1)
	assert.Equal(t, alice, events[0].Event.Details["from"])
	assert.Equal(t, bob, events[0].Event.Details["to"])
}

func TestCompleteTransfer_Errors(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed transfer errors")

	_, err := h.svc.CompleteTransfer(ctx, "sha256:missing", bob, "")
	require.ErrorIs(t, err, property.ErrNotFound)

	_, err = h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, "")
	require.ErrorIs(t, err, property.ErrNoLedgerOwner)

	code, err := h.svc.GenerateTransferCode(ctx, alice)
	require.NoError(t, err)
	_, err = h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, code.Code)
	require.ErrorIs(t, err, property.ErrCodeMismatch)

	h.advance(transfercode.DefaultTTL + time.Second)
	_, err = h.svc.ResolveTransferCode(ctx, code.Code)
	require.ErrorIs(t, err, property.ErrCodeExpired)
}

func TestVerifyAndLists(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()

	v, err := h.svc.Verify(ctx, "sha256:nothing")
	require.NoError(t, err)
	assert.False(t, v.Authentic)

	first := h.register("deed one")
	h.advance(time.Second)
	second := h.register("deed two")

	v, err = h.svc.Verify(ctx, first.ContentHash)
	require.NoError(t, err)
	assert.True(t, v.Authentic)
	assert.Equal(t, "citizen-7", v.UploaderID)
	assert.False(t, v.Verified)

	h.approveTwice(first.ContentHash)
	_, err = h.svc.RetryChainPush(ctx, first.ContentHash)
	require.NoError(t, err)
	_, err = h.ledger.Transfer(ctx, first.ContentHash, bob)
	require.NoError(t, err)

	all, err := h.svc.ListForReviewers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ContentHash, all[0].ContentHash)
	assert.Equal(t, bob, all[1].CurrentOwnerWallet, "ownership change on the ledger is pulled in")
	assert.Equal(t, 1, all[1].TransferCount)

	mine, err := h.svc.ListForCitizen(ctx, nil, bob)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ContentHash, mine[0].ContentHash)

	mine, err = h.svc.ListForCitizen(ctx, []string{"citizen-7"}, "")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = h.svc.ListForCitizen(ctx, nil, "")
	require.ErrorIs(t, err, property.ErrValidation)
}

func TestVerify_LedgerDownIsNotAnError(t *testing.T) {
	h := newHarness(t, signer)
	rec := h.register("deed offline")
	h.ledger.SetUnavailable(errors.New("rpc down"))

	v, err := h.svc.Verify(context.Background(), rec.ContentHash)
	require.NoError(t, err)
	assert.True(t, v.Authentic)
	assert.Equal(t, alice, v.CurrentOwnerWallet)
}

func TestValidateTransferAndLookupOwner(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed validate")

	_, err := h.svc.ValidateTransfer(ctx, rec.ContentHash, signer)
	require.ErrorIs(t, err, property.ErrNotFound)

	_, err = h.svc.LookupOwner(ctx, rec.ContentHash)
	require.ErrorIs(t, err, property.ErrNotFound)

	h.approveTwice(rec.ContentHash)
	_, err = h.svc.RetryChainPush(ctx, rec.ContentHash)
	require.NoError(t, err)

	p, err := h.svc.ValidateTransfer(ctx, rec.ContentHash, signer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.ID)

	_, err = h.svc.ValidateTransfer(ctx, rec.ContentHash, bob)
	require.ErrorIs(t, err, property.ErrNotOwner)

	require.NoError(t, h.directory.Put(ctx, identity.User{
		ID: "u1", Name: "Registry Office", Role: "registrar", EmployeeID: "EMP-9", Wallet: signer,
	}))
	info, err := h.svc.LookupOwner(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, signer, info.Wallet)
	require.NotNil(t, info.User)
	assert.Equal(t, "Registry Office", info.User.Name)
}

func TestPushPending(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	a := h.register("deed pending a")
	b := h.register("deed pending b")
	h.register("deed untouched")
	h.approveTwice(a.ContentHash)
	h.approveTwice(b.ContentHash)

	pushed, failed, err := h.svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pushed)
	assert.Empty(t, failed)

	pushed, _, err = h.svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pushed)
}

func TestConcurrentReviewsStayConsistent(t *testing.T) {
	h := newHarness(t, signer)
	rec := h.register("deed race")

	reqs := []review.Request{
		{Role: property.RoleRegistrar, Verdict: property.VerdictApprove},
		{Role: property.RoleNotary, Verdict: property.VerdictReject, Reason: "stamp missing"},
		{Role: property.RoleLocalAuthority, Verdict: property.VerdictApprove},
	}
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req review.Request) {
			defer wg.Done()
			_, err := h.svc.Review(context.Background(), rec.ContentHash, req)
			assert.NoError(t, err)
		}(req)
	}
	wg.Wait()

	got, err := h.svc.Get(context.Background(), rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ApprovalCount)
	assert.Equal(t, 1, got.RejectCount)
	assert.Equal(t, property.StatusApprovedPendingChain, got.Status)
	assert.Equal(t, int64(4), got.Version)
}

// conflictingStore fails the first n compare-and-set writes.
type conflictingStore struct {
	*store.MemoryRecordStore
	mu sync.Mutex
	n  int
}

func (s *conflictingStore) UpdateIfVersion(ctx context.Context, rec property.Record) (property.Record, error) {
	s.mu.Lock()
	if s.n > 0 {
		s.n--
		s.mu.Unlock()
		return property.Record{}, property.ErrConflict
	}
	s.mu.Unlock()
	return s.MemoryRecordStore.UpdateIfVersion(ctx, rec)
}

func TestUpdateRetriesConflicts(t *testing.T) {
	h := newHarness(t, signer)
	rec := h.register("deed conflict")

	cs := &conflictingStore{MemoryRecordStore: h.records, n: 2}
	h.svc.deps.Records = cs
	res := h.decide(rec.ContentHash, property.RoleRegistrar, property.VerdictApprove, "")
	assert.Equal(t, 1, res.Record.ApprovalCount)

	cs.n = DefaultMaxAttempts
	_, err := h.svc.Review(context.Background(), rec.ContentHash, review.Request{
		Role: property.RoleNotary, Verdict: property.VerdictApprove,
	})
	require.ErrorIs(t, err, property.ErrConflict)
	assert.True(t, property.Retryable(err))
}

func TestCompleteTransfer_SaveFailureKeepsCode(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed transfer conflict")
	h.approveTwice(rec.ContentHash)
	_, err := h.svc.RetryChainPush(ctx, rec.ContentHash)
	require.NoError(t, err)
	code, err := h.svc.GenerateTransferCode(ctx, bob)
	require.NoError(t, err)
	_, err = h.ledger.Transfer(ctx, rec.ContentHash, bob)
	require.NoError(t, err)
	before, err := h.records.Get(ctx, rec.ContentHash)
	require.NoError(t, err)

	h.svc.deps.Records = &conflictingStore{MemoryRecordStore: h.records, n: 1 << 10}
	_, err = h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, code.Code)
	require.ErrorIs(t, err, property.ErrConflict)

	got, err := h.records.Get(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, alice, got.CurrentOwnerWallet)
	assert.Zero(t, got.TransferCount)
	assert.Equal(t, before.Version, got.Version)

	res, err := h.svc.ResolveTransferCode(ctx, code.Code)
	require.NoError(t, err)
	assert.False(t, res.Code.Used)
	assert.Empty(t, h.audit.Query(audit.Filter{Action: audit.ActionTransferred}))

	h.svc.deps.Records = h.records
	done, err := h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, code.Code)
	require.NoError(t, err)
	assert.Equal(t, bob, done.CurrentOwnerWallet)
	assert.Equal(t, 1, done.TransferCount)
}

// redeemingStore redeems code on the first successful write, as a
// concurrent transfer would.
type redeemingStore struct {
	*store.MemoryRecordStore
	codes *transfercode.Issuer
	code  string
	once  sync.Once
}

func (s *redeemingStore) UpdateIfVersion(ctx context.Context, rec property.Record) (property.Record, error) {
	saved, err := s.MemoryRecordStore.UpdateIfVersion(ctx, rec)
	if err == nil {
		s.once.Do(func() { _ = s.codes.Redeem(ctx, s.code) })
	}
	return saved, err
}

func TestCompleteTransfer_RedeemFailureRollsBack(t *testing.T) {
	h := newHarness(t, signer)
	ctx := context.Background()
	rec := h.register("deed transfer redeem race")
	h.approveTwice(rec.ContentHash)
	_, err := h.svc.RetryChainPush(ctx, rec.ContentHash)
	require.NoError(t, err)
	code, err := h.svc.GenerateTransferCode(ctx, bob)
	require.NoError(t, err)
	_, err = h.ledger.Transfer(ctx, rec.ContentHash, bob)
	require.NoError(t, err)

	before, err := h.records.Get(ctx, rec.ContentHash)
	require.NoError(t, err)

	h.svc.deps.Records = &redeemingStore{MemoryRecordStore: h.records, codes: h.codes, code: code.Code}
	_, err = h.svc.CompleteTransfer(ctx, rec.ContentHash, bob, code.Code)
	require.ErrorIs(t, err, property.ErrCodeUsed)

	got, err := h.records.Get(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, alice, got.CurrentOwnerWallet)
	assert.Zero(t, got.TransferCount)
	assert.Equal(t, before.Status, got.Status)
	assert.Equal(t, before.ApprovalCount, got.ApprovalCount)
	assert.Equal(t, before.ChainTxHash, got.ChainTxHash)
	assert.Empty(t, h.audit.Query(audit.Filter{Action: audit.ActionTransferred}))
}
