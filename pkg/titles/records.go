package titles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// Registration is the result of Register.
type Registration struct {
	Record  property.Record `json:"record"`
	Created bool            `json:"created"`
}

// Register stores an uploaded document and opens a pending record for it.
// Uploading bytes that are already registered returns the existing record.
func (s *Service) Register(ctx context.Context, content []byte, filename, uploaderID, ownerWallet string) (Registration, error) {
	if len(content) == 0 {
		return Registration{}, fmt.Errorf("%w: document is empty", property.ErrValidation)
	}
	uploaderID = property.NormalizeText(uploaderID)
	if uploaderID == "" {
		return Registration{}, fmt.Errorf("%w: uploader id is required", property.ErrValidation)
	}
	var owner string
	if strings.TrimSpace(ownerWallet) != "" {
		w, err := wallet.Normalize(ownerWallet)
		if err != nil {
			return Registration{}, fmt.Errorf("%w: owner wallet: %v", property.ErrValidation, err)
		}
		owner = w
	}
	if s.deps.Content == nil {
		return Registration{}, errors.New("no content store configured")
	}

	hash, err := s.deps.Content.Put(ctx, filename, content)
	if err != nil {
		return Registration{}, fmt.Errorf("store document: %w", err)
	}

	unlock := s.locks.Lock(hash)
	defer unlock()

	rec := property.NewRecord(hash, uploaderID, property.NormalizeText(filename), owner, s.clock().UTC())
	created, err := s.deps.Records.Create(ctx, rec)
	if errors.Is(err, property.ErrDuplicate) {
		existing, gerr := s.deps.Records.Get(ctx, hash)
		if gerr != nil {
			return Registration{}, gerr
		}
		return Registration{Record: existing}, nil
	}
	if err != nil {
		return Registration{}, fmt.Errorf("create record: %w", err)
	}

	s.logger.InfoContext(ctx, "document registered",
		"content_hash", hash, "uploader_id", uploaderID, "owner", owner)
	s.record(ctx, audit.ActionRegistered, hash, uploaderID, map[string]string{
		"filename": created.Filename,
		"owner":    owner,
	})
	return Registration{Record: created, Created: true}, nil
}

// Verification answers whether a hash belongs to a registered document.
type Verification struct {
	Authentic          bool   `json:"authentic"`
	UploaderID         string `json:"uploader_id,omitempty"`
	CurrentOwnerWallet string `json:"current_owner_wallet,omitempty"`
	Verified           bool   `json:"verified"`
}

// Verify refreshes the record from the ledger, best effort, and reports its
// authenticity. An unknown hash is not an error.
func (s *Service) Verify(ctx context.Context, hash string) (Verification, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return Verification{}, err
	}
	rec, err := s.refresh(ctx, hash)
	if errors.Is(err, property.ErrNotFound) {
		return Verification{}, nil
	}
	if err != nil {
		return Verification{}, err
	}
	return Verification{
		Authentic:          true,
		UploaderID:         rec.UploaderID,
		CurrentOwnerWallet: rec.CurrentOwnerWallet,
		Verified:           rec.Verified,
	}, nil
}

// refresh syncs one record from the ledger and persists it if anything
// drifted. A lost compare-and-set is dropped: the newer write wins and the
// next sync converges.
func (s *Service) refresh(ctx context.Context, hash string) (property.Record, error) {
	rec, err := s.deps.Records.Get(ctx, hash)
	if err != nil {
		return property.Record{}, err
	}
	return s.refreshRecord(ctx, rec), nil
}

func (s *Service) refreshRecord(ctx context.Context, rec property.Record) property.Record {
	synced, syncChanged := s.deps.Sync.Sync(ctx, rec)
	next := property.Reconcile(synced)
	if !syncChanged && !property.Drifted(synced) {
		return rec
	}
	saved, err := s.deps.Records.UpdateIfVersion(ctx, next)
	switch {
	case err == nil:
		return saved
	case errors.Is(err, property.ErrConflict):
		s.logger.DebugContext(ctx, "sync write lost a version race", "content_hash", rec.ContentHash)
	default:
		s.logger.WarnContext(ctx, "sync write failed", "content_hash", rec.ContentHash, "error", err)
	}
	return next
}

// ListForReviewers returns every record, newest first, each refreshed from
// the ledger and reconciled.
func (s *Service) ListForReviewers(ctx context.Context) ([]property.Record, error) {
	recs, err := s.deps.Records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	for i := range recs {
		recs[i] = s.refreshRecord(ctx, recs[i])
	}
	return recs, nil
}

// ListForCitizen returns the records uploaded under any of ids or currently
// owned by ownerWallet, newest first.
func (s *Service) ListForCitizen(ctx context.Context, ids []string, ownerWallet string) ([]property.Record, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = property.NormalizeText(id); id != "" {
			want[id] = true
		}
	}
	var owner string
	if strings.TrimSpace(ownerWallet) != "" {
		w, err := wallet.Normalize(ownerWallet)
		if err != nil {
			return nil, fmt.Errorf("%w: wallet: %v", property.ErrValidation, err)
		}
		owner = w
	}
	if len(want) == 0 && owner == "" {
		return nil, fmt.Errorf("%w: a user id or wallet is required", property.ErrValidation)
	}

	all, err := s.ListForReviewers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]property.Record, 0)
	for _, rec := range all {
		if want[rec.UploaderID] || (owner != "" && wallet.Equal(rec.CurrentOwnerWallet, owner)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PushPending retries the ledger push of every record awaiting it.
func (s *Service) PushPending(ctx context.Context) (pushed int, failed []error, err error) {
	recs, err := s.deps.Records.List(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("list records: %w", err)
	}
	for _, rec := range recs {
		if property.Reconcile(rec).Status != property.StatusApprovedPendingChain {
			continue
		}
		if err := ctx.Err(); err != nil {
			return pushed, failed, err
		}
		if _, perr := s.RetryChainPush(ctx, rec.ContentHash); perr != nil {
			failed = append(failed, fmt.Errorf("%s: %w", rec.ContentHash, perr))
			if errors.Is(perr, property.ErrSignerConfigMissing) {
				return pushed, failed, perr
			}
			continue
		}
		pushed++
	}
	return pushed, failed, nil
}
