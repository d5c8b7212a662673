package titles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/identity"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/transfercode"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// GenerateTransferCode issues a single-use code bound to a destination wallet.
func (s *Service) GenerateTransferCode(ctx context.Context, destination string) (transfercode.Code, error) {
	c, err := s.deps.Codes.Issue(ctx, destination)
	if err != nil {
		return transfercode.Code{}, err
	}
	s.record(ctx, audit.ActionCodeIssued, "", c.Wallet, map[string]string{
		"expires_at": c.ExpiresAt.Format(time.RFC3339),
	})
	return c, nil
}

// ResolveTransferCode returns the code's wallet and bound profile without
// consuming it.
func (s *Service) ResolveTransferCode(ctx context.Context, code string) (transfercode.Resolution, error) {
	return s.deps.Codes.Resolve(ctx, code)
}

// CompleteTransfer records an ownership transfer that completed on the
// ledger. The record is reset for the new owner first; the code, when
// given, is consumed only after that write succeeds. If redeeming fails
// the reset is rolled back.
func (s *Service) CompleteTransfer(ctx context.Context, hash, newOwner, code string) (property.Record, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return property.Record{}, err
	}

	unlock := s.locks.Lock(hash)
	defer unlock()

	if _, err := s.deps.Records.Get(ctx, hash); err != nil {
		return property.Record{}, err
	}
	owner, err := s.deps.Transfers.Authorize(ctx, hash, newOwner, code)
	if err != nil {
		return property.Record{}, err
	}

	var before property.Record
	rec, err := s.update(ctx, hash, func(cur property.Record) (property.Record, error) {
		before = cur
		return s.deps.Transfers.Apply(cur, owner), nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "transfer authorized but record not updated",
			"content_hash", hash, "new_owner", owner, "error", err)
		return property.Record{}, err
	}
	if err := s.deps.Transfers.Redeem(ctx, code); err != nil {
		s.restore(ctx, before)
		return property.Record{}, err
	}
	prev := before.CurrentOwnerWallet
	s.deps.Transfers.Completed(ctx, prev, rec)

	details := map[string]string{"from": prev, "to": owner}
	if code != "" {
		details["code"] = transfercode.NormalizeCode(code)
	}
	s.record(ctx, audit.ActionTransferred, hash, owner, details)
	return rec, nil
}

// ValidateTransfer checks that addr may start a ledger transfer of hash.
func (s *Service) ValidateTransfer(ctx context.Context, hash, addr string) (chain.Property, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return chain.Property{}, err
	}
	return s.deps.Transfers.Validate(ctx, hash, addr)
}

// OwnerInfo is the ledger owner of a hash and the user holding that wallet.
type OwnerInfo struct {
	Wallet string            `json:"wallet_address"`
	User   *identity.Profile `json:"user"`
}

// LookupOwner resolves the ledger owner of hash and its registered user.
func (s *Service) LookupOwner(ctx context.Context, hash string) (OwnerInfo, error) {
	hash, err := normalizeHash(hash)
	if err != nil {
		return OwnerInfo{}, err
	}
	if s.deps.Reader == nil {
		return OwnerInfo{}, fmt.Errorf("%w: no ledger reader configured", property.ErrLedgerUnavailable)
	}
	owner, err := s.deps.Reader.Owner(ctx, hash)
	if err != nil {
		if !errors.Is(err, property.ErrLedgerUnavailable) {
			err = fmt.Errorf("%w: %v", property.ErrLedgerUnavailable, err)
		}
		return OwnerInfo{}, err
	}
	if !wallet.IsReal(owner) {
		return OwnerInfo{}, fmt.Errorf("%w: no ledger owner for %s", property.ErrNotFound, hash)
	}

	info := OwnerInfo{Wallet: owner}
	if s.deps.Directory == nil {
		return info, nil
	}
	p, err := s.deps.Directory.LookupByWallet(ctx, owner)
	switch {
	case err == nil:
		info.User = &p
	case !errors.Is(err, property.ErrNotFound):
		return OwnerInfo{}, fmt.Errorf("lookup user for %s: %w", owner, err)
	}
	return info, nil
}

// restore writes back the pre-transfer state after the code could not be
// redeemed.
func (s *Service) restore(ctx context.Context, before property.Record) {
	_, err := s.update(ctx, before.ContentHash, func(cur property.Record) (property.Record, error) {
		b := before
		b.Version = cur.Version
		return b, nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "transfer code not redeemed and record not restored",
			"content_hash", before.ContentHash, "error", err)
		return
	}
	s.logger.WarnContext(ctx, "transfer rolled back, code not redeemed",
		"content_hash", before.ContentHash)
}
