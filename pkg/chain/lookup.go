package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// LookupProperty resolves the ledger's view of hash. Id-indexed ledgers are
// asked first; the hash-indexed owner/verification pair is the fallback.
// It returns property.ErrNotFound when the ledger has no real owner.
func LookupProperty(ctx context.Context, r Reader, hash string) (Property, error) {
	var idxErr error
	if idx, ok := r.(PropertyIndex); ok {
		id, err := idx.ResolvePropertyID(ctx, hash)
		switch {
		case err != nil:
			idxErr = err
		case id > 0:
			p, err := idx.Property(ctx, id)
			if err == nil {
				if p.Hash == "" {
					p.Hash = hash
				}
				return p, nil
			}
			idxErr = err
		}
	}

	owner, err := r.Owner(ctx, hash)
	if err != nil {
		return Property{}, fmt.Errorf("lookup property: %w", errors.Join(err, idxErr))
	}
	if owner == "" {
		return Property{}, fmt.Errorf("%w: no ledger property for %s", property.ErrNotFound, hash)
	}

	p := Property{Owner: owner, Hash: hash, Status: PropertyStatusRequested}
	if v, _ := ReadVerification(ctx, r, hash); v == VerificationVerified {
		p.Status = PropertyStatusRegistered
	}
	return p, nil
}
