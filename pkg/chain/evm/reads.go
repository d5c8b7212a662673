package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// Owner implements chain.Reader. The vault's getOwner is tried first, then
// documentOwner, then the registry row.
func (c *Client) Owner(ctx context.Context, hash string) (string, error) {
	for _, method := range []string{"getOwner", "documentOwner"} {
		vals, err := c.call(ctx, vault, method, hash)
		if err != nil {
			if asRevert(err) {
				continue
			}
			return "", err
		}
		if addr, ok := vals[0].(common.Address); ok && addr != (common.Address{}) {
			return lowerHex(addr), nil
		}
	}

	id, err := c.ResolvePropertyID(ctx, hash)
	if err != nil || id == 0 {
		return "", err
	}
	p, err := c.Property(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Owner, nil
}

// IsVerified implements chain.Reader.
func (c *Client) IsVerified(ctx context.Context, hash string) (bool, error) {
	for _, method := range []string{"verifyProperty", "verifyHash"} {
		vals, err := c.call(ctx, vault, method, hash)
		if err != nil {
			if asRevert(err) {
				continue
			}
			return false, err
		}
		ok, _ := vals[0].(bool)
		return ok, nil
	}

	id, err := c.ResolvePropertyID(ctx, hash)
	if err != nil || id == 0 {
		return false, err
	}
	p, err := c.Property(ctx, id)
	if err != nil {
		return false, err
	}
	return p.Status == chain.PropertyStatusRegistered, nil
}

// ResolvePropertyID implements chain.PropertyIndex. Contracts without the
// hashToPropertyId mapping are scanned from propertyCounter downwards.
func (c *Client) ResolvePropertyID(ctx context.Context, hash string) (uint64, error) {
	vals, err := c.call(ctx, registry, "hashToPropertyId", hash)
	if err == nil {
		return toUint64(vals[0]), nil
	}
	if !asRevert(err) {
		return 0, err
	}

	vals, err = c.call(ctx, registry, "propertyCounter")
	if err != nil {
		if asRevert(err) {
			return 0, nil
		}
		return 0, err
	}
	counter := toUint64(vals[0])
	for id, scanned := counter, 0; id > 0 && scanned < c.maxScan; id, scanned = id-1, scanned+1 {
		p, err := c.Property(ctx, id)
		if err != nil {
			if errors.Is(err, property.ErrLedgerUnavailable) {
				return 0, err
			}
			continue
		}
		if p.Hash == hash {
			return id, nil
		}
	}
	if counter > uint64(c.maxScan) {
		c.logger.Warn("property scan truncated", "content_hash", hash, "counter", counter, "max_scan", c.maxScan)
	}
	return 0, nil
}

// Property implements chain.PropertyIndex.
func (c *Client) Property(ctx context.Context, id uint64) (chain.Property, error) {
	var lastErr error
	for _, method := range []string{"getProperty", "properties"} {
		vals, err := c.call(ctx, registry, method, new(big.Int).SetUint64(id))
		if err != nil {
			if asRevert(err) {
				lastErr = err
				continue
			}
			return chain.Property{}, err
		}
		return decodeProperty(vals)
	}
	return chain.Property{}, fmt.Errorf("property %d: %w", id, lastErr)
}

// decodeProperty maps the registry row tuple
// (id, owner, ipfsHash, registrar, notary, authority, approvalCount, status, bankVerified).
func decodeProperty(vals []any) (chain.Property, error) {
	if len(vals) < 8 {
		return chain.Property{}, fmt.Errorf("decode property: %d fields", len(vals))
	}
	owner, _ := vals[1].(common.Address)
	hash, _ := vals[2].(string)
	status, _ := vals[7].(uint8)

	p := chain.Property{
		ID:            toUint64(vals[0]),
		Hash:          strings.TrimSpace(hash),
		Status:        chain.PropertyStatus(status),
		ApprovalCount: int(toUint64(vals[6])),
	}
	if owner != (common.Address{}) {
		p.Owner = lowerHex(owner)
	}
	return p, nil
}

func toUint64(v any) uint64 {
	if n, ok := v.(*big.Int); ok && n != nil && n.IsUint64() {
		return n.Uint64()
	}
	return 0
}
