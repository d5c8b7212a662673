// Package transfercode issues and resolves short-lived, single-use codes
// that bind a destination wallet to a pending ownership transfer.
package transfercode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/identity"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

const (
	// DefaultTTL is how long an issued code stays redeemable.
	DefaultTTL = 10 * time.Minute
	// MaxAttempts bounds regeneration on code collisions.
	MaxAttempts = 5

	codeBytes = 4
)

// Code is one issued transfer code.
type Code struct {
	Code      string    `json:"code"`
	Wallet    string    `json:"wallet_address"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether c is no longer redeemable at now.
func (c Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Resolution is a resolved code with the profile of the user holding its wallet.
type Resolution struct {
	Code Code              `json:"code"`
	User *identity.Profile `json:"user"`
}

// Issuer issues and resolves transfer codes.
type Issuer struct {
	store     Store
	directory identity.Directory
	ttl       time.Duration
	clock     func() time.Time
	random    io.Reader
	logger    *slog.Logger
}

// NewIssuer creates an Issuer. directory may be nil, in which case
// resolutions carry no user profile.
func NewIssuer(store Store, directory identity.Directory) *Issuer {
	return &Issuer{
		store:     store,
		directory: directory,
		ttl:       DefaultTTL,
		clock:     time.Now,
		random:    rand.Reader,
		logger:    slog.Default().With("component", "transfercode"),
	}
}

func (i *Issuer) WithTTL(ttl time.Duration) *Issuer {
	if ttl > 0 {
		i.ttl = ttl
	}
	return i
}

// WithClock overrides the clock for deterministic testing.
func (i *Issuer) WithClock(clock func() time.Time) *Issuer {
	i.clock = clock
	return i
}

// WithRandom overrides the code entropy source.
func (i *Issuer) WithRandom(r io.Reader) *Issuer {
	i.random = r
	return i
}

func (i *Issuer) WithLogger(logger *slog.Logger) *Issuer {
	i.logger = logger
	return i
}

// TTL returns the configured code lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a fresh code for destination.
func (i *Issuer) Issue(ctx context.Context, destination string) (Code, error) {
	w, err := wallet.Normalize(destination)
	if err != nil {
		return Code{}, fmt.Errorf("%w: %v", property.ErrValidation, err)
	}
	now := i.clock().UTC()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		code, err := i.generate()
		if err != nil {
			return Code{}, fmt.Errorf("generate transfer code: %w", err)
		}
		c := Code{Code: code, Wallet: w, ExpiresAt: now.Add(i.ttl), CreatedAt: now}
		err = i.store.Insert(ctx, c)
		if err == nil {
			i.logger.InfoContext(ctx, "transfer code issued", "wallet", w, "expires_at", c.ExpiresAt)
			return c, nil
		}
		if !errors.Is(err, property.ErrDuplicate) {
			return Code{}, err
		}
		i.logger.DebugContext(ctx, "transfer code collision", "attempt", attempt)
	}
	return Code{}, fmt.Errorf("%w after %d attempts", property.ErrCodeSpaceExhausted, MaxAttempts)
}

func (i *Issuer) generate() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := io.ReadFull(i.random, b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// NormalizeCode trims and uppercases a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check returns the stored code if it is still redeemable. Expiry is
// reported before use, so an expired code always fails with ErrCodeExpired.
func (i *Issuer) Check(ctx context.Context, code string) (Code, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Code{}, fmt.Errorf("%w: transfer code is required", property.ErrValidation)
	}
	c, err := i.store.Get(ctx, code)
	if err != nil {
		return Code{}, err
	}
	if c.Expired(i.clock()) {
		return c, fmt.Errorf("%w: %s expired at %s", property.ErrCodeExpired, c.Code, c.ExpiresAt.Format(time.RFC3339))
	}
	if c.Used {
		return c, fmt.Errorf("%w: %s", property.ErrCodeUsed, c.Code)
	}
	return c, nil
}

// Resolve returns the code's destination and the profile bound to it. It
// does not consume the code.
func (i *Issuer) Resolve(ctx context.Context, code string) (Resolution, error) {
	c, err := i.Check(ctx, code)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Code: c}
	if i.directory == nil {
		return res, nil
	}
	p, err := i.directory.LookupByWallet(ctx, c.Wallet)
	switch {
	case err == nil:
		res.User = &p
	case !errors.Is(err, property.ErrNotFound):
		return Resolution{}, fmt.Errorf("lookup user for %s: %w", c.Wallet, err)
	}
	return res, nil
}

// Redeem marks the code used. It fails with ErrCodeUsed if another
// redemption got there first.
func (i *Issuer) Redeem(ctx context.Context, code string) error {
	if err := i.store.MarkUsed(ctx, NormalizeCode(code)); err != nil {
		return err
	}
	i.logger.InfoContext(ctx, "transfer code redeemed", "code", NormalizeCode(code))
	return nil
}
