// Package identity resolves wallet addresses to registered user profiles.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

// User is a registered account. NationalID is never exposed directly; use Profile.
type User struct {
	ID         string
	Name       string
	Role       string // citizen, registrar, notary, localAuthority
	NationalID string
	EmployeeID string
	Wallet     string
	CreatedAt  time.Time
}

// Profile is the public view of a User bound to a transfer code.
type Profile struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	MaskedNationalID string    `json:"masked_national_id,omitempty"`
	EmployeeID       string    `json:"employee_id,omitempty"`
	Wallet           string    `json:"wallet_address,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:               u.ID,
		Name:             property.NormalizeText(u.Name),
		Role:             u.Role,
		MaskedNationalID: MaskNationalID(u.NationalID),
		EmployeeID:       u.EmployeeID,
		Wallet:           u.Wallet,
		CreatedAt:        u.CreatedAt,
	}
}

// MaskNationalID keeps the last four digits of a 12-digit id. Anything
// else masks to "".
func MaskNationalID(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 12 {
		return ""
	}
	return "XXXXXXXX" + d[8:]
}

// Directory looks up users by wallet.
type Directory interface {
	// LookupByWallet returns property.ErrNotFound when no user holds wallet.
	LookupByWallet(ctx context.Context, wallet string) (Profile, error)
}

func normalizeWallet(addr string) (string, error) {
	n, err := wallet.Normalize(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", property.ErrValidation, err)
	}
	return n, nil
}

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	byWallet map[string]User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byWallet: make(map[string]User)}
}

// Put stores u keyed by its wallet.
func (d *MemoryDirectory) Put(_ context.Context, u User) error {
	w, err := normalizeWallet(u.Wallet)
	if err != nil {
		return err
	}
	u.Wallet = w

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byWallet[w] = u
	return nil
}

func (d *MemoryDirectory) LookupByWallet(_ context.Context, addr string) (Profile, error) {
	w, err := normalizeWallet(addr)
	if err != nil {
		return Profile{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byWallet[w]
	if !ok {
		return Profile{}, fmt.Errorf("%w: no user for wallet %s", property.ErrNotFound, w)
	}
	return u.Profile(), nil
}

// Cached memoizes successful lookups for the life of the process. Misses
// are not cached so users who register later are found.
type Cached struct {
	next Directory
	mu   sync.RWMutex
	memo map[string]Profile
}

func NewCached(next Directory) *Cached {
	return &Cached{next: next, memo: make(map[string]Profile)}
}

func (c *Cached) LookupByWallet(ctx context.Context, addr string) (Profile, error) {
	w, err := normalizeWallet(addr)
	if err != nil {
		return Profile{}, err
	}

	c.mu.RLock()
	p, ok := c.memo[w]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err = c.next.LookupByWallet(ctx, w)
	if err != nil {
		return Profile{}, err
	}
	c.mu.Lock()
	c.memo[w] = p
	c.mu.Unlock()
	return p, nil
}

var (
	_ Directory = (*MemoryDirectory)(nil)
	_ Directory = (*SQLDirectory)(nil)
	_ Directory = (*Cached)(nil)
)
