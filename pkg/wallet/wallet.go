// Package wallet validates and normalizes ledger account addresses.
//
// Addresses are 0x-prefixed 40-hex-digit strings. Mixed-case input must
// carry a valid EIP-55 checksum; all-lower and all-upper input is accepted
// as-is. Normalized form is always lowercase.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ZeroAddress is the lowercase all-zero address ledgers report for "no owner".
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var (
	ErrEmpty     = errors.New("wallet address is empty")
	ErrMalformed = errors.New("wallet address is malformed")
	ErrChecksum  = errors.New("wallet address checksum mismatch")
)

// Normalize validates addr and returns its lowercase form.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrEmpty
	}
	if len(addr) != 42 || !(strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X")) {
		return "", fmt.Errorf("%w: %q", ErrMalformed, addr)
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformed, addr)
	}

	lower := strings.ToLower(body)
	upper := strings.ToUpper(body)
	if body != lower && body != upper {
		if Checksum("0x"+lower) != "0x"+body {
			return "", fmt.Errorf("%w: %q", ErrChecksum, addr)
		}
	}
	return "0x" + lower, nil
}

// Valid reports whether addr is a well-formed address.
func Valid(addr string) bool {
	_, err := Normalize(addr)
	return err == nil
}

// IsReal reports whether addr is a well-formed, non-zero address.
func IsReal(addr string) bool {
	n, err := Normalize(addr)
	return err == nil && n != ZeroAddress
}

// Equal compares two addresses case-insensitively. Malformed input never matches.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

// Checksum returns the EIP-55 mixed-case encoding of a lowercase 0x address.
func Checksum(addr string) string {
	body := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(body))
	digest := h.Sum(nil)

	out := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}
