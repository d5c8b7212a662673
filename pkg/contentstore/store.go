// Package contentstore persists uploaded title documents by content hash.
//
// Blob backends (filesystem, S3, GCS) address content as "sha256:<hex>".
// The IPFS backend pins through Pinata and returns the CID it assigns.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrNotFound    = errors.New("content not found")
	ErrInvalidHash = errors.New("invalid content hash")
	ErrEmpty       = errors.New("content is empty")
)

// Store is a content-addressed document store.
type Store interface {
	// Put persists data and returns its content hash. Storing identical
	// bytes twice returns the same hash.
	Put(ctx context.Context, filename string, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
}

const hashPrefix = "sha256:"

// Sum returns the prefixed hash of data and its bare hex form.
func Sum(data []byte) (hash, raw string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return hashPrefix + raw, raw
}

func parseHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	if len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return strings.ToLower(raw), nil
}

// FSStore keeps blobs as files under a base directory.
type FSStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFSStore creates the base directory if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	//nolint:gosec // G301: shared content directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("ensure content dir: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) path(raw string) string {
	return filepath.Join(s.baseDir, raw+".blob")
}

func (s *FSStore) Put(_ context.Context, _ string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	hash, raw := Sum(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(raw)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	// Write to temp, then rename
	tmp := path + ".tmp"
	//nolint:gosec // G306: blobs are world-readable
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return hash, nil
}

func (s *FSStore) Get(_ context.Context, hash string) ([]byte, error) {
	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(raw)) //nolint:gosec // hash validated as hex
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FSStore) Exists(_ context.Context, hash string) (bool, error) {
	raw, err := parseHash(hash)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(s.path(raw))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob: %w", err)
}

var (
	_ Store = (*FSStore)(nil)
	_ Store = (*S3Store)(nil)
	_ Store = (*PinataStore)(nil)
)
