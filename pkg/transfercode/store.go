package transfercode

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// Store persists transfer codes keyed by code.
type Store interface {
	// Insert fails with property.ErrDuplicate if the code already exists.
	Insert(ctx context.Context, c Code) error
	// Get fails with property.ErrNotFound for unknown codes.
	Get(ctx context.Context, code string) (Code, error)
	// MarkUsed flips used from false to true exactly once; a second call
	// fails with property.ErrCodeUsed.
	MarkUsed(ctx context.Context, code string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]Code
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]Code)}
}

func (s *MemoryStore) Insert(_ context.Context, c Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[c.Code]; ok {
		return fmt.Errorf("%w: code %s", property.ErrDuplicate, c.Code)
	}
	s.codes[c.Code] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, code string) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return Code{}, fmt.Errorf("%w: transfer code %s", property.ErrNotFound, code)
	}
	return c, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return fmt.Errorf("%w: transfer code %s", property.ErrNotFound, code)
	}
	if c.Used {
		return fmt.Errorf("%w: %s", property.ErrCodeUsed, code)
	}
	c.Used = true
	s.codes[code] = c
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*SQLStore)(nil)
)
