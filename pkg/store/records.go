// Package store persists property records with optimistic concurrency.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// RecordStore persists property records keyed by content hash.
//
// UpdateIfVersion is a compare-and-set: it writes rec only if the stored
// version equals rec.Version, and returns the stored record with the
// version bumped. A stale version fails with property.ErrConflict.
type RecordStore interface {
	Get(ctx context.Context, hash string) (property.Record, error)
	Create(ctx context.Context, rec property.Record) (property.Record, error)
	UpdateIfVersion(ctx context.Context, rec property.Record) (property.Record, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]property.Record, error)
}

// MemoryRecordStore is an in-process RecordStore.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]property.Record
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]property.Record)}
}

func (s *MemoryRecordStore) Get(_ context.Context, hash string) (property.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[hash]
	if !ok {
		return property.Record{}, fmt.Errorf("%w: record %s", property.ErrNotFound, hash)
	}
	return rec, nil
}

func (s *MemoryRecordStore) Create(_ context.Context, rec property.Record) (property.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ContentHash]; ok {
		return property.Record{}, fmt.Errorf("%w: record %s", property.ErrDuplicate, rec.ContentHash)
	}
	rec.Version = 1
	s.records[rec.ContentHash] = rec
	return rec, nil
}

func (s *MemoryRecordStore) UpdateIfVersion(_ context.Context, rec property.Record) (property.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.ContentHash]
	if !ok {
		return property.Record{}, fmt.Errorf("%w: record %s", property.ErrNotFound, rec.ContentHash)
	}
	if cur.Version != rec.Version {
		return property.Record{}, fmt.Errorf("%w: record %s at version %d, have %d",
			property.ErrConflict, rec.ContentHash, cur.Version, rec.Version)
	}
	rec.Version++
	s.records[rec.ContentHash] = rec
	return rec, nil
}

func (s *MemoryRecordStore) List(_ context.Context) ([]property.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]property.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(recs []property.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ContentHash < recs[j].ContentHash
	})
}

var (
	_ RecordStore = (*MemoryRecordStore)(nil)
	_ RecordStore = (*SQLRecordStore)(nil)
)
