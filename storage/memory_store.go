package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/memflow/types"
)

// MemoryStore is an in-process Store used by tests and throwaway
// deployments. It survives nothing, but it honors the same contract as the
// durable backends, including entry-atomic deletes and record enumeration.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.MemoryEntry
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*types.MemoryEntry),
	}
}

func (s *MemoryStore) Write(ctx context.Context, entry *types.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	s.records[entry.ID] = entry.Clone()
	return nil
}

func (s *MemoryStore) ReadAll(ctx context.Context) ([]*types.MemoryEntry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, 0, errClosed()
	}

	entries := make([]*types.MemoryEntry, 0, len(s.records))
	for _, entry := range s.records {
		entries = append(entries, entry.Clone())
	}
	return entries, 0, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
