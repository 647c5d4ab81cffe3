package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the physical storage contract for the ledger: append,
// range-scan-by-time and retention eviction. Implementations must preserve
// append order within a key.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	RangeByTime(ctx context.Context, from, to time.Time) ([]*Entry, error)
	RangeByKey(ctx context.Context, key string) ([]*Entry, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// MemoryStore is the in-process Store used by default and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	byKey   map[string][]*Entry
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string][]*Entry)}
}

// Append adds an entry. Entries arrive in commit order; the global slice is
// kept sorted by timestamp so range scans are deterministic.
func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Timestamp.After(entry.Timestamp)
	})
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry

	key := entry.Key()
	s.byKey[key] = append(s.byKey[key], entry)
	return nil
}

// RangeByTime returns entries with from <= Timestamp < to, ordered by
// timestamp then insertion.
func (s *MemoryStore) RangeByTime(_ context.Context, from, to time.Time) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, e := range s.entries {
		if e.Timestamp.Before(from) {
			continue
		}
		if !e.Timestamp.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// RangeByKey returns all entries for a promoter:campaign key in append
// order.
func (s *MemoryStore) RangeByKey(_ context.Context, key string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.byKey[key]
	out := make([]*Entry, len(src))
	copy(out, src)
	return out, nil
}

// Prune drops entries older than the retention horizon.
func (s *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	if removed > 0 {
		for key, list := range s.byKey {
			filtered := list[:0]
			for _, e := range list {
				if !e.Timestamp.Before(olderThan) {
					filtered = append(filtered, e)
				}
			}
			if len(filtered) == 0 {
				delete(s.byKey, key)
			} else {
				s.byKey[key] = filtered
			}
		}
	}
	return removed, nil
}
