package alert

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/promoguard/fraud-engine/internal/action"
)

// WindowStore is the per-key rolling window behind the storm suppression
// logic. It tracks qualifying analyses per tier and the events actually
// emitted; it is injected into the dispatcher rather than held as ambient
// module state so it can be locked and tested per key in isolation.
type WindowStore interface {
	// RecordTier notes a qualifying analysis at a tier and returns the
	// count of occurrences within the window, including this one.
	RecordTier(key string, tier action.Tier, at time.Time, window time.Duration) int
	// ResetTier clears the occurrence counter after an event is emitted so
	// the next storm has to build up again.
	ResetTier(key string, tier action.Tier)
	// RecordEvent appends an emitted event to the key's window.
	RecordEvent(ev *Event)
	// RecentEvents returns emitted events for a key within the window.
	RecentEvents(key string, window time.Duration) []*Event
	// Prune drops state older than the retention horizon across all keys
	// and returns the number of evicted records.
	Prune(olderThan time.Time) int
}

// MemoryWindowStore is a sharded in-memory WindowStore. Sharding by key
// hash keeps lock contention per shard; the alert window counters are the
// only shared mutable state in the pipeline.
type MemoryWindowStore struct {
	shards []*windowShard
}

type windowShard struct {
	mu          sync.Mutex
	occurrences map[string]map[action.Tier][]time.Time
	events      map[string][]*Event
}

// NewMemoryWindowStore creates a store with the given shard count.
func NewMemoryWindowStore(shards int) *MemoryWindowStore {
	if shards <= 0 {
		shards = 16
	}
	s := &MemoryWindowStore{shards: make([]*windowShard, shards)}
	for i := range s.shards {
		s.shards[i] = &windowShard{
			occurrences: make(map[string]map[action.Tier][]time.Time),
			events:      make(map[string][]*Event),
		}
	}
	return s
}

func (s *MemoryWindowStore) shard(key string) *windowShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryWindowStore) RecordTier(key string, tier action.Tier, at time.Time, window time.Duration) int {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	tiers, ok := sh.occurrences[key]
	if !ok {
		tiers = make(map[action.Tier][]time.Time)
		sh.occurrences[key] = tiers
	}

	cutoff := at.Add(-window)
	kept := tiers[tier][:0]
	for _, t := range tiers[tier] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, at)
	tiers[tier] = kept
	return len(kept)
}

func (s *MemoryWindowStore) ResetTier(key string, tier action.Tier) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if tiers, ok := sh.occurrences[key]; ok {
		delete(tiers, tier)
	}
}

func (s *MemoryWindowStore) RecordEvent(ev *Event) {
	key := ev.Key()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.events[key] = append(sh.events[key], ev)
}

func (s *MemoryWindowStore) RecentEvents(key string, window time.Duration) []*Event {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := time.Now().Add(-window)
	out := make([]*Event, 0)
	for _, ev := range sh.events[key] {
		if ev.CreatedAt.After(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *MemoryWindowStore) Prune(olderThan time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, tiers := range sh.occurrences {
			for tier, times := range tiers {
				kept := times[:0]
				for _, t := range times {
					if t.After(olderThan) {
						kept = append(kept, t)
					}
				}
				removed += len(times) - len(kept)
				if len(kept) == 0 {
					delete(tiers, tier)
				} else {
					tiers[tier] = kept
				}
			}
			if len(tiers) == 0 {
				delete(sh.occurrences, key)
			}
		}
		for key, events := range sh.events {
			kept := events[:0]
			for _, ev := range events {
				if ev.CreatedAt.After(olderThan) {
					kept = append(kept, ev)
				}
			}
			removed += len(events) - len(kept)
			if len(kept) == 0 {
				delete(sh.events, key)
			} else {
				sh.events[key] = kept
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
