package sample

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store holds time-ordered engagement samples per (promoter, campaign) key.
// Idle keys are evicted by TTL once the lookback window has passed without
// new samples; within a live key, samples older than the lookback window are
// pruned on append.
type Store struct {
	logger   *slog.Logger
	lookback time.Duration
	maxPer   int
	cache    *gocache.Cache
}

type series struct {
	mu      sync.Mutex
	samples []EngagementSample
}

// NewStore creates a sample store with the given lookback window. The
// lookback must cover the longest configured analysis window.
func NewStore(lookback time.Duration, maxPerKey int, logger *slog.Logger) *Store {
	return &Store{
		logger:   logger,
		lookback: lookback,
		maxPer:   maxPerKey,
		cache:    gocache.New(lookback, lookback/2),
	}
}

// Append records samples for a key, keeping the series ordered by
// ObservedAt. Out-of-order arrivals within a key are re-sorted; duplicates
// from at-least-once delivery are tolerated (same-timestamp samples keep
// arrival order).
func (s *Store) Append(key Key, samples ...EngagementSample) {
	if len(samples) == 0 {
		return
	}

	ser := s.series(key)
	ser.mu.Lock()
	defer ser.mu.Unlock()

	ser.samples = append(ser.samples, samples...)
	sort.SliceStable(ser.samples, func(i, j int) bool {
		return ser.samples[i].ObservedAt.Before(ser.samples[j].ObservedAt)
	})

	// Prune beyond the lookback window, then enforce the per-key cap.
	cutoff := time.Now().Add(-s.lookback)
	first := 0
	for first < len(ser.samples) && ser.samples[first].ObservedAt.Before(cutoff) {
		first++
	}
	if first > 0 {
		ser.samples = append([]EngagementSample(nil), ser.samples[first:]...)
	}
	if s.maxPer > 0 && len(ser.samples) > s.maxPer {
		ser.samples = append([]EngagementSample(nil), ser.samples[len(ser.samples)-s.maxPer:]...)
	}

	// Refresh the TTL so active keys stay resident.
	s.cache.Set(key.String(), ser, s.lookback)
}

// Get returns a copy of the ordered series for a key.
func (s *Store) Get(key Key) []EngagementSample {
	v, ok := s.cache.Get(key.String())
	if !ok {
		return nil
	}
	ser := v.(*series)
	ser.mu.Lock()
	defer ser.mu.Unlock()
	out := make([]EngagementSample, len(ser.samples))
	copy(out, ser.samples)
	return out
}

// Len returns the number of samples currently held for a key.
func (s *Store) Len(key Key) int {
	v, ok := s.cache.Get(key.String())
	if !ok {
		return 0
	}
	ser := v.(*series)
	ser.mu.Lock()
	defer ser.mu.Unlock()
	return len(ser.samples)
}

// Keys returns the number of live keys, for metrics.
func (s *Store) Keys() int {
	return s.cache.ItemCount()
}

func (s *Store) series(key Key) *series {
	k := key.String()
	if v, ok := s.cache.Get(k); ok {
		return v.(*series)
	}
	ser := &series{}
	if err := s.cache.Add(k, ser, s.lookback); err != nil {
		// Lost the race to another writer; use theirs.
		if v, ok := s.cache.Get(k); ok {
			return v.(*series)
		}
	}
	return ser
}
