package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/metrics"
)

// Ledger wraps a Store with the operational error policy: every append has
// a timeout and a bounded retry count; on exhaustion the failure is logged
// as a degraded-mode warning and surfaced to the caller, never swallowed.
// Analysis correctness must not depend on a successful append.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Collector
	cfg     config.LedgerConfig
}

// New creates a ledger over the given store.
func New(store Store, cfg config.LedgerConfig, collector *metrics.Collector, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, metrics: collector, cfg: cfg}
}

// Append writes an entry with retries and backoff. The entry's ID and
// timestamp are filled in if unset.
func (l *Ledger) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var lastErr error
	delay := l.cfg.RetryDelay
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		writeCtx, cancel := context.WithTimeout(ctx, l.cfg.WriteTimeout)
		lastErr = l.store.Append(writeCtx, entry)
		cancel()
		l.metrics.LedgerAppend(lastErr == nil)
		if lastErr == nil {
			return nil
		}

		l.logger.Warn("Ledger append failed",
			"entry_id", entry.ID,
			"entry_type", entry.Type,
			"attempt", attempt+1,
			"error", lastErr)
	}

	l.logger.Warn("Ledger degraded: append retries exhausted",
		"entry_id", entry.ID,
		"entry_type", entry.Type,
		"error", lastErr)
	return fmt.Errorf("ledger append exhausted %d retries: %w", l.cfg.MaxRetries, lastErr)
}

// History returns the past analysis entries for a (promoter, campaign)
// key in evaluation order.
func (l *Ledger) History(ctx context.Context, promoterID, campaignID string) ([]*Entry, error) {
	entries, err := l.store.RangeByKey(ctx, promoterID+":"+campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Type == EntryAnalysis {
			out = append(out, e)
		}
	}
	return out, nil
}

// Range exposes a bounded time scan for the report generator.
func (l *Ledger) Range(ctx context.Context, from, to time.Time) ([]*Entry, error) {
	return l.store.RangeByTime(ctx, from, to)
}

// Prune evicts entries past the configured retention.
func (l *Ledger) Prune(ctx context.Context) (int, error) {
	return l.store.Prune(ctx, time.Now().Add(-l.cfg.Retention))
}
