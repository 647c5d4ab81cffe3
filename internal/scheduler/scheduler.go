// Package scheduler runs the periodic maintenance jobs: ledger retention
// sweeps, suppression window pruning, and the daily and weekly rollups.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/promoguard/fraud-engine/internal/alert"
	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/ledger"
	"github.com/promoguard/fraud-engine/internal/notification"
	"github.com/promoguard/fraud-engine/internal/report"
)

// Scheduler owns the cron runner and its registered jobs.
type Scheduler struct {
	cfg        config.SchedulerConfig
	logger     *slog.Logger
	cron       *cron.Cron
	ledger     *ledger.Ledger
	dispatcher *alert.Dispatcher
	reports    *report.Generator
	notifier   *notification.Manager
}

// New creates the scheduler and registers its jobs. Returns an error when a
// cron expression in the configuration does not parse.
func New(
	cfg config.SchedulerConfig,
	led *ledger.Ledger,
	dispatcher *alert.Dispatcher,
	reports *report.Generator,
	notifier *notification.Manager,
	logger *slog.Logger,
) (*Scheduler, error) {
	s := &Scheduler{
		cfg:        cfg,
		logger:     logger,
		cron:       cron.New(),
		ledger:     led,
		dispatcher: dispatcher,
		reports:    reports,
		notifier:   notifier,
	}

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"retention_sweep", cfg.RetentionSweep, s.retentionSweep},
		{"daily_rollup", cfg.DailyRollup, s.dailyRollup},
		{"weekly_rollup", cfg.WeeklyRollup, s.weeklyRollup},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return nil, fmt.Errorf("invalid cron spec %q for %s: %w", j.spec, j.name, err)
		}
	}
	return s, nil
}

// Start begins running the registered jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler",
		"retention_sweep", s.cfg.RetentionSweep,
		"daily_rollup", s.cfg.DailyRollup,
		"weekly_rollup", s.cfg.WeeklyRollup)
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// retentionSweep prunes expired ledger entries and suppression state.
func (s *Scheduler) retentionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.ledger.Prune(ctx)
	if err != nil {
		s.logger.Error("Ledger retention sweep failed", "error", err)
	}
	windows := s.dispatcher.PruneWindows()
	s.logger.Info("Retention sweep complete",
		"ledger_entries_removed", removed,
		"alert_windows_removed", windows)
}

// dailyRollup generates yesterday's report once the day has closed.
func (s *Scheduler) dailyRollup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	rep, err := s.reports.Daily(ctx, yesterday)
	if err != nil {
		s.logger.Error("Daily rollup failed", "error", err)
		return
	}
	s.logger.Info("Daily rollup complete",
		"date", rep.Date.Format("2006-01-02"),
		"total_analyses", rep.TotalAnalyses,
		"flagged", rep.Flagged.Total(),
		"alerts", rep.AlertsEmitted)

	s.deliverRollup(ctx, fmt.Sprintf("Daily fraud report %s", rep.Date.Format("2006-01-02")),
		fmt.Sprintf("%d analyses, %d flagged (%d monitor / %d warning / %d ban), %d alerts emitted, avg score %.1f.",
			rep.TotalAnalyses, rep.Flagged.Total(),
			rep.Flagged.Monitor, rep.Flagged.Warning, rep.Flagged.Ban,
			rep.AlertsEmitted, rep.AverageBotScore))
}

// weeklyRollup generates last week's report on Monday.
func (s *Scheduler) weeklyRollup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	lastWeek := time.Now().UTC().AddDate(0, 0, -7)
	rep, err := s.reports.Weekly(ctx, lastWeek)
	if err != nil {
		s.logger.Error("Weekly rollup failed", "error", err)
		return
	}

	body := fmt.Sprintf("%d analyses, %d flagged, trend %s, most active day %s.",
		rep.TotalAnalyses, rep.Flagged.Total(), rep.Trend, rep.MostActiveDay)
	for _, rec := range rep.Recommendations {
		body += "\n- " + rec
	}
	s.deliverRollup(ctx, fmt.Sprintf("Weekly fraud report w/c %s", rep.WeekStart.Format("2006-01-02")), body)
}

// deliverRollup sends a rollup summary over email when the channel is
// configured. Rollups are informational; failures are logged, not retried
// beyond the channel's own policy.
func (s *Scheduler) deliverRollup(ctx context.Context, title, message string) {
	if s.cfg.RollupRecipient == "" || !s.notifier.Has(notification.ChannelEmail) {
		return
	}
	err := s.notifier.Deliver(ctx, notification.ChannelEmail, notification.Payload{
		AlertID:   "rollup",
		Severity:  "low",
		AlertType: "system",
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to deliver rollup report", "title", title, "error", err)
	}
}
