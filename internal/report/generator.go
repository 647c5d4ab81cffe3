// Package report builds daily, weekly and monthly rollups from the audit
// ledger. Reports are pure projections: generating the same window twice
// yields the same report, so regeneration after a crash is always safe.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/ledger"
)

const topOffenderLimit = 10

// Risk tier cut-offs on a promoter's flagged share.
const (
	riskHighRate   = 0.30
	riskMediumRate = 0.10
)

// Generator produces rollup reports from ledger entries.
type Generator struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewGenerator creates a report generator backed by the given ledger.
func NewGenerator(led *ledger.Ledger, logger *slog.Logger) *Generator {
	return &Generator{ledger: led, logger: logger}
}

// Daily builds the rollup for the UTC calendar day containing t.
func (g *Generator) Daily(ctx context.Context, t time.Time) (*DailyReport, error) {
	day := t.UTC().Truncate(24 * time.Hour)
	entries, err := g.ledger.Range(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger range for daily report: %w", err)
	}
	return buildDaily(day, entries), nil
}

// Weekly builds the rollup for the seven days starting at the Monday of the
// week containing t.
func (g *Generator) Weekly(ctx context.Context, t time.Time) (*WeeklyReport, error) {
	start := weekStart(t)
	report := &WeeklyReport{WeekStart: start}

	var totalScore float64
	for i := 0; i < 7; i++ {
		day, err := g.Daily(ctx, start.AddDate(0, 0, i))
		if err != nil {
			return nil, err
		}
		report.Days = append(report.Days, day)
		report.TotalAnalyses += day.TotalAnalyses
		report.Flagged.Monitor += day.Flagged.Monitor
		report.Flagged.Warning += day.Flagged.Warning
		report.Flagged.Ban += day.Flagged.Ban
		totalScore += day.AverageBotScore * float64(day.TotalAnalyses)
	}
	if report.TotalAnalyses > 0 {
		report.AverageBotScore = totalScore / float64(report.TotalAnalyses)
	}

	priorRate, err := g.flaggedRate(ctx, start.AddDate(0, 0, -7), start)
	if err != nil {
		return nil, err
	}
	report.Trend = trendFrom(priorRate, flaggedRate(report.TotalAnalyses, report.Flagged.Total()))
	report.MostActiveDay = mostActiveDay(report.Days)
	report.PeakHour = peakHour(report.Days)
	report.Recommendations = recommendations(report)

	g.logger.Info("Generated weekly report",
		"week_start", start.Format("2006-01-02"),
		"total_analyses", report.TotalAnalyses,
		"flagged", report.Flagged.Total(),
		"trend", report.Trend)
	return report, nil
}

// Monthly builds the rollup for the calendar month containing t.
func (g *Generator) Monthly(ctx context.Context, t time.Time) (*MonthlyReport, error) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	entries, err := g.ledger.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger range for monthly report: %w", err)
	}

	report := &MonthlyReport{MonthStart: start}
	offenders := make(map[string]*Offender)
	var totalScore float64

	for _, e := range entries {
		if e.Type != ledger.EntryAnalysis || e.Analysis == nil {
			continue
		}
		report.TotalAnalyses++
		totalScore += float64(e.Analysis.BotScore)

		key := e.Key()
		off, ok := offenders[key]
		if !ok {
			off = &Offender{PromoterID: e.PromoterID, CampaignID: e.CampaignID}
			offenders[key] = off
		}
		off.Analyses++
		if e.Analysis.BotScore > off.MaxBotScore {
			off.MaxBotScore = e.Analysis.BotScore
		}

		switch e.Analysis.Action {
		case action.TierMonitor:
			report.Flagged.Monitor++
			off.Flagged++
		case action.TierWarning:
			report.Flagged.Warning++
			off.Flagged++
		case action.TierBan:
			report.Flagged.Ban++
			off.Flagged++
		}
	}
	if report.TotalAnalyses > 0 {
		report.AverageBotScore = totalScore / float64(report.TotalAnalyses)
	}

	report.TopOffenders = rankOffenders(offenders)

	g.logger.Info("Generated monthly report",
		"month", start.Format("2006-01"),
		"total_analyses", report.TotalAnalyses,
		"top_offenders", len(report.TopOffenders))
	return report, nil
}

func buildDaily(day time.Time, entries []*ledger.Entry) *DailyReport {
	report := &DailyReport{
		Date:              day,
		SeverityHistogram: make(map[string]int),
		Platforms:         make(map[string]PlatformStats),
	}

	var (
		totalScore   float64
		durations    []time.Duration
		totalLatency time.Duration
	)

	for _, e := range entries {
		switch e.Type {
		case ledger.EntryAnalysis:
			if e.Analysis == nil {
				continue
			}
			report.TotalAnalyses++
			totalScore += float64(e.Analysis.BotScore)
			report.HourCounts[e.Timestamp.UTC().Hour()]++
			if e.Duration > 0 {
				durations = append(durations, e.Duration)
				totalLatency += e.Duration
			}

			stats := report.Platforms[string(e.Analysis.Platform)]
			stats.Analyses++
			switch e.Analysis.Action {
			case action.TierMonitor:
				report.Flagged.Monitor++
				stats.Flagged++
			case action.TierWarning:
				report.Flagged.Warning++
				stats.Flagged++
			case action.TierBan:
				report.Flagged.Ban++
				stats.Flagged++
			default:
				report.CleanCount++
			}
			report.Platforms[string(e.Analysis.Platform)] = stats

		case ledger.EntryAlert:
			if e.Alert == nil {
				continue
			}
			report.AlertsEmitted++
			report.SeverityHistogram[e.Alert.Severity]++

		case ledger.EntryDelivery:
			if e.Delivery == nil {
				continue
			}
			report.DeliveryAttempts++
			if !e.Delivery.Success {
				report.DeliveryFailures++
			}

		case ledger.EntryValidation:
			report.ValidationFailures++
		}
	}

	if report.TotalAnalyses > 0 {
		report.AverageBotScore = totalScore / float64(report.TotalAnalyses)
	}
	for name, stats := range report.Platforms {
		if stats.Analyses > 0 {
			stats.DetectionRate = float64(stats.Flagged) / float64(stats.Analyses)
		}
		report.Platforms[name] = stats
	}
	if len(durations) > 0 {
		report.Processing.Min = durations[0]
		report.Processing.Max = durations[0]
		for _, d := range durations[1:] {
			if d < report.Processing.Min {
				report.Processing.Min = d
			}
			if d > report.Processing.Max {
				report.Processing.Max = d
			}
		}
		report.Processing.Avg = totalLatency / time.Duration(len(durations))
	}
	for hour, count := range report.HourCounts {
		if count > report.HourCounts[report.PeakHour] {
			report.PeakHour = hour
		}
	}
	return report
}

// weekStart returns the UTC Monday midnight of the week containing t.
func weekStart(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// flaggedRate loads the flagged share of analyses over an arbitrary ledger
// range, used to compare a week against the one before it.
func (g *Generator) flaggedRate(ctx context.Context, from, to time.Time) (float64, error) {
	entries, err := g.ledger.Range(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to load ledger range for trend: %w", err)
	}
	var analyses, flagged int
	for _, e := range entries {
		if e.Type != ledger.EntryAnalysis || e.Analysis == nil {
			continue
		}
		analyses++
		if e.Analysis.Action != action.TierNone && e.Analysis.Action != "" {
			flagged++
		}
	}
	return flaggedRate(analyses, flagged), nil
}

func flaggedRate(analyses, flagged int) float64 {
	if analyses == 0 {
		return 0
	}
	return float64(flagged) / float64(analyses)
}

// trendFrom compares this week's flagged share against the prior week's.
// A swing under two percentage points counts as stable.
func trendFrom(prior, current float64) Trend {
	switch {
	case current-prior > 0.02:
		return TrendRising
	case prior-current > 0.02:
		return TrendFalling
	default:
		return TrendStable
	}
}

// peakHour finds the busiest hour of day by analysis volume across the
// whole week.
func peakHour(days []*DailyReport) int {
	var counts [24]int
	for _, d := range days {
		for hour, c := range d.HourCounts {
			counts[hour] += c
		}
	}
	peak := 0
	for hour, c := range counts {
		if c > counts[peak] {
			peak = hour
		}
	}
	return peak
}

func mostActiveDay(days []*DailyReport) string {
	if len(days) == 0 {
		return ""
	}
	busiest := days[0]
	for _, d := range days[1:] {
		if d.TotalAnalyses > busiest.TotalAnalyses {
			busiest = d
		}
	}
	return busiest.Date.Weekday().String()
}

// recommendations derives operator guidance from fixed rules over the
// weekly aggregates. The rules are deterministic so regenerated reports
// never disagree.
func recommendations(r *WeeklyReport) []string {
	var recs []string
	if r.Flagged.Ban > 0 {
		recs = append(recs, fmt.Sprintf("%d promoter(s) were banned this week; review held payouts before settlement.", r.Flagged.Ban))
	}
	if r.Trend == TrendRising {
		recs = append(recs, "Flagged share is rising week over week; consider tightening spike and ratio thresholds.")
	}
	if flaggedRate(r.TotalAnalyses, r.Flagged.Total()) > 0.20 {
		recs = append(recs, "Detection rate exceeds 20% of analyses; review promoter vetting for affected campaigns.")
	}
	var attempts, failures int
	for _, d := range r.Days {
		attempts += d.DeliveryAttempts
		failures += d.DeliveryFailures
	}
	if attempts > 0 && float64(failures)/float64(attempts) > 0.10 {
		recs = append(recs, "More than 10% of alert deliveries failed; verify notification channel credentials and endpoints.")
	}
	var invalid int
	for _, d := range r.Days {
		invalid += d.ValidationFailures
	}
	if r.TotalAnalyses > 0 && invalid > r.TotalAnalyses/10 {
		recs = append(recs, "High rate of rejected samples; inspect upstream collectors for malformed payloads.")
	}
	if len(recs) == 0 {
		recs = append(recs, "No action required; detection activity is within normal bounds.")
	}
	return recs
}

func rankOffenders(offenders map[string]*Offender) []Offender {
	ranked := make([]Offender, 0, len(offenders))
	for _, off := range offenders {
		if off.Flagged == 0 {
			continue
		}
		off.FlaggedRate = float64(off.Flagged) / float64(off.Analyses)
		switch {
		case off.FlaggedRate >= riskHighRate:
			off.Risk = RiskHigh
		case off.FlaggedRate >= riskMediumRate:
			off.Risk = RiskMedium
		default:
			off.Risk = RiskLow
		}
		ranked = append(ranked, *off)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Flagged != ranked[j].Flagged {
			return ranked[i].Flagged > ranked[j].Flagged
		}
		if ranked[i].MaxBotScore != ranked[j].MaxBotScore {
			return ranked[i].MaxBotScore > ranked[j].MaxBotScore
		}
		return ranked[i].PromoterID < ranked[j].PromoterID
	})
	if len(ranked) > topOffenderLimit {
		ranked = ranked[:topOffenderLimit]
	}
	return ranked
}
