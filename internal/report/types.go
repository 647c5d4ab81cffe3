package report

import "time"

// TierCounts breaks flagged analyses down by resolved action tier.
type TierCounts struct {
	Monitor int `json:"monitor"`
	Warning int `json:"warning"`
	Ban     int `json:"ban"`
}

// Total is the number of flagged analyses across all tiers.
func (t TierCounts) Total() int {
	return t.Monitor + t.Warning + t.Ban
}

// PlatformStats summarizes detection activity for one platform.
type PlatformStats struct {
	Analyses      int     `json:"analyses"`
	Flagged       int     `json:"flagged"`
	DetectionRate float64 `json:"detection_rate"`
}

// ProcessingStats summarizes evaluation latency over a reporting window.
type ProcessingStats struct {
	Min time.Duration `json:"min_ns"`
	Avg time.Duration `json:"avg_ns"`
	Max time.Duration `json:"max_ns"`
}

// DailyReport is the rollup of one UTC calendar day of ledger entries.
type DailyReport struct {
	Date               time.Time                `json:"date"`
	TotalAnalyses      int                      `json:"total_analyses"`
	CleanCount         int                      `json:"clean_count"`
	Flagged            TierCounts               `json:"flagged"`
	AverageBotScore    float64                  `json:"average_bot_score"`
	SeverityHistogram  map[string]int           `json:"severity_histogram"`
	Platforms          map[string]PlatformStats `json:"platforms"`
	Processing         ProcessingStats          `json:"processing"`
	HourCounts         [24]int                  `json:"hour_counts"`
	PeakHour           int                      `json:"peak_hour"`
	AlertsEmitted      int                      `json:"alerts_emitted"`
	DeliveryAttempts   int                      `json:"delivery_attempts"`
	DeliveryFailures   int                      `json:"delivery_failures"`
	ValidationFailures int                      `json:"validation_failures"`
}

// Trend is the flagged-share direction across a weekly window.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// WeeklyReport aggregates seven daily rollups and derives week-level signals.
type WeeklyReport struct {
	WeekStart       time.Time      `json:"week_start"`
	Days            []*DailyReport `json:"days"`
	TotalAnalyses   int            `json:"total_analyses"`
	Flagged         TierCounts     `json:"flagged"`
	AverageBotScore float64        `json:"average_bot_score"`
	Trend           Trend          `json:"trend"`
	MostActiveDay   string         `json:"most_active_day"`
	PeakHour        int            `json:"peak_hour"`
	Recommendations []string       `json:"recommendations"`
}

// RiskTier buckets a promoter by its share of flagged analyses.
type RiskTier string

const (
	RiskHigh   RiskTier = "HIGH"
	RiskMedium RiskTier = "MEDIUM"
	RiskLow    RiskTier = "LOW"
)

// Offender is one promoter/campaign pair ranked in the monthly report.
type Offender struct {
	PromoterID  string   `json:"promoter_id"`
	CampaignID  string   `json:"campaign_id"`
	Analyses    int      `json:"analyses"`
	Flagged     int      `json:"flagged"`
	FlaggedRate float64  `json:"flagged_rate"`
	MaxBotScore int      `json:"max_bot_score"`
	Risk        RiskTier `json:"risk"`
}

// MonthlyReport is the rollup of one calendar month.
type MonthlyReport struct {
	MonthStart      time.Time  `json:"month_start"`
	TotalAnalyses   int        `json:"total_analyses"`
	Flagged         TierCounts `json:"flagged"`
	AverageBotScore float64    `json:"average_bot_score"`
	TopOffenders    []Offender `json:"top_offenders"`
}
