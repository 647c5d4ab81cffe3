package scoring

import (
	"strings"
	"time"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/sample"
)

// Reason is one triggered heuristic with its point contribution.
type Reason struct {
	Description string `json:"description"`
	Points      int    `json:"points"`
}

// RatioMetrics holds cumulative engagement-ratio figures.
type RatioMetrics struct {
	TotalViews       int64   `json:"total_views"`
	TotalLikes       int64   `json:"total_likes"`
	TotalComments    int64   `json:"total_comments"`
	ViewLikeRatio    float64 `json:"view_like_ratio"`
	ViewCommentRatio float64 `json:"view_comment_ratio"`
	ZeroEngagement   bool    `json:"zero_engagement"`
	Triggered        bool    `json:"triggered"`
}

// SpikeMetrics holds view-spike detection figures.
type SpikeMetrics struct {
	Detected      bool    `json:"detected"`
	IncreasePct   float64 `json:"increase_pct"`
	BaselineViews int64   `json:"baseline_views"`
	LatestViews   int64   `json:"latest_views"`
}

// TimingMetrics holds inter-sample regularity figures.
type TimingMetrics struct {
	Intervals     int     `json:"intervals"`
	MeanSeconds   float64 `json:"mean_seconds"`
	StddevSeconds float64 `json:"stddev_seconds"`
	CV            float64 `json:"cv"`
	Triggered     bool    `json:"triggered"`
}

// VelocityMetrics holds per-second velocity figures.
type VelocityMetrics struct {
	MaxViewVelocity   float64 `json:"max_view_velocity"`
	DisproportionatePairs int `json:"disproportionate_pairs"`
	NegativeDeltaPairs    int `json:"negative_delta_pairs"`
	Triggered         bool    `json:"triggered"`
}

// PlatformMetrics holds platform-baseline comparison figures.
type PlatformMetrics struct {
	Platform       sample.Platform `json:"platform"`
	AvgLikeRate    float64         `json:"avg_like_rate"`
	AvgCommentRate float64         `json:"avg_comment_rate"`
	Triggered      bool            `json:"triggered"`
}

// Metrics is the closed per-heuristic snapshot attached to an analysis.
// One typed struct per heuristic category rather than a dynamic bag, so the
// output is exhaustively matchable.
type Metrics struct {
	Ratio    RatioMetrics    `json:"ratio"`
	Spike    SpikeMetrics    `json:"spike"`
	Timing   TimingMetrics   `json:"timing"`
	Velocity VelocityMetrics `json:"velocity"`
	Platform PlatformMetrics `json:"platform"`
}

// BotAnalysis is the score engine's output for one (promoter, campaign)
// evaluation. Created fresh per evaluation and never mutated afterwards.
type BotAnalysis struct {
	ID          string      `json:"id"`
	PromoterID  string      `json:"promoter_id"`
	CampaignID  string      `json:"campaign_id"`
	Platform    sample.Platform `json:"platform"`
	BotScore    int         `json:"bot_score"`
	Reasons     []Reason    `json:"reasons"`
	Action      action.Tier `json:"action"`
	Metrics     Metrics     `json:"metrics"`
	SampleCount int         `json:"sample_count"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Reason joins the triggered-heuristic descriptions for audit readability.
func (a *BotAnalysis) Reason() string {
	if len(a.Reasons) == 0 {
		return "no anomalies detected"
	}
	parts := make([]string, len(a.Reasons))
	for i, r := range a.Reasons {
		parts[i] = r.Description
	}
	return strings.Join(parts, "; ")
}

// SuspiciousPatterns returns the human-readable pattern list for an
// action result.
func (a *BotAnalysis) SuspiciousPatterns() []string {
	patterns := make([]string, len(a.Reasons))
	for i, r := range a.Reasons {
		patterns[i] = r.Description
	}
	return patterns
}

// ActionResult is the outcome of executing the resolved action for one
// evaluation. Created once per evaluation; immutable.
type ActionResult struct {
	Executed           bool         `json:"executed"`
	Timestamp          time.Time    `json:"timestamp"`
	SuspiciousPatterns []string     `json:"suspicious_patterns"`
	Error              string       `json:"error,omitempty"`
	Analysis           *BotAnalysis `json:"-"`
	AnalysisID         string       `json:"analysis_id"`
}
