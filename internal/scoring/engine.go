// Package scoring computes a deterministic bot-likelihood score from an
// ordered engagement sample set. Heuristics are independent and additive:
// each contributes a bounded number of points and the total is capped at
// 100, so appending evidence never retracts points and the result is fully
// explainable from the reason list.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/sample"
)

const maxScore = 100

// Engine evaluates sample sets against configured thresholds. It holds no
// mutable state; evaluations for different keys may run concurrently.
type Engine struct {
	cfg config.DetectionConfig
}

// NewEngine creates a score engine with the given detection thresholds.
func NewEngine(cfg config.DetectionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate scores one (promoter, campaign) sample set. Samples must be
// ordered by ObservedAt; the caller is responsible for re-sorting
// out-of-order arrivals before evaluation.
func (e *Engine) Evaluate(key sample.Key, samples []sample.EngagementSample) *BotAnalysis {
	analysis := &BotAnalysis{
		ID:          uuid.NewString(),
		PromoterID:  key.PromoterID,
		CampaignID:  key.CampaignID,
		SampleCount: len(samples),
		EvaluatedAt: time.Now().UTC(),
	}
	if len(samples) == 0 {
		return analysis
	}
	analysis.Platform = samples[len(samples)-1].Platform

	score := 0
	add := func(points int, format string, args ...interface{}) {
		score += points
		analysis.Reasons = append(analysis.Reasons, Reason{
			Description: fmt.Sprintf(format+" (+%d)", append(args, points)...),
			Points:      points,
		})
	}

	e.applyRatio(analysis, samples, add)
	e.applySpike(analysis, samples, add)
	e.applyTiming(analysis, samples, add)
	e.applyVelocity(analysis, samples, add)
	e.applyPlatform(analysis, samples, add)

	if score > maxScore {
		score = maxScore
	}
	analysis.BotScore = score
	return analysis
}

type addFunc func(points int, format string, args ...interface{})

// applyRatio checks cumulative view/like and view/comment ratios. Zero
// engagement despite non-zero views is a distinct, larger penalty that
// replaces the two ratio penalties.
func (e *Engine) applyRatio(a *BotAnalysis, samples []sample.EngagementSample, add addFunc) {
	var views, likes, comments int64
	for _, s := range samples {
		views += s.ViewCount
		likes += s.LikeCount
		comments += s.CommentCount
	}

	m := &a.Metrics.Ratio
	m.TotalViews = views
	m.TotalLikes = likes
	m.TotalComments = comments
	if likes > 0 {
		m.ViewLikeRatio = float64(views) / float64(likes)
	}
	if comments > 0 {
		m.ViewCommentRatio = float64(views) / float64(comments)
	}

	if views == 0 {
		return
	}

	if likes == 0 && comments == 0 {
		m.ZeroEngagement = true
		m.Triggered = true
		add(e.cfg.ZeroEngagementPenalty, "zero engagement across %d views", views)
		return
	}

	if likes == 0 || m.ViewLikeRatio > e.cfg.ViewLikeRatio {
		m.Triggered = true
		add(e.cfg.RatioViewLikePenalty, "view/like ratio %s exceeds %.1f",
			ratioString(m.ViewLikeRatio, likes), e.cfg.ViewLikeRatio)
	}
	if comments == 0 || m.ViewCommentRatio > e.cfg.ViewCommentRatio {
		m.Triggered = true
		add(e.cfg.RatioViewCommentPenalty, "view/comment ratio %s exceeds %.1f",
			ratioString(m.ViewCommentRatio, comments), e.cfg.ViewCommentRatio)
	}
}

// applySpike compares the most recent sample's view delta against the
// immediately preceding sample inside the spike window. The penalty scales
// with how far past the threshold the increase lands, bounded by
// SpikeMaxPenalty.
func (e *Engine) applySpike(a *BotAnalysis, samples []sample.EngagementSample, add addFunc) {
	if len(samples) < 2 {
		return
	}
	latest := samples[len(samples)-1]
	prev := samples[len(samples)-2]

	if latest.ObservedAt.Sub(prev.ObservedAt) > e.cfg.SpikeTimeWindow {
		return
	}
	if prev.ViewCount <= 0 || latest.ViewCount <= prev.ViewCount {
		return
	}

	increase := float64(latest.ViewCount-prev.ViewCount) / float64(prev.ViewCount) * 100
	m := &a.Metrics.Spike
	m.BaselineViews = prev.ViewCount
	m.LatestViews = latest.ViewCount
	m.IncreasePct = increase

	if increase <= e.cfg.SpikePercentage {
		return
	}
	m.Detected = true

	points := int(math.Round(float64(e.cfg.SpikeBasePenalty) * increase / e.cfg.SpikePercentage))
	if points > e.cfg.SpikeMaxPenalty {
		points = e.cfg.SpikeMaxPenalty
	}
	add(points, "view spike of %.0f%% within %s exceeds %.0f%%",
		increase, e.cfg.SpikeTimeWindow, e.cfg.SpikePercentage)
}

// applyTiming flags bot-like mechanical regularity: a coefficient of
// variation of inter-sample deltas below the threshold. Contributes at most
// once regardless of sample count.
func (e *Engine) applyTiming(a *BotAnalysis, samples []sample.EngagementSample, add addFunc) {
	if len(samples) < e.cfg.TimingMinIntervals+1 {
		return
	}

	deltas := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d := samples[i].ObservedAt.Sub(samples[i-1].ObservedAt).Seconds()
		if d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) < e.cfg.TimingMinIntervals {
		return
	}

	mean := 0.0
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))
	if mean == 0 {
		return
	}

	variance := 0.0
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	stddev := math.Sqrt(variance / float64(len(deltas)))
	cv := stddev / mean

	m := &a.Metrics.Timing
	m.Intervals = len(deltas)
	m.MeanSeconds = mean
	m.StddevSeconds = stddev
	m.CV = cv

	if cv < e.cfg.TimingCVThreshold {
		m.Triggered = true
		add(e.cfg.TimingPenalty, "mechanically regular sampling: interval CV %.3f below %.3f over %d intervals",
			cv, e.cfg.TimingCVThreshold, len(deltas))
	}
}

// applyVelocity inspects consecutive sample pairs for disproportionately
// high view velocity with near-zero engagement velocity, and for negative
// engagement deltas while views grow. The aggregate contribution is capped.
func (e *Engine) applyVelocity(a *BotAnalysis, samples []sample.EngagementSample, add addFunc) {
	if len(samples) < 2 {
		return
	}

	m := &a.Metrics.Velocity
	points := 0
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		dt := cur.ObservedAt.Sub(prev.ObservedAt).Seconds()
		if dt <= 0 {
			continue
		}

		viewDelta := cur.ViewCount - prev.ViewCount
		likeDelta := cur.LikeCount - prev.LikeCount
		commentDelta := cur.CommentCount - prev.CommentCount

		viewVel := float64(viewDelta) / dt
		likeVel := float64(likeDelta) / dt
		commentVel := float64(commentDelta) / dt
		if viewVel > m.MaxViewVelocity {
			m.MaxViewVelocity = viewVel
		}

		// Near-zero engagement velocity relative to view velocity.
		if viewVel > e.cfg.VelocityMinViews &&
			likeVel < viewVel*e.cfg.VelocityEngagementFactor &&
			commentVel < viewVel*e.cfg.VelocityEngagementFactor {
			m.DisproportionatePairs++
			points += e.cfg.VelocityPairPenalty
		}
		if viewDelta > 0 && (likeDelta < 0 || commentDelta < 0) {
			m.NegativeDeltaPairs++
			points += e.cfg.VelocityNegativePenalty
		}
	}

	if points == 0 {
		return
	}
	if points > e.cfg.VelocityMaxPenalty {
		points = e.cfg.VelocityMaxPenalty
	}
	m.Triggered = true
	add(points, "velocity anomalies: %d pair(s) with view growth but near-zero engagement, %d pair(s) with shrinking engagement",
		m.DisproportionatePairs, m.NegativeDeltaPairs)
}

// applyPlatform compares average engagement rates against platform-specific
// minimums: like-rate for TikTok, comment-rate for Instagram.
func (e *Engine) applyPlatform(a *BotAnalysis, samples []sample.EngagementSample, add addFunc) {
	var likeRateSum, commentRateSum float64
	n := 0
	for _, s := range samples {
		if s.ViewCount == 0 {
			continue
		}
		likeRateSum += float64(s.LikeCount) / float64(s.ViewCount)
		commentRateSum += float64(s.CommentCount) / float64(s.ViewCount)
		n++
	}
	if n == 0 {
		return
	}

	m := &a.Metrics.Platform
	m.Platform = a.Platform
	m.AvgLikeRate = likeRateSum / float64(n)
	m.AvgCommentRate = commentRateSum / float64(n)

	switch a.Platform {
	case sample.PlatformTikTok:
		if m.AvgLikeRate < e.cfg.TikTokMinLikeRate {
			m.Triggered = true
			add(e.cfg.PlatformPenalty, "tiktok like rate %.4f below platform minimum %.4f",
				m.AvgLikeRate, e.cfg.TikTokMinLikeRate)
		}
	case sample.PlatformInstagram:
		if m.AvgCommentRate < e.cfg.InstagramMinCommentRate {
			m.Triggered = true
			add(e.cfg.PlatformPenalty, "instagram comment rate %.4f below platform minimum %.4f",
				m.AvgCommentRate, e.cfg.InstagramMinCommentRate)
		}
	}
}

func ratioString(ratio float64, denominator int64) string {
	if denominator == 0 {
		return "inf"
	}
	return fmt.Sprintf("%.1f", ratio)
}
