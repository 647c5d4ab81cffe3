package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/sample"
)

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		ViewLikeRatio:    50.0,
		ViewCommentRatio: 200.0,
		SpikePercentage:  500.0,
		SpikeTimeWindow:  30 * time.Minute,
		LookbackWindow:   24 * time.Hour,
		MaxSamplesPerKey: 500,

		RatioViewLikePenalty:    25,
		RatioViewCommentPenalty: 20,
		ZeroEngagementPenalty:   35,
		SpikeBasePenalty:        25,
		SpikeMaxPenalty:         40,
		TimingPenalty:           15,
		VelocityPairPenalty:     8,
		VelocityNegativePenalty: 10,
		VelocityMaxPenalty:      20,
		PlatformPenalty:         10,

		TimingCVThreshold:        0.1,
		TimingMinIntervals:       3,
		VelocityMinViews:         1.0,
		VelocityEngagementFactor: 0.001,

		TikTokMinLikeRate:       0.01,
		InstagramMinCommentRate: 0.002,

		MonitorThreshold: 20,
		WarningThreshold: 50,
		BanThreshold:     90,
	}
}

func makeSample(platform sample.Platform, views, likes, comments int64, at time.Time) sample.EngagementSample {
	return sample.EngagementSample{
		Platform:     platform,
		PromoterID:   "promoter-1",
		CampaignID:   "campaign-1",
		PostID:       "post-1",
		ViewCount:    views,
		LikeCount:    likes,
		CommentCount: comments,
		ObservedAt:   at,
	}
}

func TestEvaluateEmptyHistory(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	analysis := engine.Evaluate(sample.Key{PromoterID: "promoter-1", CampaignID: "campaign-1"}, nil)

	assert.Equal(t, 0, analysis.BotScore)
	assert.Empty(t, analysis.Reasons)
	assert.Equal(t, "promoter-1", analysis.PromoterID)
	assert.NotEmpty(t, analysis.ID)
}

func TestEvaluateBotTrafficSpike(t *testing.T) {
	// A TikTok post jumping from 1000 to 7000 views in two minutes with
	// almost no engagement should land in ban territory.
	engine := NewEngine(testDetectionConfig())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	samples := []sample.EngagementSample{
		makeSample(sample.PlatformTikTok, 1000, 5, 0, base),
		makeSample(sample.PlatformTikTok, 7000, 8, 0, base.Add(2*time.Minute)),
	}
	analysis := engine.Evaluate(samples[0].Key(), samples)

	assert.GreaterOrEqual(t, analysis.BotScore, 90)
	assert.Equal(t, sample.PlatformTikTok, analysis.Platform)
	assert.True(t, analysis.Metrics.Spike.Detected)
	assert.InDelta(t, 600.0, analysis.Metrics.Spike.IncreasePct, 0.01)
	assert.True(t, analysis.Metrics.Ratio.Triggered)
	assert.True(t, analysis.Metrics.Velocity.Triggered)
	assert.True(t, analysis.Metrics.Platform.Triggered)
	assert.NotEmpty(t, analysis.Reason())
}

func TestEvaluateHealthyGrowth(t *testing.T) {
	// Organic growth with proportional engagement and irregular sampling
	// must not accumulate any penalty.
	engine := NewEngine(testDetectionConfig())
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	samples := []sample.EngagementSample{
		makeSample(sample.PlatformYouTube, 10000, 800, 250, base),
		makeSample(sample.PlatformYouTube, 10500, 840, 260, base.Add(30*time.Minute)),
		makeSample(sample.PlatformYouTube, 11200, 900, 280, base.Add(75*time.Minute)),
		makeSample(sample.PlatformYouTube, 11900, 950, 300, base.Add(100*time.Minute)),
	}
	analysis := engine.Evaluate(samples[0].Key(), samples)

	assert.Equal(t, 0, analysis.BotScore)
	assert.Empty(t, analysis.Reasons)
	assert.Empty(t, analysis.SuspiciousPatterns())
}

func TestApplyRatio(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	base := time.Now().UTC()

	t.Run("zero engagement replaces both ratio penalties", func(t *testing.T) {
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformYouTube, 5000, 0, 0, base),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.True(t, analysis.Metrics.Ratio.ZeroEngagement)
		assert.Equal(t, 35, analysis.BotScore)
		require.Len(t, analysis.Reasons, 1)
		assert.Contains(t, analysis.Reasons[0].Description, "zero engagement")
	})

	t.Run("ratios computed over cumulative counts", func(t *testing.T) {
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformYouTube, 1000, 5, 100, base),
			makeSample(sample.PlatformYouTube, 2000, 10, 200, base.Add(time.Hour)),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		// 3000 views / 15 likes = 200 > 50, comments are healthy.
		assert.Equal(t, 25, analysis.BotScore)
		assert.InDelta(t, 200.0, analysis.Metrics.Ratio.ViewLikeRatio, 0.01)
	})

	t.Run("zero views scores nothing", func(t *testing.T) {
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformYouTube, 0, 0, 0, base),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)
		assert.Equal(t, 0, analysis.BotScore)
	})
}

func TestApplySpike(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	base := time.Now().UTC()

	healthy := func(views int64) sample.EngagementSample {
		// Engagement tracking views keeps every other heuristic silent.
		return makeSample(sample.PlatformYouTube, views, views/10, views/40, base)
	}

	t.Run("penalty scales with overshoot", func(t *testing.T) {
		a := healthy(1000)
		b := healthy(11000) // +1000%
		b.ObservedAt = base.Add(10 * time.Minute)
		analysis := engine.Evaluate(a.Key(), []sample.EngagementSample{a, b})

		// round(25 * 1000 / 500) = 50, capped at 40.
		assert.True(t, analysis.Metrics.Spike.Detected)
		assert.Equal(t, 40, analysis.BotScore)
	})

	t.Run("increase at threshold does not trigger", func(t *testing.T) {
		a := healthy(1000)
		b := healthy(6000) // exactly +500%
		b.ObservedAt = base.Add(10 * time.Minute)
		analysis := engine.Evaluate(a.Key(), []sample.EngagementSample{a, b})

		assert.False(t, analysis.Metrics.Spike.Detected)
		assert.Equal(t, 0, analysis.BotScore)
	})

	t.Run("spike outside time window ignored", func(t *testing.T) {
		a := healthy(1000)
		b := healthy(11000)
		b.ObservedAt = base.Add(2 * time.Hour)
		analysis := engine.Evaluate(a.Key(), []sample.EngagementSample{a, b})

		assert.False(t, analysis.Metrics.Spike.Detected)
	})
}

func TestApplyTiming(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	base := time.Now().UTC()

	healthy := func(views int64, at time.Time) sample.EngagementSample {
		return makeSample(sample.PlatformYouTube, views, views/10, views/40, at)
	}

	t.Run("mechanically regular intervals trigger", func(t *testing.T) {
		samples := []sample.EngagementSample{
			healthy(10000, base),
			healthy(10100, base.Add(10*time.Minute)),
			healthy(10200, base.Add(20*time.Minute)),
			healthy(10300, base.Add(30*time.Minute)),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.True(t, analysis.Metrics.Timing.Triggered)
		assert.Equal(t, 15, analysis.BotScore)
	})

	t.Run("too few intervals never trigger", func(t *testing.T) {
		samples := []sample.EngagementSample{
			healthy(10000, base),
			healthy(10100, base.Add(10*time.Minute)),
			healthy(10200, base.Add(20*time.Minute)),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.False(t, analysis.Metrics.Timing.Triggered)
		assert.Equal(t, 0, analysis.BotScore)
	})
}

func TestApplyVelocity(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	base := time.Now().UTC()

	t.Run("shrinking engagement while views grow", func(t *testing.T) {
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformYouTube, 10000, 1000, 300, base),
			makeSample(sample.PlatformYouTube, 10050, 900, 310, base.Add(40*time.Minute)),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.Equal(t, 1, analysis.Metrics.Velocity.NegativeDeltaPairs)
		assert.Equal(t, 10, analysis.BotScore)
	})

	t.Run("aggregate contribution is capped", func(t *testing.T) {
		// Four disproportionate pairs at 8 points each would be 32.
		samples := make([]sample.EngagementSample, 0, 5)
		views := int64(100000)
		for i := 0; i < 5; i++ {
			s := makeSample(sample.PlatformYouTube, views, 10000, 2500, base.Add(time.Duration(i*i)*time.Minute))
			samples = append(samples, s)
			views += 50000
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.Equal(t, 4, analysis.Metrics.Velocity.DisproportionatePairs)
		assert.Equal(t, 20, analysis.BotScore)
	})

	t.Run("engagement factor comes from configuration", func(t *testing.T) {
		// Likes grow at 1% of the view velocity: clean under the default
		// factor, disproportionate under a stricter one.
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformYouTube, 10000, 1000, 300, base),
			makeSample(sample.PlatformYouTube, 20000, 1100, 330, base.Add(10*time.Minute)),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)
		assert.Equal(t, 0, analysis.BotScore)

		strict := testDetectionConfig()
		strict.VelocityEngagementFactor = 0.05
		analysis = NewEngine(strict).Evaluate(samples[0].Key(), samples)
		assert.Equal(t, 1, analysis.Metrics.Velocity.DisproportionatePairs)
		assert.Equal(t, 8, analysis.BotScore)
	})
}

func TestApplyPlatform(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	base := time.Now().UTC()

	t.Run("tiktok low like rate", func(t *testing.T) {
		// A like rate under 1% also implies a view/like ratio over 50, so
		// the ratio penalty stacks on top of the platform one.
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformTikTok, 10000, 50, 300, base),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.True(t, analysis.Metrics.Platform.Triggered)
		assert.Equal(t, 35, analysis.BotScore)
	})

	t.Run("instagram low comment rate", func(t *testing.T) {
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformInstagram, 10000, 500, 10, base),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.True(t, analysis.Metrics.Platform.Triggered)
		assert.Equal(t, 30, analysis.BotScore)
	})

	t.Run("youtube has no platform minimum", func(t *testing.T) {
		samples := []sample.EngagementSample{
			makeSample(sample.PlatformYouTube, 10000, 500, 250, base),
		}
		analysis := engine.Evaluate(samples[0].Key(), samples)

		assert.False(t, analysis.Metrics.Platform.Triggered)
	})
}

func TestScoreCappedAtMaximum(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	base := time.Now().UTC()

	// Every heuristic firing at once must still land on the 0..100 scale.
	samples := []sample.EngagementSample{
		makeSample(sample.PlatformTikTok, 1000, 0, 0, base),
		makeSample(sample.PlatformTikTok, 20000, 0, 0, base.Add(5*time.Minute)),
		makeSample(sample.PlatformTikTok, 40000, 0, 0, base.Add(10*time.Minute)),
		makeSample(sample.PlatformTikTok, 300000, 0, 0, base.Add(15*time.Minute)),
	}
	analysis := engine.Evaluate(samples[0].Key(), samples)

	assert.Equal(t, 100, analysis.BotScore)
}

func TestScoreMonotonicInAnomalies(t *testing.T) {
	// Adding an anomalous observation on top of the same history must never
	// lower the score.
	engine := NewEngine(testDetectionConfig())
	base := time.Now().UTC()

	history := []sample.EngagementSample{
		makeSample(sample.PlatformTikTok, 1000, 5, 0, base),
		makeSample(sample.PlatformTikTok, 7000, 8, 0, base.Add(2*time.Minute)),
	}
	before := engine.Evaluate(history[0].Key(), history)

	extended := append(history, makeSample(sample.PlatformTikTok, 45000, 8, 0, base.Add(4*time.Minute)))
	after := engine.Evaluate(history[0].Key(), extended)

	assert.GreaterOrEqual(t, after.BotScore, before.BotScore)
}
