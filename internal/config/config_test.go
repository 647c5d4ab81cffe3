package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8087, cfg.Server.HTTPPort)

	assert.Equal(t, 50.0, cfg.Detection.ViewLikeRatio)
	assert.Equal(t, 200.0, cfg.Detection.ViewCommentRatio)
	assert.Equal(t, 500.0, cfg.Detection.SpikePercentage)
	assert.Equal(t, 30*time.Minute, cfg.Detection.SpikeTimeWindow)
	assert.Equal(t, 24*time.Hour, cfg.Detection.LookbackWindow)
	assert.Equal(t, 0.001, cfg.Detection.VelocityEngagementFactor)

	assert.Equal(t, 20, cfg.Detection.MonitorThreshold)
	assert.Equal(t, 50, cfg.Detection.WarningThreshold)
	assert.Equal(t, 90, cfg.Detection.BanThreshold)

	assert.Equal(t, time.Hour, cfg.Alerting.Window)
	assert.Equal(t, 5, cfg.Alerting.WarningAlertCount)
	assert.Equal(t, 10, cfg.Alerting.MonitorAlertCount)

	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 8, cfg.Analyzer.WorkerCount)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Detection: DetectionConfig{
				MonitorThreshold: 20,
				WarningThreshold: 50,
				BanThreshold:     90,
				LookbackWindow:   24 * time.Hour,
				SpikeTimeWindow:  30 * time.Minute,
			},
			Alerting: AlertingConfig{Window: time.Hour},
			Analyzer: AnalyzerConfig{WorkerCount: 4},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("unordered thresholds rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Detection.WarningThreshold = 10
		assert.Error(t, cfg.Validate())
	})

	t.Run("ban threshold above scale rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Detection.BanThreshold = 150
		assert.Error(t, cfg.Validate())
	})

	t.Run("lookback shorter than spike window rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Detection.LookbackWindow = 10 * time.Minute
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero alert window rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Alerting.Window = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("no workers rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Analyzer.WorkerCount = 0
		assert.Error(t, cfg.Validate())
	})
}
