package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the fraud engine service
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Debug         bool                `mapstructure:"debug"`
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Detection     DetectionConfig     `mapstructure:"detection"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Enforcement   EnforcementConfig   `mapstructure:"enforcement"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Analyzer      AnalyzerConfig      `mapstructure:"analyzer"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RedisConfig contains Redis configuration for the ledger and alert windows
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// KafkaConfig contains the engagement-sample intake configuration
type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers"`
	GroupID          string   `mapstructure:"group_id"`
	SampleTopic      string   `mapstructure:"sample_topic"`
	WorkerCount      int      `mapstructure:"worker_count"`
	MinBytes         int      `mapstructure:"min_bytes"`
	MaxBytes         int      `mapstructure:"max_bytes"`
	CommitIntervalMs int      `mapstructure:"commit_interval_ms"`
}

// DetectionConfig contains all scoring thresholds and penalty points.
// Point values are tuned defaults meant to be retuned empirically, which is
// why they live here instead of as constants in the scoring package.
type DetectionConfig struct {
	ViewLikeRatio    float64       `mapstructure:"view_like_ratio"`
	ViewCommentRatio float64       `mapstructure:"view_comment_ratio"`
	SpikePercentage  float64       `mapstructure:"spike_percentage"`
	SpikeTimeWindow  time.Duration `mapstructure:"spike_time_window"`
	LookbackWindow   time.Duration `mapstructure:"lookback_window"`
	MaxSamplesPerKey int           `mapstructure:"max_samples_per_key"`

	RatioViewLikePenalty    int `mapstructure:"ratio_view_like_penalty"`
	RatioViewCommentPenalty int `mapstructure:"ratio_view_comment_penalty"`
	ZeroEngagementPenalty   int `mapstructure:"zero_engagement_penalty"`
	SpikeBasePenalty        int `mapstructure:"spike_base_penalty"`
	SpikeMaxPenalty         int `mapstructure:"spike_max_penalty"`
	TimingPenalty           int `mapstructure:"timing_penalty"`
	VelocityPairPenalty     int `mapstructure:"velocity_pair_penalty"`
	VelocityNegativePenalty int `mapstructure:"velocity_negative_penalty"`
	VelocityMaxPenalty      int `mapstructure:"velocity_max_penalty"`
	PlatformPenalty         int `mapstructure:"platform_penalty"`

	TimingCVThreshold        float64 `mapstructure:"timing_cv_threshold"`
	TimingMinIntervals       int     `mapstructure:"timing_min_intervals"`
	VelocityMinViews         float64 `mapstructure:"velocity_min_views"`
	VelocityEngagementFactor float64 `mapstructure:"velocity_engagement_factor"`

	TikTokMinLikeRate       float64 `mapstructure:"tiktok_min_like_rate"`
	InstagramMinCommentRate float64 `mapstructure:"instagram_min_comment_rate"`

	MonitorThreshold int `mapstructure:"monitor_threshold"`
	WarningThreshold int `mapstructure:"warning_threshold"`
	BanThreshold     int `mapstructure:"ban_threshold"`
}

// AlertingConfig contains alert suppression and retention configuration
type AlertingConfig struct {
	Window              time.Duration `mapstructure:"window"`
	WarningAlertCount   int           `mapstructure:"warning_alert_count"`
	MonitorAlertCount   int           `mapstructure:"monitor_alert_count"`
	WindowShards        int           `mapstructure:"window_shards"`
	Retention           time.Duration `mapstructure:"retention"`
	DispatchQueueSize   int           `mapstructure:"dispatch_queue_size"`
	DispatchWorkerCount int           `mapstructure:"dispatch_worker_count"`
}

// NotificationsConfig contains delivery channel configuration
type NotificationsConfig struct {
	Email     EmailConfig     `mapstructure:"email"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// EmailConfig contains email notification configuration
type EmailConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	SendGridAPIKey  string        `mapstructure:"sendgrid_api_key"`
	FromAddress     string        `mapstructure:"from_address"`
	FromName        string        `mapstructure:"from_name"`
	Recipients      []string      `mapstructure:"recipients"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
}

// SMSConfig contains SMS notification configuration
type SMSConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TwilioSID       string        `mapstructure:"twilio_sid"`
	TwilioToken     string        `mapstructure:"twilio_token"`
	FromNumber      string        `mapstructure:"from_number"`
	Recipients      []string      `mapstructure:"recipients"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
}

// WebhookConfig contains webhook notification configuration
type WebhookConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	URL             string            `mapstructure:"url"`
	Headers         map[string]string `mapstructure:"headers"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	MaxRetries      int               `mapstructure:"max_retries"`
	RetryDelay      time.Duration     `mapstructure:"retry_delay"`
	RateLimitPerMin int               `mapstructure:"rate_limit_per_min"`
}

// DashboardConfig contains dashboard broadcast configuration
type DashboardConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// EnforcementConfig contains the platform enforcement API configuration
// used to execute bans (suspend promoter, hold payouts)
type EnforcementConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// LedgerConfig contains audit ledger configuration
type LedgerConfig struct {
	Retention    time.Duration `mapstructure:"retention"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
}

// SchedulerConfig contains periodic maintenance configuration
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RetentionSweep  string `mapstructure:"retention_sweep"`
	DailyRollup     string `mapstructure:"daily_rollup"`
	WeeklyRollup    string `mapstructure:"weekly_rollup"`
	RollupRecipient string `mapstructure:"rollup_recipient"`
}

// AnalyzerConfig contains the analysis worker pool configuration
type AnalyzerConfig struct {
	WorkerCount int           `mapstructure:"worker_count"`
	QueueSize   int           `mapstructure:"queue_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/fraud-engine")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FRAUD_ENGINE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that viper cannot express
func (c *Config) Validate() error {
	d := c.Detection
	if !(d.MonitorThreshold < d.WarningThreshold && d.WarningThreshold < d.BanThreshold) {
		return fmt.Errorf("detection thresholds must be ordered: monitor(%d) < warning(%d) < ban(%d)",
			d.MonitorThreshold, d.WarningThreshold, d.BanThreshold)
	}
	if d.BanThreshold > 100 {
		return fmt.Errorf("ban threshold %d exceeds maximum score of 100", d.BanThreshold)
	}
	if d.LookbackWindow < d.SpikeTimeWindow {
		return fmt.Errorf("lookback window %s is shorter than spike window %s",
			d.LookbackWindow, d.SpikeTimeWindow)
	}
	if c.Alerting.Window <= 0 {
		return fmt.Errorf("alert window must be positive, got %s", c.Alerting.Window)
	}
	if c.Analyzer.WorkerCount <= 0 {
		return fmt.Errorf("analyzer worker count must be positive, got %d", c.Analyzer.WorkerCount)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// General
	viper.SetDefault("environment", "development")
	viper.SetDefault("debug", false)

	// Server
	viper.SetDefault("server.http_port", 8087)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Kafka
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "fraud-engine")
	viper.SetDefault("kafka.sample_topic", "engagement-samples")
	viper.SetDefault("kafka.worker_count", 2)
	viper.SetDefault("kafka.min_bytes", 1)
	viper.SetDefault("kafka.max_bytes", 10e6)
	viper.SetDefault("kafka.commit_interval_ms", 1000)

	// Detection thresholds
	viper.SetDefault("detection.view_like_ratio", 50.0)
	viper.SetDefault("detection.view_comment_ratio", 200.0)
	viper.SetDefault("detection.spike_percentage", 500.0)
	viper.SetDefault("detection.spike_time_window", "30m")
	viper.SetDefault("detection.lookback_window", "24h")
	viper.SetDefault("detection.max_samples_per_key", 500)

	// Penalty points (tuned defaults, retune empirically)
	viper.SetDefault("detection.ratio_view_like_penalty", 25)
	viper.SetDefault("detection.ratio_view_comment_penalty", 20)
	viper.SetDefault("detection.zero_engagement_penalty", 35)
	viper.SetDefault("detection.spike_base_penalty", 25)
	viper.SetDefault("detection.spike_max_penalty", 40)
	viper.SetDefault("detection.timing_penalty", 15)
	viper.SetDefault("detection.velocity_pair_penalty", 8)
	viper.SetDefault("detection.velocity_negative_penalty", 10)
	viper.SetDefault("detection.velocity_max_penalty", 20)
	viper.SetDefault("detection.platform_penalty", 10)

	viper.SetDefault("detection.timing_cv_threshold", 0.1)
	viper.SetDefault("detection.timing_min_intervals", 3)
	viper.SetDefault("detection.velocity_min_views", 1.0)
	viper.SetDefault("detection.velocity_engagement_factor", 0.001)

	viper.SetDefault("detection.tiktok_min_like_rate", 0.01)
	viper.SetDefault("detection.instagram_min_comment_rate", 0.002)

	// Confidence bands
	viper.SetDefault("detection.monitor_threshold", 20)
	viper.SetDefault("detection.warning_threshold", 50)
	viper.SetDefault("detection.ban_threshold", 90)

	// Alerting
	viper.SetDefault("alerting.window", "60m")
	viper.SetDefault("alerting.warning_alert_count", 5)
	viper.SetDefault("alerting.monitor_alert_count", 10)
	viper.SetDefault("alerting.window_shards", 16)
	viper.SetDefault("alerting.retention", "24h")
	viper.SetDefault("alerting.dispatch_queue_size", 1024)
	viper.SetDefault("alerting.dispatch_worker_count", 4)

	// Notifications
	viper.SetDefault("notifications.email.enabled", false)
	viper.SetDefault("notifications.email.timeout", "30s")
	viper.SetDefault("notifications.email.max_retries", 3)
	viper.SetDefault("notifications.email.retry_delay", "10s")
	viper.SetDefault("notifications.email.rate_limit_per_min", 60)

	viper.SetDefault("notifications.sms.enabled", false)
	viper.SetDefault("notifications.sms.timeout", "30s")
	viper.SetDefault("notifications.sms.max_retries", 3)
	viper.SetDefault("notifications.sms.retry_delay", "10s")
	viper.SetDefault("notifications.sms.rate_limit_per_min", 10)

	viper.SetDefault("notifications.webhook.enabled", false)
	viper.SetDefault("notifications.webhook.timeout", "30s")
	viper.SetDefault("notifications.webhook.max_retries", 3)
	viper.SetDefault("notifications.webhook.retry_delay", "10s")
	viper.SetDefault("notifications.webhook.rate_limit_per_min", 120)

	viper.SetDefault("notifications.dashboard.enabled", true)
	viper.SetDefault("notifications.dashboard.buffer_size", 256)

	// Enforcement
	viper.SetDefault("enforcement.enabled", false)
	viper.SetDefault("enforcement.timeout", "10s")
	viper.SetDefault("enforcement.max_retries", 3)
	viper.SetDefault("enforcement.retry_delay", "2s")

	// Ledger
	viper.SetDefault("ledger.retention", "2160h") // 90 days
	viper.SetDefault("ledger.write_timeout", "5s")
	viper.SetDefault("ledger.max_retries", 3)
	viper.SetDefault("ledger.retry_delay", "500ms")

	// Scheduler
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.retention_sweep", "@every 1h")
	viper.SetDefault("scheduler.daily_rollup", "5 0 * * *")
	viper.SetDefault("scheduler.weekly_rollup", "15 0 * * 1")

	// Analyzer
	viper.SetDefault("analyzer.worker_count", 8)
	viper.SetDefault("analyzer.queue_size", 256)
	viper.SetDefault("analyzer.timeout", "10s")
}
