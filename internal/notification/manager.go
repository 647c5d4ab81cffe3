// Package notification delivers alert payloads through the configured
// channels. The core pipeline only sees the single Deliver contract; all
// transport detail (SendGrid, Twilio, webhooks, the dashboard hub) stays
// behind it.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/promoguard/fraud-engine/internal/config"
)

// Channel names used across the dispatcher's fan-out policy.
const (
	ChannelDashboard = "dashboard"
	ChannelWebhook   = "webhook"
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
)

// Payload is the channel-independent notification body.
type Payload struct {
	AlertID    string    `json:"alert_id"`
	Severity   string    `json:"severity"`
	AlertType  string    `json:"alert_type"`
	PromoterID string    `json:"promoter_id"`
	CampaignID string    `json:"campaign_id"`
	BotScore   int       `json:"bot_score"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Patterns   []string  `json:"patterns,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Channel is a single delivery transport.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, p Payload) error
}

type channelPolicy struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

// Manager routes payloads to named channels with per-channel rate limiting,
// timeouts and bounded retries. A channel that is not configured simply does
// not exist; asking for it is a delivery error the dispatcher logs and
// isolates.
type Manager struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	channels map[string]Channel
	limiters map[string]*rate.Limiter
	policies map[string]channelPolicy
}

// NewManager builds a manager from the notification configuration. The
// dashboard hub is passed in because it is shared with the HTTP layer.
func NewManager(cfg config.NotificationsConfig, hub *DashboardHub, logger *slog.Logger) *Manager {
	m := &Manager{
		logger:   logger,
		channels: make(map[string]Channel),
		limiters: make(map[string]*rate.Limiter),
		policies: make(map[string]channelPolicy),
	}

	if cfg.Dashboard.Enabled && hub != nil {
		m.register(hub, channelPolicy{timeout: 2 * time.Second, maxRetries: 0, retryDelay: 0}, 0)
	}
	if cfg.Webhook.Enabled {
		m.register(NewWebhookChannel(cfg.Webhook, logger), channelPolicy{
			timeout:    cfg.Webhook.Timeout,
			maxRetries: cfg.Webhook.MaxRetries,
			retryDelay: cfg.Webhook.RetryDelay,
		}, cfg.Webhook.RateLimitPerMin)
	}
	if cfg.Email.Enabled {
		m.register(NewEmailChannel(cfg.Email, logger), channelPolicy{
			timeout:    cfg.Email.Timeout,
			maxRetries: cfg.Email.MaxRetries,
			retryDelay: cfg.Email.RetryDelay,
		}, cfg.Email.RateLimitPerMin)
	}
	if cfg.SMS.Enabled {
		m.register(NewSMSChannel(cfg.SMS, logger), channelPolicy{
			timeout:    cfg.SMS.Timeout,
			maxRetries: cfg.SMS.MaxRetries,
			retryDelay: cfg.SMS.RetryDelay,
		}, cfg.SMS.RateLimitPerMin)
	}

	return m
}

// Register adds or replaces a channel. Used by tests to install fakes.
func (m *Manager) Register(ch Channel, timeout time.Duration, maxRetries int, retryDelay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
	m.policies[ch.Name()] = channelPolicy{timeout: timeout, maxRetries: maxRetries, retryDelay: retryDelay}
}

func (m *Manager) register(ch Channel, policy channelPolicy, perMin int) {
	m.channels[ch.Name()] = ch
	m.policies[ch.Name()] = policy
	if perMin > 0 {
		m.limiters[ch.Name()] = rate.NewLimiter(rate.Limit(float64(perMin)/60), perMin)
	}
}

// Has reports whether a channel is configured.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[name]
	return ok
}

// Deliver sends a payload through one channel, honoring the channel's rate
// limit, per-attempt timeout and bounded retry count. Exhausted retries
// surface the last error; the caller records the outcome either way.
func (m *Manager) Deliver(ctx context.Context, channel string, p Payload) error {
	m.mu.RLock()
	ch, ok := m.channels[channel]
	policy := m.policies[channel]
	limiter := m.limiters[channel]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("notification channel %q is not configured", channel)
	}
	if limiter != nil && !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for channel %s", channel)
	}

	var lastErr error
	delay := policy.retryDelay
	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if policy.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.timeout)
		}
		lastErr = ch.Deliver(attemptCtx, p)
		cancel()
		if lastErr == nil {
			return nil
		}

		m.logger.Warn("Notification delivery attempt failed",
			"channel", channel,
			"alert_id", p.AlertID,
			"attempt", attempt+1,
			"error", lastErr)
	}

	return fmt.Errorf("delivery via %s failed after %d attempts: %w",
		channel, policy.maxRetries+1, lastErr)
}
