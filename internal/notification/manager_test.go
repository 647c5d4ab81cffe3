package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promoguard/fraud-engine/internal/config"
)

// countingChannel fails a configurable number of attempts, then succeeds.
type countingChannel struct {
	name     string
	mu       sync.Mutex
	attempts int
	failures int
}

func (c *countingChannel) Name() string { return c.name }

func (c *countingChannel) Deliver(_ context.Context, _ Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.failures {
		return errors.New("transport unavailable")
	}
	return nil
}

func testPayload() Payload {
	return Payload{
		AlertID:   "a1",
		Severity:  "high",
		AlertType: "warning",
		Title:     "test",
		Message:   "test message",
		Timestamp: time.Now().UTC(),
	}
}

func TestManagerDeliver(t *testing.T) {
	t.Run("unknown channel is an error", func(t *testing.T) {
		m := NewManager(config.NotificationsConfig{}, nil, slog.Default())
		err := m.Deliver(context.Background(), ChannelEmail, testPayload())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not configured")
	})

	t.Run("success on first attempt", func(t *testing.T) {
		m := NewManager(config.NotificationsConfig{}, nil, slog.Default())
		ch := &countingChannel{name: ChannelWebhook}
		m.Register(ch, time.Second, 3, time.Millisecond)

		require.NoError(t, m.Deliver(context.Background(), ChannelWebhook, testPayload()))
		assert.Equal(t, 1, ch.attempts)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		m := NewManager(config.NotificationsConfig{}, nil, slog.Default())
		ch := &countingChannel{name: ChannelWebhook, failures: 2}
		m.Register(ch, time.Second, 3, time.Millisecond)

		require.NoError(t, m.Deliver(context.Background(), ChannelWebhook, testPayload()))
		assert.Equal(t, 3, ch.attempts)
	})

	t.Run("exhausted retries surface the last error", func(t *testing.T) {
		m := NewManager(config.NotificationsConfig{}, nil, slog.Default())
		ch := &countingChannel{name: ChannelWebhook, failures: 100}
		m.Register(ch, time.Second, 2, time.Millisecond)

		err := m.Deliver(context.Background(), ChannelWebhook, testPayload())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, 3, ch.attempts)
	})
}

func TestManagerHas(t *testing.T) {
	m := NewManager(config.NotificationsConfig{}, nil, slog.Default())
	assert.False(t, m.Has(ChannelWebhook))

	m.Register(&countingChannel{name: ChannelWebhook}, time.Second, 0, 0)
	assert.True(t, m.Has(ChannelWebhook))
}

func TestManagerConfiguredChannels(t *testing.T) {
	// Only enabled channels exist; the dashboard needs a hub instance.
	cfg := config.NotificationsConfig{
		Webhook: config.WebhookConfig{
			Enabled: true,
			URL:     "http://example.invalid/hook",
			Timeout: time.Second,
		},
		Dashboard: config.DashboardConfig{Enabled: true, BufferSize: 8},
	}
	hub := NewDashboardHub(8, slog.Default())
	m := NewManager(cfg, hub, slog.Default())

	assert.True(t, m.Has(ChannelWebhook))
	assert.True(t, m.Has(ChannelDashboard))
	assert.False(t, m.Has(ChannelEmail))
	assert.False(t, m.Has(ChannelSMS))
}

func TestDashboardHubDeliverWithoutClients(t *testing.T) {
	hub := NewDashboardHub(8, slog.Default())
	assert.NoError(t, hub.Deliver(context.Background(), testPayload()))
	assert.Equal(t, 0, hub.ClientCount())
}
