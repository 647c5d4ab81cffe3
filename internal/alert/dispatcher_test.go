package alert

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/ledger"
	"github.com/promoguard/fraud-engine/internal/notification"
	"github.com/promoguard/fraud-engine/internal/scoring"
)

func testAlertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		Window:              time.Hour,
		WarningAlertCount:   5,
		MonitorAlertCount:   10,
		WindowShards:        4,
		Retention:           24 * time.Hour,
		DispatchQueueSize:   32,
		DispatchWorkerCount: 1,
	}
}

// fakeChannel records delivered payloads under a configurable name.
type fakeChannel struct {
	name string
	mu   sync.Mutex
	got  []notification.Payload
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Deliver(_ context.Context, p notification.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, p)
	return nil
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *ledger.MemoryStore, *fakeChannel) {
	t.Helper()
	store := ledger.NewMemoryStore()
	led := ledger.New(store, config.LedgerConfig{
		Retention:    24 * time.Hour,
		WriteTimeout: time.Second,
		MaxRetries:   0,
		RetryDelay:   time.Millisecond,
	}, nil, slog.Default())

	notifier := notification.NewManager(config.NotificationsConfig{}, nil, slog.Default())
	dashboard := &fakeChannel{name: notification.ChannelDashboard}
	notifier.Register(dashboard, time.Second, 0, time.Millisecond)

	d := NewDispatcher(testAlertingConfig(), NewMemoryWindowStore(4), notifier, led, nil, slog.Default())
	return d, store, dashboard
}

func analysisWithTier(tier action.Tier, score int) (*scoring.BotAnalysis, *scoring.ActionResult) {
	a := &scoring.BotAnalysis{
		ID:         "analysis-1",
		PromoterID: "p1",
		CampaignID: "c1",
		BotScore:   score,
		Action:     tier,
	}
	return a, &scoring.ActionResult{Executed: true, Analysis: a, AnalysisID: a.ID}
}

func TestProcessBanAlwaysEmits(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a, r := analysisWithTier(action.TierBan, 95)
		ev, err := d.Process(ctx, a, r)
		require.NoError(t, err)
		require.NotNil(t, ev, "ban %d must never be suppressed", i+1)
		assert.Equal(t, SeverityCritical, ev.Severity)
		assert.Equal(t, TypeHighRisk, ev.Type)
		assert.Equal(t, 95, ev.BotScore)
	}
}

func TestProcessWarningSuppression(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	// The first four warnings inside the window stay silent.
	for i := 0; i < 4; i++ {
		a, r := analysisWithTier(action.TierWarning, 60)
		ev, err := d.Process(ctx, a, r)
		require.NoError(t, err)
		assert.Nil(t, ev, "warning %d should be suppressed", i+1)
	}

	// The fifth emits at high severity.
	a, r := analysisWithTier(action.TierWarning, 60)
	ev, err := d.Process(ctx, a, r)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, SeverityHigh, ev.Severity)
	assert.Equal(t, TypeWarning, ev.Type)

	// Emission resets the window; the next warning is silent again.
	a, r = analysisWithTier(action.TierWarning, 60)
	ev, err = d.Process(ctx, a, r)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestProcessMonitorSuppression(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	var emitted *Event
	for i := 0; i < 10; i++ {
		a, r := analysisWithTier(action.TierMonitor, 25)
		ev, err := d.Process(ctx, a, r)
		require.NoError(t, err)
		if i < 9 {
			assert.Nil(t, ev, "monitor %d should be suppressed", i+1)
		} else {
			emitted = ev
		}
	}
	require.NotNil(t, emitted)
	assert.Equal(t, SeverityMedium, emitted.Severity)
	assert.Equal(t, TypeMonitor, emitted.Type)
}

func TestProcessCleanAnalysisEmitsNothing(t *testing.T) {
	d, store, _ := newTestDispatcher(t)

	a, r := analysisWithTier(action.TierNone, 5)
	ev, err := d.Process(context.Background(), a, r)
	require.NoError(t, err)
	assert.Nil(t, ev)

	entries, err := store.RangeByKey(context.Background(), "p1:c1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessRecordsAlertInLedger(t *testing.T) {
	d, store, _ := newTestDispatcher(t)

	a, r := analysisWithTier(action.TierBan, 92)
	ev, err := d.Process(context.Background(), a, r)
	require.NoError(t, err)
	require.NotNil(t, ev)

	entries, err := store.RangeByKey(context.Background(), "p1:c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.EntryAlert, entries[0].Type)
	assert.Equal(t, ev.ID, entries[0].Alert.AlertID)
	assert.Equal(t, "critical", entries[0].Alert.Severity)
	assert.Equal(t, 92, entries[0].Alert.BotScore)
}

func TestDispatchDeliversAndRecordsOutcome(t *testing.T) {
	d, store, dashboard := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)
	defer d.Stop()

	a, r := analysisWithTier(action.TierBan, 95)
	ev, err := d.Process(ctx, a, r)
	require.NoError(t, err)
	require.NotNil(t, ev)

	require.Eventually(t, func() bool { return dashboard.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		entries, err := store.RangeByKey(ctx, "p1:c1")
		if err != nil {
			return false
		}
		for _, e := range entries {
			if e.Type == ledger.EntryDelivery && e.Delivery.Channel == notification.ChannelDashboard && e.Delivery.Success {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSystemAlert(t *testing.T) {
	d, store, _ := newTestDispatcher(t)

	ev := d.SystemAlert(context.Background(), "p1", "c1", SeverityHigh,
		"Ban execution failed", "enforcement API unreachable")
	require.NotNil(t, ev)
	assert.Equal(t, TypeSystem, ev.Type)

	entries, err := store.RangeByKey(context.Background(), "p1:c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(TypeSystem), entries[0].Alert.AlertType)
}

func TestChannelsFor(t *testing.T) {
	tests := []struct {
		severity Severity
		want     []string
	}{
		{SeverityCritical, []string{notification.ChannelDashboard, notification.ChannelWebhook, notification.ChannelEmail, notification.ChannelSMS}},
		{SeverityHigh, []string{notification.ChannelDashboard, notification.ChannelWebhook, notification.ChannelEmail}},
		{SeverityMedium, []string{notification.ChannelDashboard}},
		{SeverityLow, []string{notification.ChannelDashboard}},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			assert.Equal(t, tt.want, channelsFor(tt.severity))
		})
	}
}
