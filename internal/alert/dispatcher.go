package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/ledger"
	"github.com/promoguard/fraud-engine/internal/metrics"
	"github.com/promoguard/fraud-engine/internal/notification"
	"github.com/promoguard/fraud-engine/internal/scoring"
)

// Dispatcher decides whether a resolved action warrants an alert, applies
// storm suppression, and fans emitted events out to delivery channels.
// Delivery is queued so a slow channel never delays the scoring path;
// critical events bypass the queue when it is saturated because
// irreversible actions must never be silently dropped.
type Dispatcher struct {
	cfg      config.AlertingConfig
	logger   *slog.Logger
	windows  WindowStore
	notifier *notification.Manager
	ledger   *ledger.Ledger
	metrics  *metrics.Collector

	queue        chan *Event
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewDispatcher creates a dispatcher. The window store is injected so
// suppression state can be tested in isolation.
func NewDispatcher(
	cfg config.AlertingConfig,
	windows WindowStore,
	notifier *notification.Manager,
	led *ledger.Ledger,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:          cfg,
		logger:       logger,
		windows:      windows,
		notifier:     notifier,
		ledger:       led,
		metrics:      collector,
		queue:        make(chan *Event, cfg.DispatchQueueSize),
		shutdownChan: make(chan struct{}),
	}
}

// Start launches the dispatch workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting alert dispatcher", "workers", d.cfg.DispatchWorkerCount)
	for i := 0; i < d.cfg.DispatchWorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop drains in-flight dispatch work and stops the workers.
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping alert dispatcher")
	close(d.shutdownChan)
	d.wg.Wait()
	d.logger.Info("Alert dispatcher stopped")
}

// Process evaluates one analysis against the suppression rules. It returns
// the emitted event, or nil when the analysis was absorbed by the window.
func (d *Dispatcher) Process(ctx context.Context, analysis *scoring.BotAnalysis, result *scoring.ActionResult) (*Event, error) {
	key := analysis.PromoterID + ":" + analysis.CampaignID
	now := time.Now().UTC()

	var (
		severity Severity
		evType   Type
	)

	switch analysis.Action {
	case action.TierBan:
		// Irreversible: always escalates, never suppressed.
		severity, evType = SeverityCritical, TypeHighRisk

	case action.TierWarning:
		count := d.windows.RecordTier(key, action.TierWarning, now, d.cfg.Window)
		if count < d.cfg.WarningAlertCount {
			d.metrics.AlertSuppressed(string(action.TierWarning))
			return nil, nil
		}
		d.windows.ResetTier(key, action.TierWarning)
		severity, evType = SeverityHigh, TypeWarning

	case action.TierMonitor:
		count := d.windows.RecordTier(key, action.TierMonitor, now, d.cfg.Window)
		if count < d.cfg.MonitorAlertCount {
			d.metrics.AlertSuppressed(string(action.TierMonitor))
			return nil, nil
		}
		d.windows.ResetTier(key, action.TierMonitor)
		severity, evType = SeverityMedium, TypeMonitor

	default:
		return nil, nil
	}

	ev := &Event{
		ID:         uuid.NewString(),
		PromoterID: analysis.PromoterID,
		CampaignID: analysis.CampaignID,
		Severity:   severity,
		Type:       evType,
		Tier:       analysis.Action,
		BotScore:   analysis.BotScore,
		Title:      fmt.Sprintf("Bot activity %s for promoter %s", analysis.Action, analysis.PromoterID),
		Message:    analysis.Reason(),
		Patterns:   analysis.SuspiciousPatterns(),
		Metadata:   Metadata{PreviousAlerts: len(d.windows.RecentEvents(key, d.cfg.Window))},
		CreatedAt:  now,
	}
	d.windows.RecordEvent(ev)
	d.metrics.AlertEmitted(string(severity))

	if err := d.ledger.Append(ctx, &ledger.Entry{
		Type:       ledger.EntryAlert,
		PromoterID: ev.PromoterID,
		CampaignID: ev.CampaignID,
		Timestamp:  ev.CreatedAt,
		Alert: &ledger.AlertRecord{
			AlertID:        ev.ID,
			Severity:       string(ev.Severity),
			AlertType:      string(ev.Type),
			Tier:           ev.Tier,
			BotScore:       ev.BotScore,
			PreviousAlerts: ev.Metadata.PreviousAlerts,
			Message:        ev.Message,
		},
	}); err != nil {
		// Degraded mode: the event still dispatches.
		d.logger.Warn("Failed to record alert event in ledger", "alert_id", ev.ID, "error", err)
	}

	d.enqueue(ctx, ev)
	return ev, nil
}

// SystemAlert emits an operational event outside the scoring flow, e.g. a
// failed ban execution.
func (d *Dispatcher) SystemAlert(ctx context.Context, promoterID, campaignID string, severity Severity, title, message string) *Event {
	ev := &Event{
		ID:         uuid.NewString(),
		PromoterID: promoterID,
		CampaignID: campaignID,
		Severity:   severity,
		Type:       TypeSystem,
		Title:      title,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	d.windows.RecordEvent(ev)
	d.metrics.AlertEmitted(string(severity))

	if err := d.ledger.Append(ctx, &ledger.Entry{
		Type:       ledger.EntryAlert,
		PromoterID: promoterID,
		CampaignID: campaignID,
		Timestamp:  ev.CreatedAt,
		Alert: &ledger.AlertRecord{
			AlertID:   ev.ID,
			Severity:  string(severity),
			AlertType: string(TypeSystem),
			Message:   message,
		},
	}); err != nil {
		d.logger.Warn("Failed to record system alert in ledger", "alert_id", ev.ID, "error", err)
	}

	d.enqueue(ctx, ev)
	return ev
}

// PruneWindows evicts expired suppression state; called by the scheduler.
func (d *Dispatcher) PruneWindows() int {
	return d.windows.Prune(time.Now().Add(-d.cfg.Retention))
}

// QueueDepth reports the pending dispatch backlog, for metrics.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *Dispatcher) enqueue(ctx context.Context, ev *Event) {
	select {
	case d.queue <- ev:
	default:
		if ev.Severity == SeverityCritical {
			// Queue saturated: deliver critical events inline rather than
			// drop them.
			d.logger.Warn("Dispatch queue full, delivering critical alert inline", "alert_id", ev.ID)
			d.dispatch(ctx, ev)
			return
		}
		d.logger.Error("Dispatch queue full, dropping alert", "alert_id", ev.ID, "severity", ev.Severity)
		if err := d.ledger.Append(ctx, &ledger.Entry{
			Type:       ledger.EntryDelivery,
			PromoterID: ev.PromoterID,
			CampaignID: ev.CampaignID,
			Delivery: &ledger.DeliveryRecord{
				AlertID: ev.ID,
				Channel: "queue",
				Success: false,
				Error:   "dispatch queue full",
			},
		}); err != nil {
			d.logger.Warn("Failed to record queue overflow", "alert_id", ev.ID, "error", err)
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdownChan:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case ev := <-d.queue:
					d.dispatch(context.Background(), ev)
				default:
					return
				}
			}
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		}
	}
}

// dispatch fans one event out to its severity-selected channels. Channel
// failures are isolated: each is logged and recorded in the ledger without
// blocking delivery to the others.
func (d *Dispatcher) dispatch(ctx context.Context, ev *Event) {
	payload := notification.Payload{
		AlertID:    ev.ID,
		Severity:   string(ev.Severity),
		AlertType:  string(ev.Type),
		PromoterID: ev.PromoterID,
		CampaignID: ev.CampaignID,
		BotScore:   ev.BotScore,
		Title:      ev.Title,
		Message:    ev.Message,
		Patterns:   ev.Patterns,
		Timestamp:  ev.CreatedAt,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, channel := range channelsFor(ev.Severity) {
		if !d.notifier.Has(channel) {
			continue
		}
		channel := channel
		g.Go(func() error {
			start := time.Now()
			err := d.notifier.Deliver(gctx, channel, payload)
			duration := time.Since(start)
			d.metrics.Delivery(channel, err == nil, duration)

			record := &ledger.DeliveryRecord{
				AlertID:  ev.ID,
				Channel:  channel,
				Success:  err == nil,
				Duration: duration,
			}
			if err != nil {
				record.Error = err.Error()
				d.logger.Error("Channel delivery failed",
					"alert_id", ev.ID,
					"channel", channel,
					"error", err)
			} else {
				d.logger.Info("Alert delivered",
					"alert_id", ev.ID,
					"channel", channel,
					"severity", ev.Severity)
			}

			if lerr := d.ledger.Append(ctx, &ledger.Entry{
				Type:       ledger.EntryDelivery,
				PromoterID: ev.PromoterID,
				CampaignID: ev.CampaignID,
				Delivery:   record,
			}); lerr != nil {
				d.logger.Warn("Failed to record delivery outcome", "alert_id", ev.ID, "channel", channel, "error", lerr)
			}
			// Failures are recorded, not propagated: one channel must not
			// cancel the others.
			return nil
		})
	}
	_ = g.Wait()
}

// channelsFor returns the delivery channels for a severity: dashboard
// always, webhook and email from high, SMS only for critical.
func channelsFor(severity Severity) []string {
	channels := []string{notification.ChannelDashboard}
	switch severity {
	case SeverityCritical:
		channels = append(channels, notification.ChannelWebhook, notification.ChannelEmail, notification.ChannelSMS)
	case SeverityHigh:
		channels = append(channels, notification.ChannelWebhook, notification.ChannelEmail)
	}
	return channels
}
