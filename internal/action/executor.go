package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/promoguard/fraud-engine/internal/config"
)

// Executor applies a ban to the outside world: suspend the promoter on the
// campaign and hold pending payouts. Implementations must be safe for
// concurrent use.
type Executor interface {
	ExecuteBan(ctx context.Context, promoterID, campaignID string, botScore int, reasons []string) error
}

// banRequest is the enforcement API payload.
type banRequest struct {
	PromoterID string   `json:"promoter_id"`
	CampaignID string   `json:"campaign_id"`
	BotScore   int      `json:"bot_score"`
	Reasons    []string `json:"reasons"`
	Source     string   `json:"source"`
	Timestamp  string   `json:"timestamp"`
}

// HTTPExecutor executes bans against the platform enforcement API.
type HTTPExecutor struct {
	client *resty.Client
	logger *slog.Logger
}

// NewHTTPExecutor creates an executor for the configured enforcement API.
func NewHTTPExecutor(cfg config.EnforcementConfig, logger *slog.Logger) *HTTPExecutor {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryDelay).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &HTTPExecutor{client: client, logger: logger}
}

func (e *HTTPExecutor) ExecuteBan(ctx context.Context, promoterID, campaignID string, botScore int, reasons []string) error {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(banRequest{
			PromoterID: promoterID,
			CampaignID: campaignID,
			BotScore:   botScore,
			Reasons:    reasons,
			Source:     "fraud-engine",
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}).
		Post("/api/v1/bans")
	if err != nil {
		return fmt.Errorf("enforcement request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("enforcement API returned status %d: %s", resp.StatusCode(), resp.String())
	}
	e.logger.Info("Ban executed",
		"promoter_id", promoterID,
		"campaign_id", campaignID,
		"bot_score", botScore)
	return nil
}

// NopExecutor logs bans without calling out. Used when no enforcement API
// is configured and in tests.
type NopExecutor struct {
	logger *slog.Logger
}

// NewNopExecutor creates a log-only executor.
func NewNopExecutor(logger *slog.Logger) *NopExecutor {
	return &NopExecutor{logger: logger}
}

func (e *NopExecutor) ExecuteBan(_ context.Context, promoterID, campaignID string, botScore int, _ []string) error {
	e.logger.Warn("Ban resolved but enforcement is disabled",
		"promoter_id", promoterID,
		"campaign_id", campaignID,
		"bot_score", botScore)
	return nil
}
