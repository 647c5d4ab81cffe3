package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/promoguard/fraud-engine/internal/config"
)

// EmailChannel sends alert emails via SendGrid.
type EmailChannel struct {
	cfg    config.EmailConfig
	client *sendgrid.Client
	logger *slog.Logger
}

// NewEmailChannel creates the SendGrid-backed email channel.
func NewEmailChannel(cfg config.EmailConfig, logger *slog.Logger) *EmailChannel {
	return &EmailChannel{
		cfg:    cfg,
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		logger: logger,
	}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

// Deliver sends the payload to every configured recipient; the first
// failure aborts and surfaces, remaining recipients are retried with the
// whole delivery by the manager.
func (c *EmailChannel) Deliver(ctx context.Context, p Payload) error {
	from := mail.NewEmail(c.cfg.FromName, c.cfg.FromAddress)
	body := renderEmailBody(p)

	for _, recipient := range c.cfg.Recipients {
		to := mail.NewEmail("", recipient)
		subject := fmt.Sprintf("[%s] %s", strings.ToUpper(p.Severity), p.Title)
		message := mail.NewSingleEmail(from, subject, to, body, "")

		resp, err := c.client.SendWithContext(ctx, message)
		if err != nil {
			return fmt.Errorf("failed to send email via SendGrid: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("SendGrid rejected email: status %d", resp.StatusCode)
		}
	}
	return nil
}

func renderEmailBody(p Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", p.Message)
	fmt.Fprintf(&b, "Promoter:  %s\nCampaign:  %s\nBot score: %d\nSeverity:  %s\n",
		p.PromoterID, p.CampaignID, p.BotScore, p.Severity)
	if len(p.Patterns) > 0 {
		b.WriteString("\nSuspicious patterns:\n")
		for _, pattern := range p.Patterns {
			fmt.Fprintf(&b, "  - %s\n", pattern)
		}
	}
	fmt.Fprintf(&b, "\nDetected at %s\n", p.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}

// SMSChannel sends alert texts via Twilio. Reserved for critical
// escalations by the dispatcher's fan-out policy.
type SMSChannel struct {
	cfg    config.SMSConfig
	client *twilio.RestClient
	logger *slog.Logger
}

// NewSMSChannel creates the Twilio-backed SMS channel.
func NewSMSChannel(cfg config.SMSConfig, logger *slog.Logger) *SMSChannel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioSID,
		Password: cfg.TwilioToken,
	})
	return &SMSChannel{cfg: cfg, client: client, logger: logger}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Deliver(_ context.Context, p Payload) error {
	body := fmt.Sprintf("FRAUD ALERT [%s]: %s | promoter %s, campaign %s, score %d",
		strings.ToUpper(p.Severity), p.Title, p.PromoterID, p.CampaignID, p.BotScore)

	for _, recipient := range c.cfg.Recipients {
		params := &twilioapi.CreateMessageParams{}
		params.SetTo(recipient)
		params.SetFrom(c.cfg.FromNumber)
		params.SetBody(body)

		if _, err := c.client.Api.CreateMessage(params); err != nil {
			return fmt.Errorf("failed to send SMS via Twilio: %w", err)
		}
	}
	return nil
}

// WebhookChannel posts the payload as JSON to a configured endpoint.
type WebhookChannel struct {
	cfg    config.WebhookConfig
	client *resty.Client
	logger *slog.Logger
}

// NewWebhookChannel creates the webhook channel.
func NewWebhookChannel(cfg config.WebhookConfig, logger *slog.Logger) *WebhookChannel {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		client.SetHeader(k, v)
	}
	return &WebhookChannel{cfg: cfg, client: client, logger: logger}
}

func (c *WebhookChannel) Name() string { return ChannelWebhook }

func (c *WebhookChannel) Deliver(ctx context.Context, p Payload) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(p).
		Post(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode())
	}
	return nil
}
