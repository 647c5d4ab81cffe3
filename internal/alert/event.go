// Package alert turns resolved actions into notification-worthy events,
// suppressing alert storms with per-key rolling window counters and fanning
// emitted events out to the delivery channels.
package alert

import (
	"time"

	"github.com/promoguard/fraud-engine/internal/action"
)

// Severity orders alert urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Type classifies why the event exists.
type Type string

const (
	TypeHighRisk Type = "highRisk"
	TypeWarning  Type = "warning"
	TypeMonitor  Type = "monitor"
	TypeSystem   Type = "system"
)

// Metadata carries the window context the event was emitted under.
type Metadata struct {
	// PreviousAlerts counts earlier emitted events for the same key inside
	// the rolling window.
	PreviousAlerts int `json:"previous_alerts"`
}

// Event is one notification-worthy escalation. Never mutated after
// creation; appended to the window store and later pruned by retention.
type Event struct {
	ID         string      `json:"id"`
	PromoterID string      `json:"promoter_id"`
	CampaignID string      `json:"campaign_id"`
	Severity   Severity    `json:"severity"`
	Type       Type        `json:"type"`
	Tier       action.Tier `json:"tier"`
	BotScore   int         `json:"bot_score"`
	Title      string      `json:"title"`
	Message    string      `json:"message"`
	Patterns   []string    `json:"patterns,omitempty"`
	Metadata   Metadata    `json:"metadata"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Key returns the promoter:campaign window key.
func (e *Event) Key() string {
	return e.PromoterID + ":" + e.CampaignID
}
