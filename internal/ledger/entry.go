// Package ledger is the append-only audit trail underlying all reporting.
// Every analysis, alert, delivery attempt and validation failure lands here
// as an immutable, timestamped record keyed by (promoter, campaign).
// Rollup reports are pure projections over a bounded range of entries and
// are always regenerable; the ledger is the sole source of truth.
package ledger

import (
	"time"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/scoring"
)

// EntryType discriminates ledger records.
type EntryType string

const (
	EntryAnalysis   EntryType = "analysis"
	EntryAlert      EntryType = "alert"
	EntryDelivery   EntryType = "delivery"
	EntryValidation EntryType = "validation_failure"
)

// AlertRecord is the flat snapshot of an emitted alert event.
type AlertRecord struct {
	AlertID        string      `json:"alert_id"`
	Severity       string      `json:"severity"`
	AlertType      string      `json:"alert_type"`
	Tier           action.Tier `json:"tier"`
	BotScore       int         `json:"bot_score"`
	PreviousAlerts int         `json:"previous_alerts"`
	Message        string      `json:"message"`
}

// DeliveryRecord is the outcome of one channel delivery attempt.
type DeliveryRecord struct {
	AlertID  string        `json:"alert_id"`
	Channel  string        `json:"channel"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// ValidationRecord captures a rejected input sample.
type ValidationRecord struct {
	PostID string `json:"post_id"`
	Error  string `json:"error"`
}

// Entry is one immutable audit record. Exactly one of the payload fields is
// set, matching Type.
type Entry struct {
	ID         string    `json:"id"`
	Type       EntryType `json:"type"`
	PromoterID string    `json:"promoter_id"`
	CampaignID string    `json:"campaign_id"`
	Timestamp  time.Time `json:"timestamp"`

	// Duration of the evaluation that produced an analysis entry; used by
	// the rollup processing-time statistics.
	Duration time.Duration `json:"duration_ns,omitempty"`

	Analysis     *scoring.BotAnalysis  `json:"analysis,omitempty"`
	ActionResult *scoring.ActionResult `json:"action_result,omitempty"`
	Alert        *AlertRecord          `json:"alert,omitempty"`
	Delivery     *DeliveryRecord       `json:"delivery,omitempty"`
	Validation   *ValidationRecord     `json:"validation,omitempty"`
}

// Key returns the canonical promoter:campaign storage key.
func (e *Entry) Key() string {
	return e.PromoterID + ":" + e.CampaignID
}
