// Package action maps a bot-confidence score to a response tier. The
// mapping is a pure, total function of (score, thresholds) so operators can
// retune the bands without touching scoring logic.
package action

import "fmt"

// Tier is the response tier resolved from a bot score.
type Tier string

const (
	TierNone    Tier = "none"
	TierMonitor Tier = "monitor"
	TierWarning Tier = "warning"
	TierBan     Tier = "ban"
)

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierNone, TierMonitor, TierWarning, TierBan:
		return true
	}
	return false
}

// Thresholds holds the score bands. They are configuration, not code
// constants; a Resolver must be constructed with injected values.
type Thresholds struct {
	Monitor int `json:"monitor"`
	Warning int `json:"warning"`
	Ban     int `json:"ban"`
}

// DefaultThresholds returns the default score bands (20/50/90).
func DefaultThresholds() Thresholds {
	return Thresholds{Monitor: 20, Warning: 50, Ban: 90}
}

// Validate checks the band ordering.
func (t Thresholds) Validate() error {
	if !(t.Monitor < t.Warning && t.Warning < t.Ban) {
		return fmt.Errorf("thresholds must be ordered: monitor(%d) < warning(%d) < ban(%d)",
			t.Monitor, t.Warning, t.Ban)
	}
	if t.Ban > 100 {
		return fmt.Errorf("ban threshold %d exceeds maximum score of 100", t.Ban)
	}
	return nil
}

// Resolver resolves scores against a fixed set of thresholds.
type Resolver struct {
	thresholds Thresholds
}

// NewResolver creates a resolver with the given thresholds.
func NewResolver(t Thresholds) (*Resolver, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{thresholds: t}, nil
}

// Thresholds returns the configured bands.
func (r *Resolver) Thresholds() Thresholds {
	return r.thresholds
}

// Resolve maps a score to a tier. Same input always yields the same tier.
func (r *Resolver) Resolve(score int) Tier {
	return Resolve(score, r.thresholds)
}

// Resolve maps a score to a tier using explicit thresholds.
func Resolve(score int, t Thresholds) Tier {
	switch {
	case score >= t.Ban:
		return TierBan
	case score >= t.Warning:
		return TierWarning
	case score >= t.Monitor:
		return TierMonitor
	default:
		return TierNone
	}
}
