package domain

import (
	"time"
)

// MatchResult is the outcome of scoring one deal against one CDE.
type MatchResult struct {
	ID     string `json:"id,omitempty"`
	DealID string `json:"dealId,omitempty"`
	CDEID  string `json:"cdeId"`

	// Score is an integer percentage 0-100.
	Score int `json:"score"`

	// Reasons lists passed criteria whose CDE preference was actually
	// expressed (not merely defaulted). The full list is kept here;
	// presentation layers apply their own cap.
	Reasons []string `json:"reasons,omitempty"`

	// Breakdown maps criterion name to 0/1 for audit and diagnostics.
	// When a gate fails it contains only the failing gate's entry.
	Breakdown map[string]int `json:"breakdown,omitempty"`

	// GateFailure carries the eliminator diagnostic when the score is a
	// gate-forced 0. Empty for any pair that reached criteria scoring.
	GateFailure string `json:"gateFailure,omitempty"`

	EngineVersion string    `json:"engineVersion,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// GatePassed reports whether the pair survived both eliminator gates.
func (m *MatchResult) GatePassed() bool {
	return m.GateFailure == ""
}

// Match strength tiers used by the presentation layer.
const (
	StrengthExcellent = "excellent"
	StrengthGood      = "good"
	StrengthFair      = "fair"
	StrengthWeak      = "weak"
)

// Strength buckets a score into a presentation tier.
func Strength(score int) string {
	switch {
	case score >= 80:
		return StrengthExcellent
	case score >= 65:
		return StrengthGood
	case score >= 50:
		return StrengthFair
	default:
		return StrengthWeak
	}
}
