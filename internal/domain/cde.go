package domain

import (
	"time"
)

// CDE statuses. Only active CDEs are eligible for scoring; callers
// pre-filter on status before handing profiles to the engine.
const (
	CDEStatusActive   = "active"
	CDEStatusInactive = "inactive"
	CDEStatusExpired  = "expired"
)

// Service area types.
const (
	ServiceAreaNational = "national"
	ServiceAreaRegional = "regional"
)

// CDEProfile is a Community Development Entity as stored in the CDE
// directory and, once enriched, as consumed by the scoring engine.
//
// Raw directory records often carry only the free-text fields
// (PredominantMarket, PredominantFinancing, InnovativeActivities,
// NonMetroCommitment). The enrichment pass derives PrimaryStates,
// TargetSectors, RuralFocus, NativeAmericanFocus, SmallDealFund and
// UTSFocus from them; the engine requires that pass to have run and never
// re-derives these itself.
type CDEProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`

	// Geography
	ServiceAreaType   string   `json:"serviceAreaType,omitempty"`
	PrimaryStates     []string `json:"primaryStates,omitempty"`
	PredominantMarket string   `json:"predominantMarket,omitempty"`

	// Financing focus
	PredominantFinancing string   `json:"predominantFinancing,omitempty"`
	TargetSectors        []string `json:"targetSectors,omitempty"`

	// Deal size appetite. MaxDealSize nil means unbounded.
	MinDealSize float64  `json:"minDealSize,omitempty"`
	MaxDealSize *float64 `json:"maxDealSize,omitempty"`

	// Expressed preferences. A false/absent preference is "no preference"
	// and must never disqualify a deal.
	RuralFocus                bool    `json:"ruralFocus,omitempty"`
	UrbanFocus                bool    `json:"urbanFocus,omitempty"`
	RequireSeverelyDistressed bool    `json:"requireSeverelyDistressed,omitempty"`
	MinDistressPercentile     float64 `json:"minDistressPercentile,omitempty"`
	SmallDealFund             bool    `json:"smallDealFund,omitempty"`
	MinorityFocus             bool    `json:"minorityFocus,omitempty"`
	UTSFocus                  bool    `json:"utsFocus,omitempty"`
	NonprofitPreferred        bool    `json:"nonprofitPreferred,omitempty"`
	ForprofitAccepted         Tri     `json:"forprofitAccepted"`
	OwnerOccupiedPreferred    bool    `json:"ownerOccupiedPreferred,omitempty"`
	NativeAmericanFocus       bool    `json:"nativeAmericanFocus,omitempty"`

	// Allocation
	AllocationType  string  `json:"allocationType,omitempty"`
	AmountRemaining float64 `json:"amountRemaining"`
	Year            int     `json:"year,omitempty"`

	// Raw directory fields consumed by enrichment.
	NonMetroCommitment   float64 `json:"nonMetroCommitment,omitempty"`
	InnovativeActivities string  `json:"innovativeActivities,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Active reports whether the CDE is eligible for scoring at all.
func (c *CDEProfile) Active() bool {
	return c.Status == CDEStatusActive
}

// AcceptsForprofit reports the entity-type policy: an absent
// forprofitAccepted defaults to true (for-profit sponsors accepted).
func (c *CDEProfile) AcceptsForprofit() bool {
	return c.ForprofitAccepted != No
}
