package domain

import (
	"time"
)

// Deal statuses. Only open deals are offered for scanning.
const (
	DealStatusOpen   = "open"
	DealStatusFunded = "funded"
	DealStatusClosed = "closed"
)

// AllocationTypeFederal is the default allocation program for a deal that
// does not name a state program.
const AllocationTypeFederal = "federal"

// Deal is a sponsor's project as stored in the deal store. Intake fields are
// collected from the sponsor questionnaire and census-tract lookup; they feed
// the DealProfile the scoring engine consumes.
type Deal struct {
	ID        string `json:"id"`
	SponsorID string `json:"sponsorId"`
	Name      string `json:"name"`
	Status    string `json:"status"`

	// Location and classification
	State          string `json:"state"`
	ProjectType    string `json:"projectType"`
	SectorCategory string `json:"sectorCategory,omitempty"`
	VentureType    string `json:"ventureType,omitempty"`

	// Financing requested
	AllocationRequest float64 `json:"allocationRequest"`
	AllocationType    string  `json:"allocationType,omitempty"`

	Intake DealIntake `json:"intake"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// DealIntake holds the optional tract and sponsor attributes from intake.
// Every field is tri-state: absence means unknown, not false.
type DealIntake struct {
	SeverelyDistressed Tri     `json:"severelyDistressed"`
	QCT                Tri     `json:"qct"`
	DistressScore      float64 `json:"distressScore,omitempty"`
	Rural              Tri     `json:"rural"`
	NonProfit          Tri     `json:"nonProfit"`
	MinorityOwned      Tri     `json:"minorityOwned"`
	OwnerOccupied      Tri     `json:"ownerOccupied"`
	UTS                Tri     `json:"uts"`
	Tribal             Tri     `json:"tribal"`
}

// DealProfile is the read-only scoring input derived from a Deal. The
// engine treats it as immutable; RealEstate must already be resolved by the
// caller (explicit venture type or keyword inference) before scoring.
type DealProfile struct {
	DealID            string  `json:"dealId,omitempty"`
	State             string  `json:"state"`
	ProjectType       string  `json:"projectType,omitempty"`
	SectorCategory    string  `json:"sectorCategory,omitempty"`
	VentureType       string  `json:"ventureType,omitempty"`
	AllocationRequest float64 `json:"allocationRequest"`
	AllocationType    string  `json:"allocationType,omitempty"`

	SeverelyDistressed Tri     `json:"severelyDistressed"`
	QCT                Tri     `json:"qct"`
	DistressScore      float64 `json:"distressScore,omitempty"`
	Rural              Tri     `json:"rural"`
	NonProfit          Tri     `json:"nonProfit"`
	MinorityOwned      Tri     `json:"minorityOwned"`
	OwnerOccupied      Tri     `json:"ownerOccupied"`
	UTS                Tri     `json:"uts"`
	Tribal             Tri     `json:"tribal"`
	RealEstate         Tri     `json:"realEstate"`
}

// Profile derives the scoring input from a stored deal. The allocation type
// defaults to federal when the sponsor left it blank. RealEstate is left
// Unknown here; callers resolve it with the engine's venture classifier so
// the keyword list lives in exactly one place.
func (d *Deal) Profile() *DealProfile {
	allocType := d.AllocationType
	if allocType == "" {
		allocType = AllocationTypeFederal
	}

	return &DealProfile{
		DealID:             d.ID,
		State:              d.State,
		ProjectType:        d.ProjectType,
		SectorCategory:     d.SectorCategory,
		VentureType:        d.VentureType,
		AllocationRequest:  d.AllocationRequest,
		AllocationType:     allocType,
		SeverelyDistressed: d.Intake.SeverelyDistressed,
		QCT:                d.Intake.QCT,
		DistressScore:      d.Intake.DistressScore,
		Rural:              d.Intake.Rural,
		NonProfit:          d.Intake.NonProfit,
		MinorityOwned:      d.Intake.MinorityOwned,
		OwnerOccupied:      d.Intake.OwnerOccupied,
		UTS:                d.Intake.UTS,
		Tribal:             d.Intake.Tribal,
	}
}
