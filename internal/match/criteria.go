package match

import (
	"fmt"
	"strings"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

// Criterion names as they appear in the breakdown map.
const (
	CriterionGeographic         = "geographic"
	CriterionFinancing          = "financing"
	CriterionUrbanRural         = "urban_rural"
	CriterionSector             = "sector"
	CriterionDealSize           = "deal_size"
	CriterionSmallDealFund      = "small_deal_fund"
	CriterionSeverelyDistressed = "severely_distressed"
	CriterionDistressPercentile = "distress_percentile"
	CriterionMinorityFocus      = "minority_focus"
	CriterionUTSFocus           = "uts_focus"
	CriterionEntityType         = "entity_type"
	CriterionOwnerOccupied      = "owner_occupied"
	CriterionTribal             = "tribal"
	CriterionAllocationType     = "allocation_type"
	CriterionHasAllocation      = "has_allocation"
)

// CriteriaCount is the number of binary criteria behind the percentage.
const CriteriaCount = 15

// criterionResult is one binary check's outcome. A reason is only surfaced
// when the criterion passed and the CDE preference behind it was actually
// expressed rather than defaulted.
type criterionResult struct {
	name   string
	pass   bool
	reason string
}

// SmallDealThreshold is the allocation request at or under which a deal
// needs a small-deal-fund CDE.
const SmallDealThreshold = 5_000_000

// evaluateCriteria runs the thirteen post-gate checks. The two gate
// criteria are appended by the caller with their own pass reasons. The rule
// throughout is that an unexpressed CDE preference never disqualifies a
// deal; only an explicit, unmet requirement scores 0.
func (t *Tables) evaluateCriteria(deal *domain.DealProfile, cde *domain.CDEProfile) []criterionResult {
	out := make([]criterionResult, 0, CriteriaCount-2)

	// Urban/rural focus. A CDE expressing neither focus is a generalist.
	{
		r := criterionResult{name: CriterionUrbanRural}
		switch {
		case !cde.RuralFocus && !cde.UrbanFocus:
			r.pass = true
		case cde.RuralFocus && deal.Rural.True():
			r.pass = true
			r.reason = "Rural focus match"
		case cde.UrbanFocus && !deal.Rural.True():
			r.pass = true
			r.reason = "Urban focus match"
		}
		out = append(out, r)
	}

	// Sector.
	out = append(out, t.sectorCriterion(deal, cde))

	// Deal size range, inclusive; unset max means unbounded.
	{
		r := criterionResult{name: CriterionDealSize}
		withinMin := deal.AllocationRequest >= cde.MinDealSize
		withinMax := cde.MaxDealSize == nil || deal.AllocationRequest <= *cde.MaxDealSize
		if withinMin && withinMax {
			r.pass = true
			if cde.MinDealSize > 0 || cde.MaxDealSize != nil {
				r.reason = fmt.Sprintf("Deal size within range (%s)", formatAmount(deal.AllocationRequest))
			}
		}
		out = append(out, r)
	}

	// Small deal fund: sub-$5M deals need a CDE that runs one.
	{
		r := criterionResult{name: CriterionSmallDealFund}
		small := deal.AllocationRequest > 0 && deal.AllocationRequest <= SmallDealThreshold
		switch {
		case !small:
			r.pass = true
		case cde.SmallDealFund:
			r.pass = true
			r.reason = "Small deal fund available"
		}
		out = append(out, r)
	}

	// Severely distressed tract requirement.
	{
		r := criterionResult{name: CriterionSeverelyDistressed}
		switch {
		case !cde.RequireSeverelyDistressed:
			r.pass = true
		case deal.SeverelyDistressed.True():
			r.pass = true
			r.reason = "Severely distressed tract"
		}
		out = append(out, r)
	}

	// Distress percentile floor. Zero means no requirement.
	{
		r := criterionResult{name: CriterionDistressPercentile}
		switch {
		case cde.MinDistressPercentile == 0:
			r.pass = true
		case deal.DistressScore >= cde.MinDistressPercentile:
			r.pass = true
			r.reason = fmt.Sprintf("Distress percentile %.0f meets minimum %.0f", deal.DistressScore, cde.MinDistressPercentile)
		}
		out = append(out, r)
	}

	// Minority-owned sponsor focus.
	{
		r := criterionResult{name: CriterionMinorityFocus}
		switch {
		case !cde.MinorityFocus:
			r.pass = true
		case deal.MinorityOwned.True():
			r.pass = true
			r.reason = "Minority-owned sponsor"
		}
		out = append(out, r)
	}

	// Underserved/targeted states focus. The deal qualifies by its own UTS
	// flag or by its state appearing in the underserved table for the
	// CDE's allocation year. A year with no published table yields an
	// empty set; the focus passes unverified rather than disqualifying.
	{
		r := criterionResult{name: CriterionUTSFocus}
		switch {
		case !cde.UTSFocus:
			r.pass = true
		case deal.UTS.True():
			r.pass = true
			r.reason = "Underserved/targeted state deal"
		default:
			if len(t.UnderservedStates[cde.Year]) == 0 {
				r.pass = true
			} else if st, ok := ResolveState(deal.State); ok && t.IsUnderservedState(st.Abbrev, cde.Year) {
				r.pass = true
				r.reason = fmt.Sprintf("%s is an underserved state for %d", st.Abbrev, cde.Year)
			}
		}
		out = append(out, r)
	}

	// Entity type. Absent forprofitAccepted defaults to accepting
	// for-profit sponsors, so only an explicit nonprofit-only policy can
	// disqualify.
	{
		r := criterionResult{name: CriterionEntityType}
		switch {
		case cde.AcceptsForprofit():
			r.pass = true
		case deal.NonProfit.True():
			r.pass = true
			r.reason = "Nonprofit sponsor matches entity policy"
		}
		out = append(out, r)
	}

	// Owner-occupied preference. Deal-side absence defaults to
	// owner-occupied, same as the financing gate.
	{
		r := criterionResult{name: CriterionOwnerOccupied}
		switch {
		case !cde.OwnerOccupiedPreferred:
			r.pass = true
		case !deal.OwnerOccupied.False():
			r.pass = true
			r.reason = "Owner-occupied project"
		}
		out = append(out, r)
	}

	// Tribal/AIAN focus.
	{
		r := criterionResult{name: CriterionTribal}
		switch {
		case !cde.NativeAmericanFocus:
			r.pass = true
		case deal.Tribal.True():
			r.pass = true
			r.reason = "Tribal/AIAN project"
		}
		out = append(out, r)
	}

	// Allocation type: federal versus state-program. Either side unset
	// means no constraint.
	{
		r := criterionResult{name: CriterionAllocationType}
		dealType := NormalizeText(deal.AllocationType)
		cdeType := NormalizeText(cde.AllocationType)
		switch {
		case dealType == "" || cdeType == "":
			r.pass = true
		case dealType == cdeType:
			r.pass = true
			r.reason = fmt.Sprintf("Allocation type match: %s", dealType)
		}
		out = append(out, r)
	}

	// Remaining allocation. A CDE with nothing left to deploy can never
	// reach a perfect score.
	{
		r := criterionResult{name: CriterionHasAllocation}
		if cde.AmountRemaining > 0 {
			r.pass = true
			r.reason = fmt.Sprintf("Allocation available (%s remaining)", formatAmount(cde.AmountRemaining))
		}
		out = append(out, r)
	}

	return out
}

// sectorCriterion matches the deal's sector against the CDE's target
// sectors, falling back to the predominant-market text. A CDE declaring
// neither is a generalist; a deal declaring no sector cannot mismatch.
func (t *Tables) sectorCriterion(deal *domain.DealProfile, cde *domain.CDEProfile) criterionResult {
	r := criterionResult{name: CriterionSector}

	if len(cde.TargetSectors) == 0 && strings.TrimSpace(cde.PredominantMarket) == "" {
		r.pass = true
		return r
	}

	sector := NormalizeText(deal.SectorCategory)
	if sector == "" {
		sector = NormalizeText(deal.ProjectType)
	}
	if sector == "" {
		r.pass = true
		return r
	}

	for _, ts := range cde.TargetSectors {
		n := NormalizeText(ts)
		if n == "" {
			continue
		}
		if strings.Contains(sector, n) || strings.Contains(n, sector) {
			r.pass = true
			r.reason = fmt.Sprintf("Sector match: %s", ts)
			return r
		}
	}

	if market := NormalizeText(cde.PredominantMarket); market != "" && strings.Contains(market, sector) {
		r.pass = true
		r.reason = fmt.Sprintf("Sector match: %s", deal.SectorCategory)
		if deal.SectorCategory == "" {
			r.reason = fmt.Sprintf("Sector match: %s", deal.ProjectType)
		}
	}

	return r
}

// formatAmount renders a dollar amount compactly for reasons.
func formatAmount(v float64) string {
	switch {
	case v >= 1_000_000:
		s := strings.TrimSuffix(fmt.Sprintf("%.1f", v/1_000_000), ".0")
		return "$" + s + "M"
	case v >= 1_000:
		return fmt.Sprintf("$%.0fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
